package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/moodchat/client/internal/model/analysis"
)

var (
	ErrSessionBusy     = errors.New("realtime session is busy")
	ErrNoActiveSession = errors.New("no active realtime session")
	ErrFrameInFlight   = errors.New("previous frame still in flight")
	ErrSessionClosed   = errors.New("realtime session closed while frame was in flight")
)

// Gateway is the subset of the analysis backend the controller talks to.
type Gateway interface {
	StartRealtimeSession(ctx context.Context) (string, error)
	ProcessFrame(ctx context.Context, sessionID string, frameNumber int, frame []byte) (analysis.FrameResult, error)
	EndRealtimeSession(ctx context.Context, sessionID string) (*analysis.SessionSummary, error)
	RealtimeStatistics(ctx context.Context, sessionID string) (analysis.SessionStatistics, error)
}

// State is the lifecycle position of the controller.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateActive   State = "active"
	StateEnding   State = "ending"
)

// Status is a point-in-time view of the session.
type Status struct {
	State       State  `json:"state"`
	SessionID   string `json:"sessionId,omitempty"`
	FrameNumber int    `json:"frameNumber"`
	Busy        bool   `json:"busy"`
}

// Controller owns one realtime emotion session. Start and End are
// single-flight behind busy; frames are single-flight on their own and are
// dropped, never queued, while anything else is running.
type Controller struct {
	gateway Gateway

	mu          sync.Mutex
	sessionID   string
	frameNumber int
	busy        bool
	framing     bool
	// epoch changes whenever the session is torn down so late replies can be discarded.
	epoch uint64
}

func NewController(gateway Gateway) *Controller {
	return &Controller{gateway: gateway}
}

// Start opens a session, or returns the current one when already active.
func (c *Controller) Start(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.sessionID != "" {
		id := c.sessionID
		c.mu.Unlock()
		return id, nil
	}
	if c.busy {
		c.mu.Unlock()
		return "", ErrSessionBusy
	}
	c.busy = true
	epoch := c.epoch
	c.mu.Unlock()

	id, err := c.gateway.StartRealtimeSession(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	// Cancel already released busy; a newer call may own it now.
	if c.epoch != epoch {
		log.Info().Str("session_id", id).Msg("realtime session cancelled while starting, discarding")
		return "", ErrSessionClosed
	}
	c.busy = false

	if err != nil {
		log.Warn().Err(err).Msg("realtime session start failed")
		return "", fmt.Errorf("start realtime session: %w", err)
	}

	c.sessionID = id
	c.frameNumber = 0
	log.Info().Str("session_id", id).Msg("realtime session started")
	return id, nil
}

// ProcessFrame submits one frame. The frame counter advances after every
// attempt that reached the backend, whatever its outcome.
func (c *Controller) ProcessFrame(ctx context.Context, frame []byte) (analysis.FrameResult, error) {
	c.mu.Lock()
	if c.sessionID == "" {
		c.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	if c.busy {
		c.mu.Unlock()
		return nil, ErrSessionBusy
	}
	if c.framing {
		c.mu.Unlock()
		return nil, ErrFrameInFlight
	}
	c.framing = true
	id, number, epoch := c.sessionID, c.frameNumber, c.epoch
	c.mu.Unlock()

	result, err := c.gateway.ProcessFrame(ctx, id, number, frame)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return nil, ErrSessionClosed
	}
	c.framing = false
	c.frameNumber++

	if err != nil {
		log.Warn().Err(err).Str("session_id", id).Int("frame", number).Msg("realtime frame failed")
		return nil, fmt.Errorf("process frame %d: %w", number, err)
	}
	return result, nil
}

// End closes the session. Local state is cleared whether or not the backend
// call succeeds.
func (c *Controller) End(ctx context.Context) (*analysis.SessionSummary, error) {
	c.mu.Lock()
	if c.sessionID == "" {
		c.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	if c.busy {
		c.mu.Unlock()
		return nil, ErrSessionBusy
	}
	c.busy = true
	id, epoch := c.sessionID, c.epoch
	c.mu.Unlock()

	summary, err := c.gateway.EndRealtimeSession(ctx, id)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		log.Info().Str("session_id", id).Msg("realtime session cancelled while ending, discarding reply")
		return nil, ErrSessionClosed
	}
	c.busy = false
	c.resetLocked()
	c.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Str("session_id", id).Msg("realtime session end failed")
		return nil, fmt.Errorf("end realtime session: %w", err)
	}
	if summary == nil {
		summary = &analysis.SessionSummary{}
	}
	log.Info().Str("session_id", id).Int("total_frames", summary.TotalFrames).Msg("realtime session ended")
	return summary, nil
}

// Cancel forgets the session locally and releases busy at once. Replies to
// calls still in flight are ignored when they arrive.
func (c *Controller) Cancel() {
	c.mu.Lock()
	id := c.sessionID
	c.busy = false
	c.framing = false
	c.resetLocked()
	c.mu.Unlock()

	if id != "" {
		log.Info().Str("session_id", id).Msg("realtime session cancelled")
	}
}

// Statistics fetches backend statistics for the active session.
func (c *Controller) Statistics(ctx context.Context) (analysis.SessionStatistics, error) {
	id := c.SessionID()
	if id == "" {
		return nil, ErrNoActiveSession
	}
	stats, err := c.gateway.RealtimeStatistics(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("realtime statistics: %w", err)
	}
	return stats, nil
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) FrameNumber() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameNumber
}

func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := StateIdle
	switch {
	case c.busy && c.sessionID == "":
		state = StateStarting
	case c.busy:
		state = StateEnding
	case c.sessionID != "":
		state = StateActive
	}
	return Status{State: state, SessionID: c.sessionID, FrameNumber: c.frameNumber, Busy: c.busy}
}

func (c *Controller) resetLocked() {
	c.sessionID = ""
	c.frameNumber = 0
	c.epoch++
}
