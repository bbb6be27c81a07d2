package recording

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrRecordingActive  = errors.New("recording already in progress")
	ErrFlowOpen         = errors.New("another recording flow is open")
	ErrActionInProgress = errors.New("another action is in progress")
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrNotRecording     = errors.New("not recording")
)

// 用户可见的提示文案
const (
	NoticePermissionDenied = "Microphone permission is required to record audio"
	NoticeActionInProgress = "Please wait for the current action to finish"
	NoticeRecorderFailed   = "Could not start recording"
	NoticeRecordingFailed  = "Recording failed, nothing was sent"
)

// State is the recording lifecycle position.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

// Outcome tells the caller what EndRecording did with the file.
type Outcome string

const (
	OutcomeUploading Outcome = "uploading"
	OutcomeDiscarded Outcome = "discarded"
	OutcomeFailed    Outcome = "failed"
)

// Status is a point-in-time view of the controller.
type Status struct {
	State          State `json:"state"`
	ElapsedSeconds int   `json:"elapsedSeconds"`
	Cancelled      bool  `json:"cancelled"`
}

// Config wires the controller's collaborators. Gate, Permission, Recorder and
// Uploader are required.
type Config struct {
	Gate       *Gate
	Permission Permission
	Recorder   Recorder
	Uploader   Uploader
	Listener   Listener
	Tickers    TickerFactory
	// Busy reports whether some other UI action is running.
	Busy    func() bool
	TempDir string
	Format  Format
}

// Controller runs the hold-to-record flow for one entry surface.
type Controller struct {
	gate       *Gate
	permission Permission
	recorder   Recorder
	uploader   Uploader
	listener   Listener
	tickers    TickerFactory
	busy       func() bool
	tempDir    string
	format     Format
	now        func() time.Time

	mu        sync.Mutex
	state     State
	elapsed   int
	cancelled bool
	active    *activeRecording

	uploads sync.WaitGroup
}

type activeRecording struct {
	session Session
	path    string
	ticker  Ticker
	stop    chan struct{}
	done    chan struct{}
}

func NewController(cfg Config) *Controller {
	if cfg.Listener == nil {
		cfg.Listener = nopListener{}
	}
	if cfg.Tickers == nil {
		cfg.Tickers = SystemTickers
	}
	if cfg.Busy == nil {
		cfg.Busy = func() bool { return false }
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Format == (Format{}) {
		cfg.Format = DefaultFormat()
	}

	return &Controller{
		gate:       cfg.Gate,
		permission: cfg.Permission,
		recorder:   cfg.Recorder,
		uploader:   cfg.Uploader,
		listener:   cfg.Listener,
		tickers:    cfg.Tickers,
		busy:       cfg.Busy,
		tempDir:    cfg.TempDir,
		format:     cfg.Format,
		now:        time.Now,
		state:      StateIdle,
	}
}

// BeginRecording checks permission, starts the recorder and the 1s ticker.
// Precondition failures are reported through Listener.Notice as well as the
// returned error.
func (c *Controller) BeginRecording(ctx context.Context) error {
	c.mu.Lock()
	recording := c.state == StateRecording
	c.mu.Unlock()
	if recording {
		return ErrRecordingActive
	}
	if c.busy() {
		c.listener.Notice(NoticeActionInProgress)
		return ErrActionInProgress
	}
	if !c.gate.TryOpen() {
		return ErrFlowOpen
	}

	granted, err := c.permission.MicrophoneGranted(ctx)
	if err != nil || !granted {
		c.gate.Close()
		if err != nil {
			log.Warn().Err(err).Msg("microphone permission check failed")
		}
		c.listener.Notice(NoticePermissionDenied)
		return ErrPermissionDenied
	}

	path := c.newFilePath()
	session, err := c.recorder.Start(ctx, path, c.format)
	if err != nil {
		c.gate.Close()
		log.Error().Err(err).Str("path", path).Msg("failed to start recorder")
		c.listener.Notice(NoticeRecorderFailed)
		return fmt.Errorf("start recorder: %w", err)
	}

	active := &activeRecording{
		session: session,
		path:    path,
		ticker:  c.tickers(time.Second),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	c.state = StateRecording
	c.elapsed = 0
	c.cancelled = false
	c.active = active
	c.mu.Unlock()

	go c.runTicker(active)

	log.Info().Str("path", path).Msg("recording started")
	c.listener.StateChanged(StateRecording)
	c.listener.ElapsedChanged(0)
	return nil
}

func (c *Controller) runTicker(active *activeRecording) {
	defer close(active.done)
	for {
		select {
		case <-active.stop:
			return
		case <-active.ticker.C():
			c.mu.Lock()
			if c.active != active {
				c.mu.Unlock()
				return
			}
			c.elapsed++
			elapsed := c.elapsed
			c.mu.Unlock()
			c.listener.ElapsedChanged(elapsed)
		}
	}
}

// UpdateDrag re-evaluates cancel intent for the current horizontal drag.
// width is the control width, or 0 when unknown.
func (c *Controller) UpdateDrag(deltaX, width float64) bool {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return false
	}
	cancelled := ShouldCancel(deltaX, ThresholdFor(width))
	changed := cancelled != c.cancelled
	c.cancelled = cancelled
	c.mu.Unlock()

	if changed {
		c.listener.CancelIntentChanged(cancelled)
	}
	return cancelled
}

// EndRecording stops the ticker and the recorder, releases them, and either
// discards the file or hands it to the uploader in the background. The flow
// gate is released before the upload starts.
func (c *Controller) EndRecording(ctx context.Context, send bool) (Outcome, error) {
	c.mu.Lock()
	if c.state != StateRecording || c.active == nil {
		c.mu.Unlock()
		return "", ErrNotRecording
	}
	active := c.active
	cancelled := c.cancelled
	elapsed := c.elapsed
	c.active = nil
	c.state = StateIdle
	c.cancelled = false
	c.mu.Unlock()

	path, err := c.release(active)
	c.listener.StateChanged(StateIdle)

	if err != nil {
		log.Error().Err(err).Str("path", active.path).Msg("failed to stop recorder")
		c.listener.Notice(NoticeRecordingFailed)
		discard(active.path)
		return OutcomeFailed, fmt.Errorf("stop recorder: %w", err)
	}

	if !send || cancelled {
		log.Info().Bool("send", send).Bool("cancelled", cancelled).Int("elapsed", elapsed).Msg("recording discarded")
		discard(path)
		return OutcomeDiscarded, nil
	}

	log.Info().Str("path", path).Int("elapsed", elapsed).Msg("recording finished, uploading")
	uploadCtx := context.WithoutCancel(ctx)
	c.uploads.Add(1)
	go func() {
		defer c.uploads.Done()
		c.uploader.UploadRecording(uploadCtx, path)
	}()
	return OutcomeUploading, nil
}

// release stops ticking, stops the recorder and always disposes it and closes the gate.
func (c *Controller) release(active *activeRecording) (path string, err error) {
	defer c.gate.Close()
	defer func() {
		if disposeErr := active.session.Dispose(); disposeErr != nil {
			log.Warn().Err(disposeErr).Msg("failed to dispose recorder")
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recorder panicked: %v", r)
		}
	}()

	close(active.stop)
	active.ticker.Stop()
	<-active.done

	path, err = active.session.Stop()
	if path == "" {
		path = active.path
	}
	return path, err
}

// Wait blocks until background uploads started by EndRecording finish.
func (c *Controller) Wait() {
	c.uploads.Wait()
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, ElapsedSeconds: c.elapsed, Cancelled: c.cancelled}
}

func (c *Controller) newFilePath() string {
	name := fmt.Sprintf("recording_%d_%s.%s", c.now().UnixMilli(), uuid.NewString()[:8], c.format.Container)
	return filepath.Join(c.tempDir, name)
}

func discard(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("failed to remove recording")
	}
}
