package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/moodchat/client/internal/analysis/emotion"
	"github.com/zhouzirui/moodchat/client/internal/model/analysis"
	"github.com/zhouzirui/moodchat/client/internal/model/chat"
	"github.com/zhouzirui/moodchat/client/internal/service/timeline"
	"github.com/zhouzirui/moodchat/client/internal/storage/media"
)

var (
	ErrEmptyText  = errors.New("text is required")
	ErrEmptyMedia = errors.New("media payload is empty")
)

// Gateway is the analysis backend as seen by the orchestrator.
type Gateway interface {
	AnalyzeSentiment(ctx context.Context, text string) *analysis.SentimentResult
	AnalyzeImage(ctx context.Context, image []byte) *analysis.EmotionResult
	AnalyzeVideo(ctx context.Context, video []byte) *analysis.VideoResult
	TranscribeSpeech(ctx context.Context, audioPath string) (*analysis.SpeechResult, error)
	Summarize(ctx context.Context, text string) *analysis.SummaryResult
	ResolveURL(ref string) string
}

// MediaStore keeps durable copies of user media.
type MediaStore interface {
	Save(kind media.Kind, name string, data []byte) (string, error)
	Import(kind media.Kind, src string) (string, error)
}

// Options tunes the orchestrator.
type Options struct {
	// FollowUpDelay separates the video result from its PDF and audio follow-ups.
	FollowUpDelay time.Duration
}

// Orchestrator drives every "user entry, placeholder, backend call, resolve"
// turn on the shared timeline. Each call resolves its own placeholder by
// handle, so concurrent turns never race on the same entry.
type Orchestrator struct {
	store   *timeline.Store
	gateway Gateway
	media   MediaStore
	scroll  *ScrollScheduler
	opts    Options

	inflight atomic.Int32
	// picking counts turns started from a picked file; recordings do not count.
	picking atomic.Int32
}

// NewOrchestrator wires the orchestrator. scroll may be nil.
func NewOrchestrator(store *timeline.Store, gateway Gateway, mediaStore MediaStore, scroll *ScrollScheduler, opts Options) *Orchestrator {
	return &Orchestrator{
		store:   store,
		gateway: gateway,
		media:   mediaStore,
		scroll:  scroll,
		opts:    opts,
	}
}

// Busy reports whether any turn is still waiting on the backend.
func (o *Orchestrator) Busy() bool {
	return o.inflight.Load() > 0
}

// PickingMedia reports whether a picked image, video or audio file is still
// being analyzed. The recording flow refuses to start while it is.
func (o *Orchestrator) PickingMedia() bool {
	return o.picking.Load() > 0
}

// Timeline exposes the store the orchestrator writes to.
func (o *Orchestrator) Timeline() *timeline.Store {
	return o.store
}

// SendText echoes the text and resolves with its sentiment.
func (o *Orchestrator) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	o.appendUser(chat.Message{Text: text, Kind: chat.KindText})
	o.turn(ctx, "sentiment", func(ctx context.Context) chat.Resolution {
		res := o.gateway.AnalyzeSentiment(ctx, text)
		if res == nil {
			return noResponse()
		}
		return chat.Resolution{Text: emotion.FormatSentiment(*res), Kind: chat.KindText, Result: res}
	})
	return nil
}

// Summarize echoes the text and resolves with a summary.
func (o *Orchestrator) Summarize(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	o.appendUser(chat.Message{Text: text, Kind: chat.KindText})
	o.turn(ctx, "summarize", func(ctx context.Context) chat.Resolution {
		res := o.gateway.Summarize(ctx, text)
		if res == nil {
			return noResponse()
		}
		return chat.Resolution{Text: emotion.FormatSummary(*res), Kind: chat.KindSummarize, Result: res}
	})
	return nil
}

// SendImage shows the image and resolves with the detected emotion.
func (o *Orchestrator) SendImage(ctx context.Context, name string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyMedia
	}
	o.picking.Add(1)
	defer o.picking.Add(-1)

	ref := o.keep(media.KindImage, name, data)
	o.appendUser(chat.Message{Kind: chat.KindImage, AttachmentRef: ref})
	o.turn(ctx, "image", func(ctx context.Context) chat.Resolution {
		res := o.gateway.AnalyzeImage(ctx, data)
		if res == nil {
			return noResponse()
		}
		return chat.Resolution{Text: emotion.FormatEmotion(*res), Kind: chat.KindText, Result: res}
	})
	return nil
}

// SendVideo shows the video, resolves with the emotion breakdown and then
// appends the PDF report and the extracted audio as their own entries.
func (o *Orchestrator) SendVideo(ctx context.Context, name string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyMedia
	}
	o.picking.Add(1)
	defer o.picking.Add(-1)

	ref := o.keep(media.KindVideo, name, data)
	o.appendUser(chat.Message{Kind: chat.KindVideo, AttachmentRef: ref})

	var result *analysis.VideoResult
	o.turn(ctx, "video", func(ctx context.Context) chat.Resolution {
		result = o.gateway.AnalyzeVideo(ctx, data)
		if result == nil {
			return noResponse()
		}
		return chat.Resolution{Text: emotion.FormatVideo(*result), Kind: chat.KindText, Result: result}
	})
	if result == nil {
		return nil
	}

	if pdf := o.gateway.ResolveURL(result.PDFReport); pdf != "" {
		if !o.pause(ctx) {
			return nil
		}
		o.appendReply(chat.Message{Text: "PDF Report", Kind: chat.KindPdf, AttachmentRef: pdf})
	}
	if audio := o.gateway.ResolveURL(result.AudioFile); audio != "" {
		if !o.pause(ctx) {
			return nil
		}
		o.appendReply(chat.Message{Text: "Extracted Audio", Kind: chat.KindDownloadAudio, AttachmentRef: audio})
	}
	return nil
}

// SendAudio stores uploaded audio bytes and transcribes them.
func (o *Orchestrator) SendAudio(ctx context.Context, name string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyMedia
	}
	o.picking.Add(1)
	defer o.picking.Add(-1)

	path, err := o.media.Save(media.KindAudio, name, data)
	if err != nil {
		return fmt.Errorf("store audio: %w", err)
	}
	o.transcribe(ctx, path)
	return nil
}

// UploadRecording copies a finished recording into durable storage and
// transcribes it. The temporary recording is removed once copied.
func (o *Orchestrator) UploadRecording(ctx context.Context, path string) {
	durable, err := o.media.Import(media.KindAudio, path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to keep recording, using temp file")
		durable = path
	} else if rmErr := os.Remove(path); rmErr != nil {
		log.Debug().Err(rmErr).Str("path", path).Msg("failed to remove temp recording")
	}
	o.transcribe(ctx, durable)
}

func (o *Orchestrator) transcribe(ctx context.Context, path string) {
	o.appendUser(chat.Message{Text: "Audio message", Kind: chat.KindAudio, AttachmentRef: path})
	o.turn(ctx, "speech", func(ctx context.Context) chat.Resolution {
		res, err := o.gateway.TranscribeSpeech(ctx, path)
		if err != nil {
			return chat.Resolution{Text: speechErrorText(err), Kind: chat.KindText}
		}
		if res == nil {
			return noResponse()
		}
		return chat.Resolution{Text: emotion.FormatSpeech(*res), Kind: chat.KindSpeechToText, AttachmentRef: path, Result: res}
	})
}

// RecordLiveSession appends the closing summary of a realtime session.
func (o *Orchestrator) RecordLiveSession(summary analysis.SessionSummary) {
	o.appendReply(chat.Message{
		Text:   emotion.FormatLiveSummary(summary),
		Kind:   chat.KindLiveVideo,
		Result: summary,
	})
}

// Clear empties the timeline. Turns still in flight resolve into nothing.
func (o *Orchestrator) Clear() {
	o.store.Clear()
	o.requestScroll()
}

// turn appends a placeholder, runs call and always resolves the placeholder,
// even if call panics.
func (o *Orchestrator) turn(ctx context.Context, name string, call func(context.Context) chat.Resolution) {
	handle := o.store.AppendLoading()
	o.requestScroll()
	o.inflight.Add(1)

	resolution := chat.Resolution{Text: errorText(errors.New("request aborted")), Kind: chat.KindText}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("turn", name).Msg("chat turn panicked")
		}
		if !o.store.Resolve(handle, resolution) {
			log.Debug().Str("turn", name).Msg("placeholder gone before resolve")
		}
		o.inflight.Add(-1)
		o.requestScroll()
	}()

	started := time.Now()
	resolution = call(ctx)
	log.Debug().Str("turn", name).Dur("took", time.Since(started)).Msg("chat turn resolved")
}

func (o *Orchestrator) keep(kind media.Kind, name string, data []byte) string {
	path, err := o.media.Save(kind, name, data)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("failed to keep media copy")
		return ""
	}
	return path
}

func (o *Orchestrator) appendUser(message chat.Message) {
	message.IsUser = true
	o.store.Append(message)
	o.requestScroll()
}

func (o *Orchestrator) appendReply(message chat.Message) {
	message.IsUser = false
	o.store.Append(message)
	o.requestScroll()
}

func (o *Orchestrator) pause(ctx context.Context) bool {
	if o.opts.FollowUpDelay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(o.opts.FollowUpDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) requestScroll() {
	if o.scroll != nil {
		o.scroll.Request()
	}
}
