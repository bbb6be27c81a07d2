package recording

import (
	"context"
	"time"
)

// Format describes the encoded file the recorder produces.
type Format struct {
	Container  string
	Codec      string
	SampleRate int
	Channels   int
	Bitrate    string
}

// DefaultFormat is low-bitrate mono AAC, which the transcription backend accepts.
func DefaultFormat() Format {
	return Format{
		Container:  "m4a",
		Codec:      "aac",
		SampleRate: 16000,
		Channels:   1,
		Bitrate:    "32k",
	}
}

// Permission reports whether the microphone may be used.
type Permission interface {
	MicrophoneGranted(ctx context.Context) (bool, error)
}

// Recorder starts writing microphone audio to a file.
type Recorder interface {
	Start(ctx context.Context, path string, format Format) (Session, error)
}

// Session is one running recording.
type Session interface {
	// Stop finishes the file and returns its path.
	Stop() (string, error)
	// Dispose releases recorder resources; safe after Stop.
	Dispose() error
}

// Ticker delivers the elapsed-time ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(d time.Duration) Ticker

// Listener receives UI-facing recording events.
type Listener interface {
	StateChanged(state State)
	ElapsedChanged(seconds int)
	CancelIntentChanged(cancelled bool)
	Notice(message string)
}

// Uploader takes a finished recording and delivers it to the timeline.
type Uploader interface {
	UploadRecording(ctx context.Context, path string)
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

// SystemTickers is the wall-clock TickerFactory.
func SystemTickers(d time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(d)}
}

type nopListener struct{}

func (nopListener) StateChanged(State)       {}
func (nopListener) ElapsedChanged(int)       {}
func (nopListener) CancelIntentChanged(bool) {}
func (nopListener) Notice(string)            {}
