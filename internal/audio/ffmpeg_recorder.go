package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/zhouzirui/moodchat/client/internal/config"
	"github.com/zhouzirui/moodchat/client/internal/service/recording"
)

const (
	startupProbe = 250 * time.Millisecond
	stopGrace    = 1200 * time.Millisecond
)

// FFMPEGRecorder records the microphone into an encoded file using ffmpeg.
type FFMPEGRecorder struct {
	command     string
	inputFormat string
	inputDevice string
}

func NewFFMPEGRecorder(cfg config.AudioConfig) *FFMPEGRecorder {
	command := cfg.FFmpegPath
	if command == "" {
		command = "ffmpeg"
	}
	inputFormat := cfg.InputFormat
	if inputFormat == "" {
		inputFormat = "pulse"
	}
	inputDevice := cfg.InputDevice
	if inputDevice == "" {
		inputDevice = "default"
	}
	return &FFMPEGRecorder{command: command, inputFormat: inputFormat, inputDevice: inputDevice}
}

// Start launches ffmpeg writing to path. The process is not bound to ctx
// because a recording outlives the request that began it; ctx only bounds
// the startup probe.
func (r *FFMPEGRecorder) Start(ctx context.Context, path string, format recording.Format) (recording.Session, error) {
	if format.SampleRate <= 0 {
		format.SampleRate = 16000
	}
	if format.Channels <= 0 {
		format.Channels = 1
	}
	if format.Codec == "" {
		format.Codec = "aac"
	}
	if format.Bitrate == "" {
		format.Bitrate = "32k"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-y",
		"-f", r.inputFormat,
		"-i", r.inputDevice,
		"-ac", strconv.Itoa(format.Channels),
		"-ar", strconv.Itoa(format.SampleRate),
		"-c:a", format.Codec,
		"-b:a", format.Bitrate,
		path,
	}

	cmd := exec.Command(r.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	session := &ffmpegSession{path: path, stderr: &stderr, process: cmd.Process, waitErr: waitErr}

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before recording started: %w: %s", err, trimmed(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before recording started")
	case <-ctx.Done():
		_ = session.Dispose()
		return nil, ctx.Err()
	case <-time.After(startupProbe):
	}

	return session, nil
}

type ffmpegSession struct {
	path   string
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
	exited   bool
}

// Stop asks ffmpeg to finish the file and waits for it to exit.
func (s *ffmpegSession) Stop() (string, error) {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeStopErr(err)
			}
		}
		s.exited = true

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, trimmed(s.stderr.String()))
		}
	})

	if s.stopErr != nil {
		return "", s.stopErr
	}
	if info, err := os.Stat(s.path); err != nil || info.Size() == 0 {
		return s.path, fmt.Errorf("ffmpeg produced no audio at %s", s.path)
	}
	return s.path, nil
}

// Dispose kills ffmpeg if Stop did not already reap it.
func (s *ffmpegSession) Dispose() error {
	if s.exited || s.process == nil {
		return nil
	}
	if err := s.process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimmed(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}

// BinaryPermission grants microphone access when the ffmpeg binary can be found.
type BinaryPermission struct {
	Command string
}

func (p BinaryPermission) MicrophoneGranted(context.Context) (bool, error) {
	command := p.Command
	if command == "" {
		command = "ffmpeg"
	}
	if _, err := exec.LookPath(command); err != nil {
		return false, nil
	}
	return true, nil
}
