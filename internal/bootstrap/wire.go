package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/moodchat/client/internal/audio"
	"github.com/zhouzirui/moodchat/client/internal/config"
	"github.com/zhouzirui/moodchat/client/internal/handler"
	chatHandler "github.com/zhouzirui/moodchat/client/internal/handler/chat"
	historyHandler "github.com/zhouzirui/moodchat/client/internal/handler/history"
	"github.com/zhouzirui/moodchat/client/internal/handler/live"
	realtimeHandler "github.com/zhouzirui/moodchat/client/internal/handler/realtime"
	recordingHandler "github.com/zhouzirui/moodchat/client/internal/handler/recording"
	"github.com/zhouzirui/moodchat/client/internal/service/chat"
	"github.com/zhouzirui/moodchat/client/internal/service/gateway"
	"github.com/zhouzirui/moodchat/client/internal/service/realtime"
	"github.com/zhouzirui/moodchat/client/internal/service/recording"
	"github.com/zhouzirui/moodchat/client/internal/service/timeline"
	"github.com/zhouzirui/moodchat/client/internal/storage/history"
	"github.com/zhouzirui/moodchat/client/internal/storage/media"
)

// App is the assembled runtime graph.
type App struct {
	Config       *config.Config
	Router       http.Handler
	Timeline     *timeline.Store
	Orchestrator *chat.Orchestrator
	Realtime     *realtime.Controller
	Recording    *recording.Controller
	Hub          *live.Hub
	Archive      *history.Archive

	chatHandler *chatHandler.Handler
	scroll      *chat.ScrollScheduler
	unsubscribe []func()
}

// Recorder builds the microphone recorder; tests swap it for a fake.
type Recorder func(cfg config.AudioConfig) (recording.Permission, recording.Recorder)

// FFMPEG is the default Recorder.
func FFMPEG(cfg config.AudioConfig) (recording.Permission, recording.Recorder) {
	return audio.BinaryPermission{Command: cfg.FFmpegPath}, audio.NewFFMPEGRecorder(cfg)
}

// Build wires all dependencies for cfg.
func Build(cfg *config.Config, newRecorder Recorder) (*App, error) {
	if newRecorder == nil {
		newRecorder = FFMPEG
	}

	mediaStore, err := media.New(filepath.Join(cfg.Storage.DataDir, "media"))
	if err != nil {
		return nil, err
	}

	tempDir := filepath.Join(cfg.Storage.DataDir, "tmp")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	store := timeline.NewStore()
	hub := live.NewHub(store)
	scroll := chat.NewScrollScheduler(hub.Scroll)

	client := gateway.New(cfg.Backend)
	orchestrator := chat.NewOrchestrator(store, client, mediaStore, scroll, chat.Options{
		FollowUpDelay: cfg.Chat.FollowUpDelay,
	})

	realtimeController := realtime.NewController(client)

	permission, recorder := newRecorder(cfg.Audio)
	format := recording.DefaultFormat()
	format.SampleRate = cfg.Audio.SampleRate
	format.Bitrate = cfg.Audio.Bitrate

	recordingController := recording.NewController(recording.Config{
		Gate:       recording.NewGate(),
		Permission: permission,
		Recorder:   recorder,
		Uploader:   orchestrator,
		Listener:   hub,
		Busy:       orchestrator.PickingMedia,
		TempDir:    tempDir,
		Format:     format,
	})

	app := &App{
		Config:       cfg,
		Timeline:     store,
		Orchestrator: orchestrator,
		Realtime:     realtimeController,
		Recording:    recordingController,
		Hub:          hub,
		scroll:       scroll,
	}
	app.unsubscribe = append(app.unsubscribe, store.Subscribe(hub.Timeline))

	// 历史归档是可选的，未配置 HISTORY_DB 时不启用
	var lister historyHandler.Lister
	if cfg.Storage.HistoryDB != "" {
		archive, err := history.Open(cfg.Storage.HistoryDB)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Archive = archive
		app.unsubscribe = append(app.unsubscribe, store.Subscribe(archive.Observe))
		lister = archive
		log.Info().Str("path", cfg.Storage.HistoryDB).Msg("history archive enabled")
	}

	app.chatHandler = chatHandler.New(orchestrator)
	app.Router = handler.NewRouter(handler.Routes{
		Chat:      app.chatHandler,
		Realtime:  realtimeHandler.New(realtimeController, orchestrator, hub),
		Recording: recordingHandler.New(recordingController),
		History:   historyHandler.New(lister),
		Live:      hub,
	})

	return app, nil
}

// Close waits for background turns and uploads, then releases resources.
func (a *App) Close() {
	if a.chatHandler != nil {
		a.chatHandler.Wait()
	}
	if a.Recording != nil {
		// 关闭时丢弃未结束的录音，保证 ffmpeg 进程与计时器被释放
		if a.Recording.Status().State == recording.StateRecording {
			if _, err := a.Recording.EndRecording(context.Background(), false); err != nil {
				log.Warn().Err(err).Msg("discard recording on shutdown")
			}
		}
		a.Recording.Wait()
	}
	if a.Realtime != nil {
		a.Realtime.Cancel()
	}

	for _, unsubscribe := range a.unsubscribe {
		unsubscribe()
	}
	a.unsubscribe = nil

	if a.Archive != nil {
		if err := a.Archive.Close(); err != nil {
			log.Warn().Err(err).Msg("close history archive")
		}
	}
	if a.scroll != nil {
		a.scroll.Close()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
}
