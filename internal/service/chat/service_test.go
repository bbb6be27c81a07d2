package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/moodchat/client/internal/config"
	"github.com/zhouzirui/moodchat/client/internal/model/analysis"
	"github.com/zhouzirui/moodchat/client/internal/model/chat"
	"github.com/zhouzirui/moodchat/client/internal/service/gateway"
	"github.com/zhouzirui/moodchat/client/internal/service/timeline"
	"github.com/zhouzirui/moodchat/client/internal/storage/media"
)

type fakeGateway struct {
	sentiment  *analysis.SentimentResult
	emotion    *analysis.EmotionResult
	video      *analysis.VideoResult
	speech     *analysis.SpeechResult
	speechErr  error
	summary    *analysis.SummaryResult
	panicOn    string
	imageGate  chan struct{}
	speechGate chan struct{}

	mu          sync.Mutex
	speechPaths []string
}

func (f *fakeGateway) AnalyzeSentiment(context.Context, string) *analysis.SentimentResult {
	if f.panicOn == "sentiment" {
		panic("decoder exploded")
	}
	return f.sentiment
}

func (f *fakeGateway) AnalyzeImage(context.Context, []byte) *analysis.EmotionResult {
	if f.imageGate != nil {
		<-f.imageGate
	}
	return f.emotion
}

func (f *fakeGateway) AnalyzeVideo(context.Context, []byte) *analysis.VideoResult {
	return f.video
}

func (f *fakeGateway) TranscribeSpeech(_ context.Context, path string) (*analysis.SpeechResult, error) {
	f.mu.Lock()
	f.speechPaths = append(f.speechPaths, path)
	f.mu.Unlock()
	if f.speechGate != nil {
		<-f.speechGate
	}
	return f.speech, f.speechErr
}

func (f *fakeGateway) Summarize(context.Context, string) *analysis.SummaryResult {
	return f.summary
}

func (f *fakeGateway) ResolveURL(ref string) string {
	if ref == "" {
		return ""
	}
	return "https://api.example.com" + ref
}

func newOrchestrator(t *testing.T, gw Gateway) (*Orchestrator, *timeline.Store) {
	t.Helper()
	mediaStore, err := media.New(t.TempDir())
	require.NoError(t, err)
	store := timeline.NewStore()
	return NewOrchestrator(store, gw, mediaStore, nil, Options{}), store
}

func requireNoLoading(t *testing.T, store *timeline.Store) {
	t.Helper()
	for _, message := range store.Snapshot() {
		require.NotEqual(t, chat.KindLoading, message.Kind, "placeholder left unresolved: %+v", message)
		require.False(t, message.IsProcessing)
	}
}

func TestSendTextResolvesWithSentiment(t *testing.T) {
	gw := &fakeGateway{sentiment: &analysis.SentimentResult{Prediction: 0.97, Sentiment: "Positive"}}
	orch, store := newOrchestrator(t, gw)

	require.NoError(t, orch.SendText(context.Background(), "I love this"))

	messages := store.Snapshot()
	require.Len(t, messages, 2)
	assert.True(t, messages[0].IsUser)
	assert.Equal(t, "I love this", messages[0].Text)
	assert.False(t, messages[1].IsUser)
	assert.Equal(t, "Sentiment: Positive\nConfidence: 97.00%", messages[1].Text)
	assert.Equal(t, gw.sentiment, messages[1].Result)
	assert.False(t, orch.Busy())
}

func TestSendTextRejectsBlank(t *testing.T) {
	orch, store := newOrchestrator(t, &fakeGateway{})

	assert.ErrorIs(t, orch.SendText(context.Background(), "   "), ErrEmptyText)
	assert.Empty(t, store.Snapshot())
}

func TestSendImageResolvesWithEmotion(t *testing.T) {
	gw := &fakeGateway{emotion: &analysis.EmotionResult{Emotion: "Sad", Confidence: 0.3458}}
	orch, store := newOrchestrator(t, gw)

	require.NoError(t, orch.SendImage(context.Background(), "face.jpg", []byte("jpeg")))

	messages := store.Snapshot()
	require.Len(t, messages, 2)
	assert.Equal(t, chat.KindImage, messages[0].Kind)
	assert.FileExists(t, messages[0].AttachmentRef)
	assert.Equal(t, "Emotion: Sad\nConfidence: 34.58%\nMood: Negative", messages[1].Text)
}

func TestSendVideoAppendsFollowUps(t *testing.T) {
	gw := &fakeGateway{video: &analysis.VideoResult{
		DominantEmotion:    "Sad",
		EmotionDurations:   analysis.EmotionValues{{Emotion: "Angry", Value: 5.5}, {Emotion: "Sad", Value: 8.9}},
		EmotionPercentages: analysis.EmotionValues{{Emotion: "Angry", Value: 37.5}, {Emotion: "Sad", Value: 62.5}},
		PDFReport:          "/media/report.pdf",
		AudioFile:          "/media/audio.mp3",
	}}
	mediaStore, err := media.New(t.TempDir())
	require.NoError(t, err)
	store := timeline.NewStore()
	orch := NewOrchestrator(store, gw, mediaStore, nil, Options{FollowUpDelay: 10 * time.Millisecond})

	start := time.Now()
	require.NoError(t, orch.SendVideo(context.Background(), "clip.mp4", []byte("mp4")))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	messages := store.Snapshot()
	require.Len(t, messages, 4)
	assert.Equal(t, chat.KindVideo, messages[0].Kind)
	assert.Equal(t,
		"Dominant Emotion: Sad\nEmotion Durations: Angry - 5.5s, Sad - 8.9s\nEmotion Percentages: Angry - 37.5%, Sad - 62.5%",
		messages[1].Text)
	assert.Equal(t, chat.KindPdf, messages[2].Kind)
	assert.Equal(t, "https://api.example.com/media/report.pdf", messages[2].AttachmentRef)
	assert.Equal(t, chat.KindDownloadAudio, messages[3].Kind)
	assert.Equal(t, "https://api.example.com/media/audio.mp3", messages[3].AttachmentRef)
}

func TestSendVideoFailureSkipsFollowUps(t *testing.T) {
	orch, store := newOrchestrator(t, &fakeGateway{})

	require.NoError(t, orch.SendVideo(context.Background(), "clip.mp4", []byte("mp4")))

	messages := store.Snapshot()
	require.Len(t, messages, 2)
	assert.Equal(t, NoResponseText, messages[1].Text)
}

func TestSummarizeResolvesWithSummaryKind(t *testing.T) {
	orch, store := newOrchestrator(t, &fakeGateway{summary: &analysis.SummaryResult{Summary: "short"}})

	require.NoError(t, orch.Summarize(context.Background(), "a long text that needs summarizing"))

	messages := store.Snapshot()
	require.Len(t, messages, 2)
	assert.Equal(t, chat.KindSummarize, messages[1].Kind)
	assert.Equal(t, `Summary: "short"`, messages[1].Text)
}

func TestUploadRecordingKeepsDurableCopy(t *testing.T) {
	gw := &fakeGateway{speech: &analysis.SpeechResult{Transcription: "hi", Sentiment: "Neutral", PredictionValue: 0.5}}
	orch, store := newOrchestrator(t, gw)

	temp := filepath.Join(t.TempDir(), "recording.m4a")
	require.NoError(t, os.WriteFile(temp, []byte("aac"), 0o600))

	orch.UploadRecording(context.Background(), temp)

	messages := store.Snapshot()
	require.Len(t, messages, 2)
	assert.Equal(t, chat.KindAudio, messages[0].Kind)
	assert.NotEqual(t, temp, messages[0].AttachmentRef)
	assert.FileExists(t, messages[0].AttachmentRef)
	assert.NoFileExists(t, temp)
	assert.Equal(t, []string{messages[0].AttachmentRef}, gw.speechPaths)
	assert.Equal(t, chat.KindSpeechToText, messages[1].Kind)
	assert.Equal(t, "Transcription: \"hi\"\nSummary: \"\"\nSentiment: Neutral\nPrediction Value: 0.50", messages[1].Text)
}

func TestSpeechErrorsBecomeInlineText(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{err: fmt.Errorf("wrap: %w", gateway.ErrAudioMissing), want: "Error: Recording file not found"},
		{err: gateway.ErrAudioEmpty, want: "Error: Recording is empty"},
		{err: &gateway.StatusError{Code: 415}, want: "Error: Server rejected the audio (status 415)"},
		{err: errors.New("dial tcp: connection refused"), want: "Error: dial tcp: connection refused"},
	}

	for _, tc := range cases {
		orch, store := newOrchestrator(t, &fakeGateway{speechErr: tc.err})
		require.NoError(t, orch.SendAudio(context.Background(), "clip.m4a", []byte("aac")))

		messages := store.Snapshot()
		require.Len(t, messages, 2)
		assert.Equal(t, tc.want, messages[1].Text)
		requireNoLoading(t, store)
	}
}

func TestPanickingCallStillResolves(t *testing.T) {
	orch, store := newOrchestrator(t, &fakeGateway{panicOn: "sentiment"})

	require.NoError(t, orch.SendText(context.Background(), "boom"))

	requireNoLoading(t, store)
	assert.Equal(t, "Error: request aborted", store.Snapshot()[1].Text)
	assert.False(t, orch.Busy())
}

func TestPickingMediaOnlyCoversPickedFiles(t *testing.T) {
	gw := &fakeGateway{
		emotion:    &analysis.EmotionResult{Emotion: "Happy", Confidence: 0.9},
		speech:     &analysis.SpeechResult{Transcription: "hi", Sentiment: "Neutral"},
		imageGate:  make(chan struct{}),
		speechGate: make(chan struct{}),
	}
	orch, store := newOrchestrator(t, gw)

	recordingPath := filepath.Join(t.TempDir(), "recording.m4a")
	require.NoError(t, os.WriteFile(recordingPath, []byte("aac"), 0o600))

	uploaded := make(chan struct{})
	go func() {
		defer close(uploaded)
		orch.UploadRecording(context.Background(), recordingPath)
	}()
	require.Eventually(t, orch.Busy, 2*time.Second, 5*time.Millisecond)
	assert.False(t, orch.PickingMedia(), "a transcribing voice note must not block the next recording")

	picked := make(chan struct{})
	go func() {
		defer close(picked)
		_ = orch.SendImage(context.Background(), "face.jpg", []byte("jpg"))
	}()
	require.Eventually(t, orch.PickingMedia, 2*time.Second, 5*time.Millisecond)

	close(gw.imageGate)
	<-picked
	assert.False(t, orch.PickingMedia())

	close(gw.speechGate)
	<-uploaded
	assert.False(t, orch.Busy())
	requireNoLoading(t, store)
}

func TestRecordLiveSession(t *testing.T) {
	orch, store := newOrchestrator(t, &fakeGateway{})

	orch.RecordLiveSession(analysis.SessionSummary{
		DominantEmotion:    "Happy",
		TotalFrames:        4,
		EmotionPercentages: analysis.EmotionValues{{Emotion: "Happy", Value: 75}, {Emotion: "Sad", Value: 25}},
	})

	messages := store.Snapshot()
	require.Len(t, messages, 1)
	assert.Equal(t, chat.KindLiveVideo, messages[0].Kind)
	assert.Equal(t, "Live Session Summary\nDominant Emotion: Happy\nTotal Frames: 4\nEmotion Percentages: Happy - 75.0%, Sad - 25.0%", messages[0].Text)
}

func TestConcurrentTurnsResolveTheirOwnPlaceholders(t *testing.T) {
	gw := &fakeGateway{sentiment: &analysis.SentimentResult{Prediction: 0.5, Sentiment: "Neutral"}}
	orch, store := newOrchestrator(t, gw)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = orch.SendText(context.Background(), fmt.Sprintf("message %d", i))
		}(i)
	}
	wg.Wait()

	requireNoLoading(t, store)
	assert.Len(t, store.Snapshot(), 40)
}

// P1 against a real backend client: success, server error and timeout all
// leave zero placeholders behind.
func TestNoStuckLoadingAgainstBackend(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"success": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"prediction":0.97,"sentiment":"Positive"}`))
		},
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"timeout": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()

			client := gateway.New(config.BackendConfig{BaseURL: server.URL, TextTimeout: 100 * time.Millisecond})
			orch, store := newOrchestrator(t, client)

			require.NoError(t, orch.SendText(context.Background(), "I love this"))

			requireNoLoading(t, store)
			assert.Zero(t, store.PendingCount())
		})
	}
}
