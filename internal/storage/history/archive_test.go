package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/moodchat/client/internal/model/analysis"
	"github.com/zhouzirui/moodchat/client/internal/model/chat"
	"github.com/zhouzirui/moodchat/client/internal/service/timeline"
)

func openArchive(t *testing.T) *Archive {
	t.Helper()
	archive, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })
	return archive
}

func waitForEntries(t *testing.T, archive *Archive, n int) []Entry {
	t.Helper()
	var entries []Entry
	require.Eventually(t, func() bool {
		var err error
		entries, err = archive.List(context.Background(), 0, 0)
		return err == nil && len(entries) == n
	}, 2*time.Second, 10*time.Millisecond)
	return entries
}

func TestArchiveRecordsSettledMessagesOnce(t *testing.T) {
	archive := openArchive(t)
	store := timeline.NewStore()
	unsubscribe := store.Subscribe(archive.Observe)
	defer unsubscribe()

	store.Append(chat.Message{Text: "I love this", Kind: chat.KindText, IsUser: true})
	handle := store.AppendLoading()
	store.Resolve(handle, chat.Resolution{
		Text:   "Sentiment: Positive\nConfidence: 97.00%",
		Result: &analysis.SentimentResult{Sentiment: "Positive", Prediction: 0.97},
	})
	store.Append(chat.Message{Text: "again", Kind: chat.KindText, IsUser: true})

	entries := waitForEntries(t, archive, 3)

	byID := make(map[string]Entry, len(entries))
	for _, entry := range entries {
		byID[entry.MessageID] = entry
	}
	resolved, ok := byID[handle]
	require.True(t, ok, "resolved placeholder should be archived under its handle")
	assert.False(t, resolved.IsUser)
	assert.JSONEq(t, `{"text":"","prediction":0.97,"sentiment":"Positive"}`, string(resolved.Result))
}

func TestArchiveSkipsPendingPlaceholders(t *testing.T) {
	archive := openArchive(t)

	archive.Observe([]chat.Message{
		{ID: "a", Text: "hello", Kind: chat.KindText, IsUser: true, CreatedAt: time.Now()},
		{ID: "b", Text: chat.LoadingText, Kind: chat.KindLoading, IsProcessing: true, CreatedAt: time.Now()},
	})

	entries := waitForEntries(t, archive, 1)
	assert.Equal(t, "a", entries[0].MessageID)
}

func TestArchiveListPagination(t *testing.T) {
	archive := openArchive(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var batch []chat.Message
	for i := 0; i < 5; i++ {
		batch = append(batch, chat.Message{
			ID:        string(rune('a' + i)),
			Text:      "m",
			Kind:      chat.KindText,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	archive.Observe(batch)
	waitForEntries(t, archive, 5)

	page, err := archive.List(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "d", page[0].MessageID)
	assert.Equal(t, "c", page[1].MessageID)
}

func TestArchiveObserveAfterCloseIsIgnored(t *testing.T) {
	archive, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	require.NoError(t, archive.Close())

	assert.NotPanics(t, func() {
		archive.Observe([]chat.Message{{ID: "late", Kind: chat.KindText}})
	})
}

func TestArchiveForgetsClearedMessages(t *testing.T) {
	archive := openArchive(t)
	store := timeline.NewStore()
	unsubscribe := store.Subscribe(archive.Observe)
	defer unsubscribe()

	store.Append(chat.Message{Text: "one", Kind: chat.KindText, IsUser: true})
	store.Append(chat.Message{Text: "two", Kind: chat.KindText, IsUser: true})
	waitForEntries(t, archive, 2)

	archive.mu.Lock()
	assert.Len(t, archive.seen, 2)
	archive.mu.Unlock()

	store.Clear()

	archive.mu.Lock()
	assert.Empty(t, archive.seen)
	archive.mu.Unlock()

	store.Append(chat.Message{Text: "three", Kind: chat.KindText, IsUser: true})
	entries := waitForEntries(t, archive, 3)
	assert.Equal(t, "three", entries[0].Text)
}
