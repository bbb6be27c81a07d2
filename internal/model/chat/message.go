package chat

import "time"

// Kind discriminates how a timeline entry is rendered.
type Kind string

const (
	KindText          Kind = "text"
	KindAudio         Kind = "audio"
	KindImage         Kind = "image"
	KindVideo         Kind = "video"
	KindLiveVideo     Kind = "live_video"
	KindSpeechToText  Kind = "speech_to_text"
	KindLoading       Kind = "loading"
	KindPdf           Kind = "pdf"
	KindDownloadAudio Kind = "download_audio"
	KindSummarize     Kind = "summarize"
)

// LoadingText is the sentinel content of loading placeholders; renderers ignore it.
const LoadingText = "..."

// Message is one entry in the chat timeline. Entries are replaced, never
// edited in place.
type Message struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	Kind          Kind      `json:"kind"`
	IsUser        bool      `json:"isUser"`
	AttachmentRef string    `json:"attachmentRef,omitempty"`
	IsProcessing  bool      `json:"isProcessing"`
	Result        any       `json:"result,omitempty"` // structured backend result behind Text
	CreatedAt     time.Time `json:"createdAt"`
}

// IsPendingLoading reports whether the entry is an unresolved placeholder.
func (m Message) IsPendingLoading() bool {
	return m.Kind == KindLoading
}

// Resolution is the content that replaces a loading placeholder.
type Resolution struct {
	Text          string
	Kind          Kind
	AttachmentRef string
	Result        any
}
