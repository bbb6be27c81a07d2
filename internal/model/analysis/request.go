package analysis

// SentimentRequest 文本情感分析请求
type SentimentRequest struct {
	Text string `json:"text"`
}

// SummarizeRequest 文本摘要请求，长度约束由客户端根据词数计算
type SummarizeRequest struct {
	OriginalText string `json:"original_text"`
	MinLength    int    `json:"min_length"`
	MaxLength    int    `json:"max_length"`
}

// FrameRequest 实时情绪分析的单帧请求（base64 JSON 传输方式）
type FrameRequest struct {
	SessionID   string `json:"session_id"`
	FrameNumber int    `json:"frame_number"`
	FrameData   string `json:"frame_data"`
}

// SessionEndRequest 结束实时会话请求
type SessionEndRequest struct {
	SessionID string `json:"session_id"`
}
