package analysis

// SentimentResult 文本情感分析结果
type SentimentResult struct {
	ID         any     `json:"id,omitempty"`
	Text       string  `json:"text"`
	Prediction float64 `json:"prediction"`
	Sentiment  string  `json:"sentiment"`
	CreatedAt  string  `json:"created_at,omitempty"`
}

// EmotionResult 图片表情识别结果
type EmotionResult struct {
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
}

// VideoResult 视频分析结果，包含生成的 PDF 报告与抽取的音轨地址
type VideoResult struct {
	DominantEmotion    string        `json:"dominant_emotion"`
	EmotionPercentages EmotionValues `json:"emotion_percentages"`
	EmotionDurations   EmotionValues `json:"emotion_durations"`
	PDFReport          string        `json:"pdf_report"`
	AudioFile          string        `json:"audio_file"`
}

// SpeechResult 语音转写结果
type SpeechResult struct {
	ID              any     `json:"id,omitempty"`
	Transcription   string  `json:"transcription"`
	Summary         string  `json:"summary,omitempty"`
	Sentiment       string  `json:"sentiment"`
	PredictionValue float64 `json:"prediction_value"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// SummaryResult 文本摘要结果
type SummaryResult struct {
	Summary      string `json:"summary"`
	OriginalText string `json:"original_text,omitempty"`
}

// SessionStartResponse 实时会话创建响应
type SessionStartResponse struct {
	SessionData struct {
		SessionID string `json:"session_id"`
	} `json:"session_data"`
}

// FrameResult 单帧分析结果，字段随后端版本变化，保持为通用映射
type FrameResult map[string]any

// SessionSummary 实时会话结束时的汇总
type SessionSummary struct {
	DominantEmotion    string        `json:"dominant_emotion"`
	TotalFrames        int           `json:"total_frames"`
	EmotionPercentages EmotionValues `json:"emotion_percentages"`
}

// SessionEndResponse 结束实时会话的响应
type SessionEndResponse struct {
	SessionData SessionSummary `json:"session_data"`
}

// SessionStatistics 实时会话统计信息
type SessionStatistics map[string]any
