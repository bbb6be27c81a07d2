package emotion

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/moodchat/client/internal/model/analysis"
)

// 以下格式会被前端按原样解析，改动前需同步渲染端。

// FormatSentiment renders "Sentiment: X\nConfidence: 97.00%".
func FormatSentiment(res analysis.SentimentResult) string {
	return fmt.Sprintf("Sentiment: %s\nConfidence: %.2f%%", res.Sentiment, res.Prediction*100)
}

// FormatEmotion renders an image emotion result with its derived mood.
func FormatEmotion(res analysis.EmotionResult) string {
	return fmt.Sprintf("Emotion: %s\nConfidence: %.2f%%\nMood: %s", res.Emotion, res.Confidence*100, MoodOf(res.Emotion))
}

// FormatVideo renders the main video analysis message.
func FormatVideo(res analysis.VideoResult) string {
	return fmt.Sprintf("Dominant Emotion: %s\nEmotion Durations: %s\nEmotion Percentages: %s",
		res.DominantEmotion,
		joinValues(res.EmotionDurations, "%s - %.1fs"),
		joinValues(res.EmotionPercentages, "%s - %.1f%%"),
	)
}

// FormatSpeech renders a transcription; a missing summary renders as "".
func FormatSpeech(res analysis.SpeechResult) string {
	return fmt.Sprintf("Transcription: \"%s\"\nSummary: \"%s\"\nSentiment: %s\nPrediction Value: %.2f",
		res.Transcription, res.Summary, res.Sentiment, res.PredictionValue)
}

func FormatSummary(res analysis.SummaryResult) string {
	return fmt.Sprintf("Summary: \"%s\"", res.Summary)
}

// FormatLiveSummary renders the closing summary of a realtime session.
func FormatLiveSummary(res analysis.SessionSummary) string {
	dominant := res.DominantEmotion
	if dominant == "" {
		dominant, _ = Dominant(res.EmotionPercentages)
	}
	return fmt.Sprintf("Live Session Summary\nDominant Emotion: %s\nTotal Frames: %d\nEmotion Percentages: %s",
		dominant, res.TotalFrames, joinValues(res.EmotionPercentages, "%s - %.1f%%"))
}

func joinValues(values analysis.EmotionValues, layout string) string {
	parts := make([]string, 0, len(values))
	for _, item := range values {
		parts = append(parts, fmt.Sprintf(layout, item.Emotion, item.Value))
	}
	return strings.Join(parts, ", ")
}
