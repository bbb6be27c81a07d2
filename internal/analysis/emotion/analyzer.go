package emotion

import (
	"github.com/zhouzirui/moodchat/client/internal/model/analysis"
)

// Label 表示后端表情识别模型输出的情绪标签。
type Label string

const (
	Happy     Label = "Happy"
	Sad       Label = "Sad"
	Angry     Label = "Angry"
	Fearful   Label = "Fearful"
	Disgusted Label = "Disgusted"
	Surprised Label = "Surprised"
	Neutral   Label = "Neutral"
)

// Mood 是情绪标签的粗粒度极性。
type Mood string

const (
	MoodPositive Mood = "Positive"
	MoodNegative Mood = "Negative"
	MoodNeutral  Mood = "Neutral"
)

var moodByLabel = map[Label]Mood{
	Sad:       MoodNegative,
	Angry:     MoodNegative,
	Fearful:   MoodNegative,
	Disgusted: MoodNegative,
	Happy:     MoodPositive,
	Surprised: MoodPositive,
	Neutral:   MoodPositive,
}

// MoodOf 根据情绪标签推导整体心情，标签须与后端输出完全一致，未知标签视为中性。
func MoodOf(raw string) Mood {
	if mood, ok := moodByLabel[Label(raw)]; ok {
		return mood
	}
	return MoodNeutral
}

// Dominant 返回占比最高的情绪，并列时取靠前者。
func Dominant(values analysis.EmotionValues) (string, bool) {
	if len(values) == 0 {
		return "", false
	}

	best := values[0]
	for _, item := range values[1:] {
		if item.Value > best.Value {
			best = item
		}
	}
	return best.Emotion, true
}
