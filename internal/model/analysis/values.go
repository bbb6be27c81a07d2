package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/buger/jsonparser"
)

// EmotionValue pairs an emotion label with a number (percentage, seconds, ...).
type EmotionValue struct {
	Emotion string
	Value   float64
}

// EmotionValues is a JSON object of emotion -> number that keeps the key order
// the backend sent, so displays list emotions the way the server ranked them.
type EmotionValues []EmotionValue

// UnmarshalJSON decodes an object such as {"Angry":5.5,"Sad":8.9}.
func (v *EmotionValues) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = nil
		return nil
	}

	out := make(EmotionValues, 0, 8)
	err := jsonparser.ObjectEach(trimmed, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(key)
		if err != nil {
			return fmt.Errorf("emotion key %q: %w", key, err)
		}

		var number float64
		switch dataType {
		case jsonparser.Number:
			number, err = jsonparser.ParseFloat(value)
		case jsonparser.String:
			// 部分后端版本会把数值序列化为字符串
			number, err = strconv.ParseFloat(string(value), 64)
		case jsonparser.Null:
			number = 0
		default:
			err = fmt.Errorf("unsupported value type %s", dataType)
		}
		if err != nil {
			return fmt.Errorf("emotion %q: %w", name, err)
		}

		out = append(out, EmotionValue{Emotion: name, Value: number})
		return nil
	})
	if err != nil {
		return fmt.Errorf("decode emotion map: %w", err)
	}

	*v = out
	return nil
}

// MarshalJSON writes the values back as an object in the same order.
func (v EmotionValues) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(item.Emotion)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(item.Value, 'f', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Lookup returns the value recorded for emotion.
func (v EmotionValues) Lookup(emotion string) (float64, bool) {
	for _, item := range v {
		if item.Emotion == emotion {
			return item.Value, true
		}
	}
	return 0, false
}
