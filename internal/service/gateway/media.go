package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/moodchat/client/internal/model/analysis"
)

const (
	minSummaryLength = 5
	maxSummaryLength = 100
)

// AnalyzeSentiment 文本情感分析，失败时返回 nil。
func (c *Client) AnalyzeSentiment(ctx context.Context, text string) *analysis.SentimentResult {
	var out analysis.SentimentResult
	err := c.send(ctx, c.cfg.TextTimeout, http.MethodPost, c.endpoints.Sentiment, func(r *resty.Request) {
		r.SetBody(analysis.SentimentRequest{Text: text})
	}, &out)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", "sentiment").Msg("analysis request failed")
		return nil
	}
	return &out
}

// AnalyzeImage 图片表情识别，失败时返回 nil。
func (c *Client) AnalyzeImage(ctx context.Context, image []byte) *analysis.EmotionResult {
	var out analysis.EmotionResult
	err := c.send(ctx, c.cfg.MediaTimeout, http.MethodPost, c.endpoints.Image, func(r *resty.Request) {
		r.SetMultipartField("image", "image.jpg", "image/jpeg", bytes.NewReader(image))
	}, &out)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", "image").Int("bytes", len(image)).Msg("analysis request failed")
		return nil
	}
	return &out
}

// AnalyzeVideo 视频情绪分析，使用长超时以容忍大文件上传，失败时返回 nil。
func (c *Client) AnalyzeVideo(ctx context.Context, video []byte) *analysis.VideoResult {
	var out analysis.VideoResult
	err := c.send(ctx, c.cfg.VideoTimeout, http.MethodPost, c.endpoints.Video, func(r *resty.Request) {
		r.SetMultipartField("video", "video.mp4", "video/mp4", bytes.NewReader(video))
	}, &out)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", "video").Int("bytes", len(video)).Msg("analysis request failed")
		return nil
	}
	return &out
}

// TranscribeSpeech 语音转写。与其他方法不同，所有失败都会以 error 返回，
// 调用方据此区分文件缺失、服务端拒绝与网络故障。
func (c *Client) TranscribeSpeech(ctx context.Context, audioPath string) (*analysis.SpeechResult, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrAudioMissing, audioPath)
		}
		return nil, fmt.Errorf("stat audio file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrAudioMissing, audioPath)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAudioEmpty, audioPath)
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	var out analysis.SpeechResult
	err = c.send(ctx, c.cfg.MediaTimeout, http.MethodPost, c.endpoints.Speech, func(r *resty.Request) {
		r.SetMultipartField("audio", filepath.Base(audioPath), "application/octet-stream", file)
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("transcribe speech: %w", err)
	}
	return &out, nil
}

// Summarize 文本摘要，长度约束由词数推导，失败时返回 nil。
func (c *Client) Summarize(ctx context.Context, text string) *analysis.SummaryResult {
	minLength, maxLength := SummaryLengths(text)

	var out analysis.SummaryResult
	err := c.send(ctx, c.cfg.TextTimeout, http.MethodPost, c.endpoints.Summarize, func(r *resty.Request) {
		r.SetBody(analysis.SummarizeRequest{
			OriginalText: text,
			MinLength:    minLength,
			MaxLength:    maxLength,
		})
	}, &out)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", "summarize").Msg("analysis request failed")
		return nil
	}
	return &out
}

// SummaryLengths 计算摘要长度约束：max = clamp(round(0.5*词数), 5, 100)，min = max/2。
func SummaryLengths(text string) (minLength, maxLength int) {
	words := len(strings.Fields(text))
	maxLength = int(math.Round(0.5 * float64(words)))
	if maxLength < minSummaryLength {
		maxLength = minSummaryLength
	}
	if maxLength > maxSummaryLength {
		maxLength = maxSummaryLength
	}
	return maxLength / 2, maxLength
}
