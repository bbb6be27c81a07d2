package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/zhouzirui/moodchat/client/internal/config"
	"github.com/zhouzirui/moodchat/client/internal/model/analysis"
)

// StartRealtimeSession 创建实时会话，仅 200/201 视为成功。
func (c *Client) StartRealtimeSession(ctx context.Context) (string, error) {
	var out analysis.SessionStartResponse
	err := c.send(ctx, c.cfg.RealtimeTimeout, http.MethodPost, c.endpoints.RealtimeStart, nil, &out, http.StatusOK, http.StatusCreated)
	if err != nil {
		return "", err
	}
	if out.SessionData.SessionID == "" {
		return "", ErrMissingSessionID
	}
	return out.SessionData.SessionID, nil
}

// ProcessFrame 上传一帧图像，按配置选择 multipart 或 base64 JSON。
func (c *Client) ProcessFrame(ctx context.Context, sessionID string, frameNumber int, frame []byte) (analysis.FrameResult, error) {
	var out analysis.FrameResult
	err := c.send(ctx, c.cfg.RealtimeTimeout, http.MethodPost, c.endpoints.RealtimeProcess, func(r *resty.Request) {
		if c.cfg.FrameTransport == config.FrameTransportBase64 {
			r.SetBody(analysis.FrameRequest{
				SessionID:   sessionID,
				FrameNumber: frameNumber,
				FrameData:   base64.StdEncoding.EncodeToString(frame),
			})
			return
		}
		r.SetMultipartFormData(map[string]string{
			"session_id":   sessionID,
			"frame_number": strconv.Itoa(frameNumber),
		})
		r.SetMultipartField("image", "frame_"+strconv.Itoa(frameNumber)+".jpg", "image/jpeg", bytes.NewReader(frame))
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EndRealtimeSession 结束实时会话并返回汇总。
func (c *Client) EndRealtimeSession(ctx context.Context, sessionID string) (*analysis.SessionSummary, error) {
	var out analysis.SessionEndResponse
	err := c.send(ctx, c.cfg.RealtimeTimeout, http.MethodPost, c.endpoints.RealtimeEnd, func(r *resty.Request) {
		r.SetBody(analysis.SessionEndRequest{SessionID: sessionID})
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.SessionData, nil
}

// RealtimeStatistics 查询会话统计。
func (c *Client) RealtimeStatistics(ctx context.Context, sessionID string) (analysis.SessionStatistics, error) {
	var out analysis.SessionStatistics
	err := c.send(ctx, c.cfg.RealtimeTimeout, http.MethodGet, c.endpoints.RealtimeStatistics, func(r *resty.Request) {
		r.SetPathParam("session_id", sessionID)
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}
