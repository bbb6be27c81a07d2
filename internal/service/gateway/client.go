package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zhouzirui/moodchat/client/internal/config"
)

var (
	ErrAudioMissing     = errors.New("audio file does not exist")
	ErrAudioEmpty       = errors.New("audio file is empty")
	ErrMissingSessionID = errors.New("backend returned no session id")
)

// StatusError 表示后端返回了非预期的 HTTP 状态码。
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, body)
}

// Endpoints 列出各能力对应的后端路径。
type Endpoints struct {
	Sentiment          string
	Image              string
	Speech             string
	Video              string
	Summarize          string
	RealtimeStart      string
	RealtimeProcess    string
	RealtimeEnd        string
	RealtimeStatistics string // 包含 {session_id} 路径参数
}

// DefaultEndpoints 返回后端默认路由。
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Sentiment:          "/api/sentiment/analyze/",
		Image:              "/api/emotion/image/",
		Speech:             "/api/speech/transcribe/",
		Video:              "/api/video/analyze/",
		Summarize:          "/api/summarize/",
		RealtimeStart:      "/api/realtime/start/",
		RealtimeProcess:    "/api/realtime/process-frame/",
		RealtimeEnd:        "/api/realtime/end/",
		RealtimeStatistics: "/api/realtime/statistics/{session_id}/",
	}
}

// Client 封装分析后端的全部 REST 调用，本身无状态。
type Client struct {
	http      *resty.Client
	baseURL   string
	endpoints Endpoints
	cfg       config.BackendConfig
}

// New 创建后端客户端；Token 不为空时附带 Bearer 认证头。
func New(cfg config.BackendConfig) *Client {
	return NewWithEndpoints(cfg, DefaultEndpoints())
}

// NewWithEndpoints 使用自定义路由创建客户端。
func NewWithEndpoints(cfg config.BackendConfig, endpoints Endpoints) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		httpClient.SetAuthToken(cfg.Token)
	}

	return &Client{
		http:      httpClient,
		baseURL:   baseURL,
		endpoints: endpoints,
		cfg:       cfg,
	}
}

// ResolveURL 把后端返回的相对资源地址补全为绝对地址。
func (c *Client) ResolveURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}

	parsed, err := url.Parse(ref)
	if err != nil || parsed.IsAbs() {
		return ref
	}

	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

// send 执行一次带超时的请求并按 JSON 解析响应体；accept 为空时接受任意 2xx。
func (c *Client) send(ctx context.Context, timeout time.Duration, method, path string, prepare func(*resty.Request), out any, accept ...int) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req := c.http.R().SetContext(ctx)
	if prepare != nil {
		prepare(req)
	}

	res, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if !statusAccepted(res, accept) {
		return &StatusError{Code: res.StatusCode(), Body: res.String()}
	}

	if out != nil {
		if err := json.Unmarshal(res.Body(), out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

func statusAccepted(res *resty.Response, accept []int) bool {
	if len(accept) == 0 {
		return res.IsSuccess()
	}
	for _, code := range accept {
		if res.StatusCode() == code {
			return true
		}
	}
	return false
}
