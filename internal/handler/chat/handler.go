package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	chatService "github.com/zhouzirui/moodchat/client/internal/service/chat"
	"github.com/zhouzirui/moodchat/client/pkg/utils"
)

const (
	maxImageUpload = 32 << 20  // 32MB
	maxAudioUpload = 32 << 20  // 32MB
	maxVideoUpload = 512 << 20 // 512MB
)

// Handler 时间线相关的HTTP处理器。分析请求在后台执行，结果通过时间线推送。
type Handler struct {
	orchestrator *chatService.Orchestrator
	tasks        sync.WaitGroup
}

// New 创建时间线处理器
func New(orchestrator *chatService.Orchestrator) *Handler {
	return &Handler{orchestrator: orchestrator}
}

// RegisterRoutes 注册时间线相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/messages", func(mr chi.Router) {
		mr.Get("/", h.handleList)
		mr.Delete("/", h.handleClear)
		mr.Post("/text", h.handleText)
		mr.Post("/summarize", h.handleSummarize)
		mr.Post("/image", h.handleUpload("image", maxImageUpload, h.orchestrator.SendImage))
		mr.Post("/video", h.handleUpload("video", maxVideoUpload, h.orchestrator.SendVideo))
		mr.Post("/audio", h.handleUpload("audio", maxAudioUpload, h.orchestrator.SendAudio))
	})
}

// Wait 等待所有后台分析请求结束
func (h *Handler) Wait() {
	h.tasks.Wait()
}

// handleList 返回当前时间线快照
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.orchestrator.Timeline().Snapshot())
}

// handleClear 清空时间线
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	h.orchestrator.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleText(w http.ResponseWriter, r *http.Request) {
	h.handleTextTurn(w, r, "sentiment", h.orchestrator.SendText)
}

func (h *Handler) handleSummarize(w http.ResponseWriter, r *http.Request) {
	h.handleTextTurn(w, r, "summarize", h.orchestrator.Summarize)
}

func (h *Handler) handleTextTurn(w http.ResponseWriter, r *http.Request, name string, send func(context.Context, string) error) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text := strings.TrimSpace(payload.Text)
	if text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	h.background(r.Context(), name, func(ctx context.Context) error {
		return send(ctx, text)
	})
	utils.RespondAccepted(w)
}

// handleUpload 读取 multipart 文件字段后交给编排器
func (h *Handler) handleUpload(field string, limit int64, send func(context.Context, string, []byte) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
			return
		}

		file, header, err := r.FormFile(field)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, field+" file is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "failed to read "+field+" file")
			return
		}
		if len(data) == 0 {
			utils.RespondError(w, http.StatusBadRequest, field+" file is empty")
			return
		}

		name := header.Filename
		h.background(r.Context(), field, func(ctx context.Context) error {
			return send(ctx, name, data)
		})
		utils.RespondAccepted(w)
	}
}

func (h *Handler) background(parent context.Context, name string, run func(context.Context) error) {
	ctx := context.WithoutCancel(parent)
	h.tasks.Add(1)
	go func() {
		defer h.tasks.Done()
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("turn", name).Msg("chat turn rejected")
		}
	}()
}
