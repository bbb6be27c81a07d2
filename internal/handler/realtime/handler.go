package realtime

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/moodchat/client/internal/model/analysis"
	realtimeService "github.com/zhouzirui/moodchat/client/internal/service/realtime"
	"github.com/zhouzirui/moodchat/client/pkg/utils"
)

const maxFrameUpload = 8 << 20 // 8MB

// Notifier 用于推送瞬时提示，前置条件失败不进入时间线
type Notifier interface {
	Notice(message string)
}

// SummaryRecorder 接收会话结束时的汇总
type SummaryRecorder interface {
	RecordLiveSession(summary analysis.SessionSummary)
}

// Handler 实时情绪检测会话的HTTP处理器
type Handler struct {
	controller *realtimeService.Controller
	summaries  SummaryRecorder
	notifier   Notifier
}

// New 创建实时会话处理器
func New(controller *realtimeService.Controller, summaries SummaryRecorder, notifier Notifier) *Handler {
	return &Handler{controller: controller, summaries: summaries, notifier: notifier}
}

// RegisterRoutes 注册实时会话路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/realtime", func(rr chi.Router) {
		rr.Get("/", h.handleStatus)
		rr.Post("/start", h.handleStart)
		rr.Post("/frame", h.handleFrame)
		rr.Post("/end", h.handleEnd)
		rr.Post("/cancel", h.handleCancel)
		rr.Get("/statistics", h.handleStatistics)
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.controller.Status())
}

// handleStart 开启会话，已有会话时直接返回
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	id, err := h.controller.Start(r.Context())
	if err != nil {
		h.respondControllerError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"sessionId": id})
}

// handleFrame 接收一帧图像，支持 multipart image 字段或原始请求体
func (h *Handler) handleFrame(w http.ResponseWriter, r *http.Request) {
	frame, err := readFrame(w, r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.controller.ProcessFrame(r.Context(), frame)
	if err != nil {
		h.respondFrameError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"frameNumber": h.controller.FrameNumber(),
		"result":      result,
	})
}

// handleEnd 结束会话，汇总写入时间线
func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	summary, err := h.controller.End(r.Context())
	if err != nil {
		h.respondControllerError(w, err)
		return
	}
	if h.summaries != nil {
		h.summaries.RecordLiveSession(*summary)
	}
	utils.RespondJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.controller.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.controller.Statistics(r.Context())
	if err != nil {
		h.respondControllerError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, stats)
}

// respondFrameError 丢帧属于正常背压，不推送提示
func (h *Handler) respondFrameError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, realtimeService.ErrFrameInFlight),
		errors.Is(err, realtimeService.ErrSessionBusy),
		errors.Is(err, realtimeService.ErrSessionClosed):
		utils.RespondJSON(w, http.StatusConflict, map[string]any{"dropped": true, "error": err.Error()})
	case errors.Is(err, realtimeService.ErrNoActiveSession):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		utils.RespondError(w, http.StatusBadGateway, err.Error())
	}
}

func (h *Handler) respondControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, realtimeService.ErrSessionBusy),
		errors.Is(err, realtimeService.ErrNoActiveSession),
		errors.Is(err, realtimeService.ErrSessionClosed):
		h.notify(err.Error())
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		utils.RespondError(w, http.StatusBadGateway, err.Error())
	}
}

func (h *Handler) notify(message string) {
	if h.notifier != nil {
		h.notifier.Notice(message)
	}
}

func readFrame(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFrameUpload)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxFrameUpload); err != nil {
			return nil, errors.New("failed to parse multipart form")
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, errors.New("image file is required")
		}
		defer file.Close()
		return readNonEmpty(file)
	}
	return readNonEmpty(r.Body)
}

func readNonEmpty(reader io.Reader) ([]byte, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.New("failed to read frame")
	}
	if len(data) == 0 {
		return nil, errors.New("frame is empty")
	}
	return data, nil
}
