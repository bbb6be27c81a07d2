package recording

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	recordingService "github.com/zhouzirui/moodchat/client/internal/service/recording"
	"github.com/zhouzirui/moodchat/client/pkg/utils"
)

// Handler 按住录音流程的HTTP处理器，手势事件由界面转发
type Handler struct {
	controller *recordingService.Controller
}

// New 创建录音处理器
func New(controller *recordingService.Controller) *Handler {
	return &Handler{controller: controller}
}

// RegisterRoutes 注册录音路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/recording", func(rr chi.Router) {
		rr.Get("/", h.handleStatus)
		rr.Post("/begin", h.handleBegin)
		rr.Post("/drag", h.handleDrag)
		rr.Post("/end", h.handleEnd)
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.controller.Status())
}

// handleBegin 开始录音；权限或并发检查失败时返回对应状态码
func (h *Handler) handleBegin(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.BeginRecording(r.Context()); err != nil {
		switch {
		case errors.Is(err, recordingService.ErrPermissionDenied):
			utils.RespondError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, recordingService.ErrRecordingActive),
			errors.Is(err, recordingService.ErrFlowOpen),
			errors.Is(err, recordingService.ErrActionInProgress):
			utils.RespondError(w, http.StatusConflict, err.Error())
		default:
			utils.RespondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.controller.Status())
}

// handleDrag 每次拖动更新都重新判定是否取消
func (h *Handler) handleDrag(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		DeltaX float64 `json:"deltaX"`
		Width  float64 `json:"width"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cancelled := h.controller.UpdateDrag(payload.DeltaX, payload.Width)
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// handleEnd 松手结束录音，上传在响应之后异步进行
func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	payload := struct {
		Send *bool `json:"send"`
	}{}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	send := payload.Send == nil || *payload.Send

	outcome, err := h.controller.EndRecording(r.Context(), send)
	if err != nil {
		if errors.Is(err, recordingService.ErrNotRecording) {
			utils.RespondError(w, http.StatusConflict, err.Error())
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome), "error": err.Error()})
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}
