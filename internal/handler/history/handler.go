package history

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	historyStore "github.com/zhouzirui/moodchat/client/internal/storage/history"
	"github.com/zhouzirui/moodchat/client/pkg/utils"
)

// Lister 读取历史归档
type Lister interface {
	List(ctx context.Context, limit, offset int) ([]historyStore.Entry, error)
}

// Handler 历史归档查询处理器；未启用归档时返回 503
type Handler struct {
	archive Lister
}

// New 创建历史处理器，archive 可以为 nil
func New(archive Lister) *Handler {
	return &Handler{archive: archive}
}

// RegisterRoutes 注册历史查询路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/history", h.handleList)
}

type listQuery struct {
	Limit  int `schema:"limit"`
	Offset int `schema:"offset"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "history archive disabled")
		return
	}

	var query listQuery
	if err := utils.DecodeQuery(r, &query); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.archive.List(r.Context(), query.Limit, query.Offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list history")
		utils.RespondError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	utils.RespondJSON(w, http.StatusOK, entries)
}
