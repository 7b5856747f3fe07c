package handler

import (
	"net/http"

	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/objective"
)

func (h *Handler) GetObjectives(w http.ResponseWriter, r *http.Request) {
	h.successResponse(w, r, "获取目标函数列表成功", objective.All())
}
