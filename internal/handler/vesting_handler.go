package handler

import (
	"context"
	"net/http"

	"github.com/blues/stream/internal/logic"
	"github.com/gin-gonic/gin"
)

// VestingAuditor 锁仓合约核对, *logic.VestingLogic 满足
type VestingAuditor interface {
	Audit(ctx context.Context, address string) (*logic.VestingAudit, error)
}

type VestingHandler struct {
	auditor VestingAuditor
}

func NewVestingHandler(auditor VestingAuditor) *VestingHandler {
	return &VestingHandler{auditor: auditor}
}

// GetVesting 读取锁仓合约并与本地计算对比
func (h *VestingHandler) GetVesting(c *gin.Context) {
	audit, err := h.auditor.Audit(c.Request.Context(), c.Param("address"))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "success", audit)
}
