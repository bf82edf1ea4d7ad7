package handler

import (
	"context"
	"net/http"

	"github.com/blues/stream/internal/apperr"
	"github.com/blues/stream/internal/logic"
	"github.com/blues/stream/internal/model"
	"github.com/gin-gonic/gin"
)

// TxService 账本相关业务, *logic.EscrowLogic 满足
type TxService interface {
	ListTxs(ctx context.Context, userId string) ([]model.TxResponse, error)
	Send(ctx context.Context, req logic.SendRequest) (*model.TxModel, error)
	ClaimEscrow(ctx context.Context, userId, txHash string) (*model.TxModel, error)
	ClaimEscrowAll(ctx context.Context, userId string) ([]*model.TxModel, error)
	GetTx(ctx context.Context, txHash string) (*model.TxModel, error)
	PromoStatus(ctx context.Context, userId string) (bool, error)
	RedeemPromo(ctx context.Context, userId string) (*model.TxModel, error)
}

type TxHandler struct {
	txs TxService
}

func NewTxHandler(txs TxService) *TxHandler {
	return &TxHandler{txs: txs}
}

// GetTxs 用户记录及发往其平台身份的未领取托管
func (h *TxHandler) GetTxs(c *gin.Context) {
	txs, err := h.txs.ListTxs(c.Request.Context(), UserId(c))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "success", GetTxsResponse{Txs: txs})
}

// Send 代发签名转账
func (h *TxHandler) Send(c *gin.Context) {
	var req SendTxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, string(apperr.BadRequest))
		return
	}

	tx, err := h.txs.Send(c.Request.Context(), logic.SendRequest{
		UserId:                UserId(c),
		SignedTransfer:        req.SignedTransfer,
		ToUserId:              req.ToUserId,
		Value:                 req.Value,
		Expiration:            req.Expiration,
		Nonce:                 req.Nonce,
		Message:               req.Message,
		RecipientPlatformType: req.RecipientPlatformType,
		RecipientPlatformId:   req.RecipientPlatformId,
	})
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "success", model.SerializeTx(tx))
}

// ClaimEscrowAll 领取全部托管
func (h *TxHandler) ClaimEscrowAll(c *gin.Context) {
	payouts, err := h.txs.ClaimEscrowAll(c.Request.Context(), UserId(c))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	out := make([]model.TxResponse, 0, len(payouts))
	for _, tx := range payouts {
		out = append(out, model.SerializeTx(tx))
	}
	SuccessResponse(c, http.StatusOK, "success", ClaimEscrowAllResponse{Txs: out})
}

// ClaimEscrow 领取单笔托管
func (h *TxHandler) ClaimEscrow(c *gin.Context) {
	payout, err := h.txs.ClaimEscrow(c.Request.Context(), UserId(c), c.Param("txHash"))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "success", model.SerializeTx(payout))
}

// GetTx 按哈希查询
func (h *TxHandler) GetTx(c *gin.Context) {
	tx, err := h.txs.GetTx(c.Request.Context(), c.Param("txHash"))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "success", model.SerializeTx(tx))
}

func (h *TxHandler) GetPromo(c *gin.Context) {
	redeemed, err := h.txs.PromoStatus(c.Request.Context(), UserId(c))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "success", PromoStatusResponse{Redeemed: redeemed})
}

func (h *TxHandler) RedeemPromo(c *gin.Context) {
	tx, err := h.txs.RedeemPromo(c.Request.Context(), UserId(c))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "success", model.SerializeTx(tx))
}
