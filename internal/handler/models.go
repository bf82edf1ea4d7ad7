package handler

import "github.com/blues/stream/internal/model"

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// SendTxRequest 签名转账请求
type SendTxRequest struct {
	SignedTransfer        string  `json:"signedTransfer" binding:"required"`
	ToUserId              string  `json:"toUserId" binding:"required"`
	Value                 string  `json:"value" binding:"required"` // twei
	Expiration            string  `json:"expiration" binding:"required"`
	Nonce                 string  `json:"nonce" binding:"required"`
	Message               *string `json:"message"`
	RecipientPlatformType *string `json:"recipientPlatformType"`
	RecipientPlatformId   *string `json:"recipientPlatformId"`
}

// GetTxsResponse 用户记录列表
type GetTxsResponse struct {
	Txs []model.TxResponse `json:"txs"`
}

// ClaimEscrowAllResponse 全部领取生成的付款记录
type ClaimEscrowAllResponse struct {
	Txs []model.TxResponse `json:"txs"`
}

// PromoStatusResponse 推广奖励领取状态
type PromoStatusResponse struct {
	Redeemed bool `json:"redeemed"`
}
