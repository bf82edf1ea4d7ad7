package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TxStatus 账本记录状态
type TxStatus string

const (
	TxStatusPending   TxStatus = "PENDING"   // 已提交, 等待确认
	TxStatusSent      TxStatus = "SENT"      // 已确认
	TxStatusFailed    TxStatus = "FAILED"    // 提交或执行失败
	TxStatusUnclaimed TxStatus = "UNCLAIMED" // 托管中, 等待领取
	TxStatusClaimed   TxStatus = "CLAIMED"   // 托管已领取
)

// Valid 是否为已知状态
func (s TxStatus) Valid() bool {
	switch s {
	case TxStatusPending, TxStatusSent, TxStatusFailed, TxStatusUnclaimed, TxStatusClaimed:
		return true
	}
	return false
}

// IsTerminal 是否为终态. UNCLAIMED 仍可转为 CLAIMED, 不算终态
func (s TxStatus) IsTerminal() bool {
	switch s {
	case TxStatusSent, TxStatusFailed, TxStatusClaimed:
		return true
	case TxStatusPending, TxStatusUnclaimed:
		return false
	}
	return false
}

// TxType 转账类型
type TxType string

const (
	TxTypeDefault       TxType = "DEFAULT"
	TxTypeEscrow        TxType = "ESCROW"
	TxTypePromoSlice    TxType = "PROMO_SLICE"
	TxTypePromoCrumb    TxType = "PROMO_CRUMB"
	TxTypePromoReferral TxType = "PROMO_REFERRAL"
	TxTypePromoSignup   TxType = "PROMO_SIGNUP"
	TxTypePromoYoutube  TxType = "PROMO_YOUTUBE"
	TxTypePromoTwitch   TxType = "PROMO_TWITCH"
)

// Valid 是否为已知类型
func (t TxType) Valid() bool {
	switch t {
	case TxTypeDefault, TxTypeEscrow, TxTypePromoSlice, TxTypePromoCrumb,
		TxTypePromoReferral, TxTypePromoSignup, TxTypePromoYoutube, TxTypePromoTwitch:
		return true
	}
	return false
}

// IsPromo 是否为哨兵发起的推广类转账
func (t TxType) IsPromo() bool {
	switch t {
	case TxTypePromoSlice, TxTypePromoCrumb, TxTypePromoReferral,
		TxTypePromoSignup, TxTypePromoYoutube, TxTypePromoTwitch:
		return true
	case TxTypeDefault, TxTypeEscrow:
		return false
	}
	return false
}

// ResolvedStatus 链上确认成功后的状态: 发往哨兵地址的托管转账为 UNCLAIMED, 其余为 SENT
func ResolvedStatus(txType TxType, recipientAddress, sentinelAddress string) TxStatus {
	switch txType {
	case TxTypeEscrow:
		if SameAddress(recipientAddress, sentinelAddress) {
			return TxStatusUnclaimed
		}
		return TxStatusSent
	case TxTypeDefault, TxTypePromoSlice, TxTypePromoCrumb, TxTypePromoReferral,
		TxTypePromoSignup, TxTypePromoYoutube, TxTypePromoTwitch:
		return TxStatusSent
	}
	return TxStatusSent
}

// TxModel 账本记录, 以交易哈希为主键
type TxModel struct {
	TxHash                string    `json:"tx_hash" gorm:"primaryKey;size:80"`
	TxStatus              TxStatus  `json:"tx_status" gorm:"size:16;not null;index"`
	TxType                TxType    `json:"tx_type" gorm:"size:24;not null;index"`
	Value                 string    `json:"value" gorm:"size:80;not null"` // twei, 十进制整数字符串
	SenderUserId          *string   `json:"sender_user_id" gorm:"index"`
	SenderAddress         string    `json:"sender_address" gorm:"size:42;not null"`
	RecipientUserId       *string   `json:"recipient_user_id" gorm:"index"`
	RecipientAddress      string    `json:"recipient_address" gorm:"size:42;not null"`
	RecipientPlatformType *string   `json:"recipient_platform_type" gorm:"index:idx_txs_platform"`
	RecipientPlatformId   *string   `json:"recipient_platform_id" gorm:"index:idx_txs_platform"`
	Message               *string   `json:"message"`
	Metadata              *string   `json:"metadata"`
	Datetime              time.Time `json:"datetime" gorm:"autoCreateTime"`
}

// TableName 自定义表名
func (TxModel) TableName() string {
	return "txs"
}

// IsPlaceholderHash 提交失败时的占位哈希为 uuid, 链上不存在
func IsPlaceholderHash(hash string) bool {
	_, err := uuid.Parse(hash)
	return err == nil
}

// TxWithUsernames 带发送方/接收方用户名的记录
type TxWithUsernames struct {
	TxModel
	SenderUsername    *string `json:"sender_username"`
	RecipientUsername *string `json:"recipient_username"`
}

// TxResponse 对外返回的记录
type TxResponse struct {
	TxHash                string   `json:"txHash"`
	TxStatus              TxStatus `json:"txStatus"`
	TxType                TxType   `json:"txType"`
	Value                 string   `json:"value"`
	SenderUserId          string   `json:"senderUserId"`
	SenderAddress         string   `json:"senderAddress"`
	SenderUsername        string   `json:"senderUsername,omitempty"`
	RecipientUserId       string   `json:"recipientUserId"`
	RecipientAddress      string   `json:"recipientAddress"`
	RecipientPlatformType string   `json:"recipientPlatformType"`
	RecipientPlatformId   string   `json:"recipientPlatformId"`
	RecipientUsername     string   `json:"recipientUsername,omitempty"`
	Message               string   `json:"message"`
	Metadata              string   `json:"metadata"`
	Datetime              string   `json:"datetime"`
}

// Serialize 转换为对外返回结构
func Serialize(tx TxWithUsernames) TxResponse {
	return TxResponse{
		TxHash:                tx.TxHash,
		TxStatus:              tx.TxStatus,
		TxType:                tx.TxType,
		Value:                 tx.Value,
		SenderUserId:          deref(tx.SenderUserId),
		SenderAddress:         tx.SenderAddress,
		SenderUsername:        deref(tx.SenderUsername),
		RecipientUserId:       deref(tx.RecipientUserId),
		RecipientAddress:      tx.RecipientAddress,
		RecipientPlatformType: deref(tx.RecipientPlatformType),
		RecipientPlatformId:   deref(tx.RecipientPlatformId),
		RecipientUsername:     deref(tx.RecipientUsername),
		Message:               deref(tx.Message),
		Metadata:              deref(tx.Metadata),
		Datetime:              tx.Datetime.UTC().Format(time.RFC3339),
	}
}

// SerializeTx 转换不带用户名的记录
func SerializeTx(tx *TxModel) TxResponse {
	return Serialize(TxWithUsernames{TxModel: *tx})
}

// ClaimMetadata 托管领取生成的转账所携带的元数据
type ClaimMetadata struct {
	EscrowTxHash string `json:"escrowTxHash"`
}

// Encode 编码为 metadata 字段
func (m ClaimMetadata) Encode() *string {
	data, _ := json.Marshal(m)
	s := string(data)
	return &s
}

// ParseClaimMetadata 从 metadata 字段解析, 非领取记录返回 false
func ParseClaimMetadata(metadata *string) (ClaimMetadata, bool) {
	var m ClaimMetadata
	if metadata == nil || *metadata == "" {
		return m, false
	}
	if err := json.Unmarshal([]byte(*metadata), &m); err != nil || m.EscrowTxHash == "" {
		return m, false
	}
	return m, true
}

// StringPtr 空字符串返回 nil
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
