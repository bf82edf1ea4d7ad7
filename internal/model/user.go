package model

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// UserModel 用户, 注册与认证流程不在本服务内
type UserModel struct {
	Id        string    `json:"id" gorm:"primaryKey;size:36"`
	Email     *string   `json:"email" gorm:"uniqueIndex"`
	Username  *string   `json:"username" gorm:"uniqueIndex"`
	Address   *string   `json:"address" gorm:"size:42"` // 钱包地址, 未绑定时为空
	Phone     *string   `json:"phone"`                  // 已验证手机号
	CreatedAt time.Time `json:"created_at"`
}

// TableName 自定义表名
func (UserModel) TableName() string {
	return "users"
}

// HasAddress 是否已绑定钱包
func (u *UserModel) HasAddress() bool {
	return u.Address != nil && *u.Address != ""
}

// PlatformType 内容平台类型
type PlatformType string

const (
	PlatformTwitch  PlatformType = "TWITCH"
	PlatformYoutube PlatformType = "YOUTUBE"
)

// Valid 是否为已知平台
func (p PlatformType) Valid() bool {
	switch p {
	case PlatformTwitch, PlatformYoutube:
		return true
	}
	return false
}

// PlatformModel 用户绑定的平台身份
type PlatformModel struct {
	Id           int64        `json:"id" gorm:"primaryKey"`
	UserId       string       `json:"user_id" gorm:"size:36;not null;index"`
	PlatformId   string       `json:"platform_id" gorm:"not null;uniqueIndex:idx_platform_identity"`
	PlatformType PlatformType `json:"platform_type" gorm:"size:16;not null;uniqueIndex:idx_platform_identity"`
	CreatedAt    time.Time    `json:"created_at"`
}

// TableName 自定义表名
func (PlatformModel) TableName() string {
	return "platforms"
}

// Owns 该绑定是否对应记录的接收平台
func (p PlatformModel) Owns(tx *TxModel) bool {
	return tx.RecipientPlatformType != nil && tx.RecipientPlatformId != nil &&
		string(p.PlatformType) == *tx.RecipientPlatformType &&
		p.PlatformId == *tx.RecipientPlatformId
}

// ViewModel 观看记录, 仅追加
type ViewModel struct {
	Id           int64        `json:"id" gorm:"primaryKey"`
	UserId       string       `json:"user_id" gorm:"size:36;not null"`
	VideoUrl     string       `json:"video_url"`
	VideoId      string       `json:"video_id"`
	PlatformId   string       `json:"platform_id" gorm:"not null;index:idx_views_platform"`
	PlatformType PlatformType `json:"platform_type" gorm:"size:16;not null;index:idx_views_platform"`
	Datetime     time.Time    `json:"datetime" gorm:"index;autoCreateTime"`
}

// TableName 自定义表名
func (ViewModel) TableName() string {
	return "views"
}

// PromoBlacklistModel 已领取推广奖励的用户
type PromoBlacklistModel struct {
	UserId    string    `json:"user_id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 自定义表名
func (PromoBlacklistModel) TableName() string {
	return "promo_blacklist"
}

// SliceGroup 24 小时观看聚合结果, 平台未绑定用户时 UserId 为空
type SliceGroup struct {
	UserId       *string `json:"user_id"`
	Address      *string `json:"address"`
	PlatformType string  `json:"platform_type"`
	PlatformId   string  `json:"platform_id"`
	Count        int64   `json:"count"`
}

// EscrowUserId 托管哨兵的用户 ID
var EscrowUserId = uuid.Nil.String()

// Sentinel 托管哨兵, 地址即热钱包地址
type Sentinel struct {
	UserId  string
	Address string
}

// NewSentinel 创建托管哨兵
func NewSentinel(hotWalletAddress string) Sentinel {
	return Sentinel{UserId: EscrowUserId, Address: common.HexToAddress(hotWalletAddress).Hex()}
}

// IsSentinel 用户 ID 是否为哨兵
func IsSentinel(userId string) bool {
	return userId == EscrowUserId
}

// SameAddress 忽略大小写比较地址
func SameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
