package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blues/stream/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTxNotFound   = errors.New("tx not found")
	ErrUserNotFound = errors.New("user not found")
)

// TxRepository 账本记录存储
type TxRepository struct {
	db *gorm.DB
}

// NewTxRepository 创建账本记录存储
func NewTxRepository(db *gorm.DB) *TxRepository {
	return &TxRepository{db: db}
}

// AddTx 插入新记录
func (r *TxRepository) AddTx(ctx context.Context, tx *model.TxModel) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("add tx %s: %w", tx.TxHash, err)
	}
	return nil
}

// UpsertTx 按哈希幂等写入: 不存在则插入, 存在则覆盖状态与元数据
func (r *TxRepository) UpsertTx(ctx context.Context, tx *model.TxModel) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{"tx_status", "metadata"}),
	}).Create(tx).Error
	if err != nil {
		return fmt.Errorf("upsert tx %s: %w", tx.TxHash, err)
	}
	return nil
}

// UpdateTx 更新状态和/或元数据, nil 表示保持原值
func (r *TxRepository) UpdateTx(ctx context.Context, txHash string, status *model.TxStatus, metadata *string) (*model.TxModel, error) {
	updates := map[string]interface{}{}
	if status != nil {
		updates["tx_status"] = *status
	}
	if metadata != nil {
		updates["metadata"] = *metadata
	}

	if len(updates) > 0 {
		result := r.db.WithContext(ctx).Model(&model.TxModel{}).Where("tx_hash = ?", txHash).Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("update tx %s: %w", txHash, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, ErrTxNotFound
		}
	}
	return r.FindTxByHash(ctx, txHash)
}

// CompareAndSetStatus 仅当当前状态为 from 时改为 to, 返回是否更新成功
func (r *TxRepository) CompareAndSetStatus(ctx context.Context, txHash string, from, to model.TxStatus) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.TxModel{}).
		Where("tx_hash = ? AND tx_status = ?", txHash, from).
		Update("tx_status", to)
	if result.Error != nil {
		return false, fmt.Errorf("set tx %s %s->%s: %w", txHash, from, to, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// FindTxByHash 按哈希查询
func (r *TxRepository) FindTxByHash(ctx context.Context, txHash string) (*model.TxModel, error) {
	var tx model.TxModel
	err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find tx %s: %w", txHash, err)
	}
	return &tx, nil
}

// FindTxByPlatform 查询发往某平台身份的指定状态与类型的记录
func (r *TxRepository) FindTxByPlatform(ctx context.Context, status model.TxStatus, txType model.TxType, platformType model.PlatformType, platformId string) ([]model.TxModel, error) {
	var txs []model.TxModel
	err := r.db.WithContext(ctx).
		Where("tx_status = ? AND tx_type = ? AND recipient_platform_type = ? AND recipient_platform_id = ?",
			status, txType, string(platformType), platformId).
		Order("datetime ASC").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("find txs by platform %s/%s: %w", platformType, platformId, err)
	}
	return txs, nil
}

// FindTxByUserWithUsernames 查询用户作为发送方或接收方的记录, 附带双方用户名
func (r *TxRepository) FindTxByUserWithUsernames(ctx context.Context, userId string) ([]model.TxWithUsernames, error) {
	var txs []model.TxWithUsernames
	err := r.db.WithContext(ctx).
		Table("txs AS t").
		Select("t.*, s.username AS sender_username, u.username AS recipient_username").
		Joins("LEFT JOIN users AS s ON s.id = t.sender_user_id").
		Joins("LEFT JOIN users AS u ON u.id = t.recipient_user_id").
		Where("t.sender_user_id = ? OR t.recipient_user_id = ?", userId, userId).
		Order("t.datetime DESC").
		Scan(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("find txs for user %s: %w", userId, err)
	}
	return txs, nil
}

// CalculateSlices 聚合 since 之后的观看记录, 按 (绑定用户, 平台类型, 平台ID) 分组计数
func (r *TxRepository) CalculateSlices(ctx context.Context, since time.Time) ([]model.SliceGroup, error) {
	var groups []model.SliceGroup
	err := r.db.WithContext(ctx).Raw(`
		SELECT u.id AS user_id, u.address AS address, t.platform_type, t.platform_id, COUNT(*) AS count
		FROM (
			SELECT p.user_id, v.platform_id, v.platform_type
			FROM views AS v
			LEFT JOIN platforms AS p ON v.platform_id = p.platform_id AND v.platform_type = p.platform_type
			WHERE v.datetime >= ?
		) AS t
		LEFT JOIN users AS u ON u.id = t.user_id
		GROUP BY u.id, u.address, t.platform_type, t.platform_id
		ORDER BY t.platform_type, t.platform_id`, since).
		Scan(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("calculate slices: %w", err)
	}
	return groups, nil
}

// FindPendingBefore 查询 cutoff 之前创建且仍为 PENDING 的记录
func (r *TxRepository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.TxModel, error) {
	var txs []model.TxModel
	err := r.db.WithContext(ctx).
		Where("tx_status = ? AND datetime < ?", model.TxStatusPending, cutoff).
		Order("datetime ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("find pending txs: %w", err)
	}
	return txs, nil
}
