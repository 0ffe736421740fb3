package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/insight_go_server/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

func (r *UserRepository) GetByID(id int64) (*model.User, error) {
	var user model.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}

// IncrementUsage 原子地将本周期用量加一
func (r *UserRepository) IncrementUsage(id int64) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).
		Update("analyses_used_this_period", gorm.Expr("analyses_used_this_period + 1")).Error
}

// ResetUsage 将用量清零并推进重置时间；仅当库中的重置时间早于 resetAt 时生效
func (r *UserRepository) ResetUsage(id int64, resetAt time.Time) (bool, error) {
	result := r.db.Model(&model.User{}).
		Where("id = ? AND last_reset_at < ?", id, resetAt).
		Updates(map[string]interface{}{
			"analyses_used_this_period": 0,
			"last_reset_at":             resetAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ClaimAlertEmail 占用提醒邮件冷却窗口：上次发送为空或早于 cooldownStart 时写入 at
func (r *UserRepository) ClaimAlertEmail(id int64, at, cooldownStart time.Time) (bool, error) {
	result := r.db.Model(&model.User{}).
		Where("id = ? AND (last_alert_email_at IS NULL OR last_alert_email_at < ?)", id, cooldownStart).
		Update("last_alert_email_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ReleaseAlertEmail 发送失败时归还冷却窗口，只回滚本次占用
func (r *UserRepository) ReleaseAlertEmail(id int64, claimedAt time.Time, previous *time.Time) error {
	return r.db.Model(&model.User{}).
		Where("id = ? AND last_alert_email_at = ?", id, claimedAt).
		Update("last_alert_email_at", previous).Error
}
