package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/insight_go_server/internal/model"
)

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) CreateBatch(alerts []*model.InsightAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	return r.db.Create(&alerts).Error
}

// ListByUser 获取用户提醒，按时间倒序
func (r *AlertRepository) ListByUser(userID int64, unseenOnly bool, page, pageSize int) ([]*model.InsightAlert, int64, error) {
	var alerts []*model.InsightAlert
	var total int64

	query := r.db.Model(&model.InsightAlert{}).Where("user_id = ?", userID)
	if unseenOnly {
		query = query.Where("seen = ?", false)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Order("id DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&alerts).Error

	return alerts, total, err
}

// MarkSeen 标记为已读，只作用于本人的提醒
func (r *AlertRepository) MarkSeen(id, userID int64) (bool, error) {
	result := r.db.Model(&model.InsightAlert{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("seen", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *AlertRepository) CountUnseen(userID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.InsightAlert{}).
		Where("user_id = ? AND seen = ?", userID, false).
		Count(&count).Error
	return count, err
}
