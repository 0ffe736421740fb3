package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/insight_go_server/internal/model"
)

type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) WithTx(tx *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: tx}
}

func (r *SnapshotRepository) CreateBatch(snaps []*model.OpportunitySnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	return r.db.Create(&snaps).Error
}

// ListRecentByUser 按时间倒序获取用户最近的快照，排除指定任务
func (r *SnapshotRepository) ListRecentByUser(userID int64, excludeJobID string, limit int) ([]model.OpportunitySnapshot, error) {
	var snaps []model.OpportunitySnapshot
	err := r.db.Where("user_id = ? AND analysis_job_id <> ?", userID, excludeJobID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&snaps).Error
	return snaps, err
}
