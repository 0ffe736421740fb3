package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/insight_go_server/internal/model"
)

// LocalReportPrefix 本地保存的报告地址前缀，等待补传 OSS
const LocalReportPrefix = "local://"

// ActiveJobStatuses 非终态
var ActiveJobStatuses = []string{model.JobStatusQueued, model.JobStatusProcessing}

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *JobRepository) WithTx(tx *gorm.DB) *JobRepository {
	return &JobRepository{db: tx}
}

// Transaction 在一个数据库事务中执行 fn
func (r *JobRepository) Transaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

func (r *JobRepository) Create(job *model.AnalysisJob) error {
	return r.db.Create(job).Error
}

func (r *JobRepository) GetByID(id string) (*model.AnalysisJob, error) {
	var job model.AnalysisJob
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindCompletedByFingerprint 查找用户最近一次指纹相同且已完成的任务
func (r *JobRepository) FindCompletedByFingerprint(userID int64, fingerprint string) (*model.AnalysisJob, error) {
	var job model.AnalysisJob
	err := r.db.Where("user_id = ? AND input_fingerprint = ? AND status = ?", userID, fingerprint, model.JobStatusCompleted).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Transition 条件更新状态：仅当当前状态属于 from 时生效，返回是否更新成功
func (r *JobRepository) Transition(id string, from []string, fields map[string]interface{}) (bool, error) {
	result := r.db.Model(&model.AnalysisJob{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListStaleQueued 获取创建时间早于 before 仍在排队的任务
func (r *JobRepository) ListStaleQueued(before time.Time, limit int) ([]*model.AnalysisJob, error) {
	var jobs []*model.AnalysisJob
	err := r.db.Where("status = ? AND created_at < ?", model.JobStatusQueued, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// ListAbandonedProcessing 获取创建时间早于 before 仍在处理中的任务
func (r *JobRepository) ListAbandonedProcessing(before time.Time, limit int) ([]*model.AnalysisJob, error) {
	var jobs []*model.AnalysisJob
	err := r.db.Where("status = ? AND created_at < ?", model.JobStatusProcessing, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// CreateOpportunities 批量写入机会
func (r *JobRepository) CreateOpportunities(opps []*model.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}
	return r.db.Create(&opps).Error
}

// ListOpportunities 按排名获取任务的机会列表
func (r *JobRepository) ListOpportunities(jobID string) ([]*model.Opportunity, error) {
	var opps []*model.Opportunity
	err := r.db.Where("analysis_job_id = ?", jobID).
		Order("`rank` ASC").
		Find(&opps).Error
	return opps, err
}

// SetReportURL 记录归档报告地址
func (r *JobRepository) SetReportURL(id, url string) error {
	return r.db.Model(&model.AnalysisJob{}).Where("id = ?", id).Update("report_url", url).Error
}

// HasLocalReport 本地报告文件是否仍在等待补传
func (r *JobRepository) HasLocalReport(name string) (bool, error) {
	var count int64
	err := r.db.Model(&model.AnalysisJob{}).
		Where("report_url = ?", LocalReportPrefix+name).
		Count(&count).Error
	return count > 0, err
}

// ListLocalReports 获取报告仍保存在本地的任务
func (r *JobRepository) ListLocalReports(limit int) ([]*model.AnalysisJob, error) {
	var jobs []*model.AnalysisJob
	err := r.db.Where("report_url LIKE ?", LocalReportPrefix+"%").
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}
