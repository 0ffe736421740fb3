package service

import (
	"errors"
	"log"
	"time"

	"github.com/qs3c/insight_go_server/internal/model"
	"github.com/qs3c/insight_go_server/internal/model/dto"
	"github.com/qs3c/insight_go_server/internal/repository"
)

// AlertCooldown 两封提醒邮件之间的最小间隔（按用户）
const AlertCooldown = 60 * time.Minute

var ErrAlertNotFound = errors.New("提醒不存在")

// AlertMailer 外部通知通道
type AlertMailer interface {
	SendAlertSummary(to string, signals []model.ChangeSignal) error
}

type NotificationService struct {
	alertRepo *repository.AlertRepository
	userRepo  *repository.UserRepository
	mailer    AlertMailer
	now       func() time.Time
}

func NewNotificationService(
	alertRepo *repository.AlertRepository,
	userRepo *repository.UserRepository,
	mailer AlertMailer,
) *NotificationService {
	return &NotificationService{
		alertRepo: alertRepo,
		userRepo:  userRepo,
		mailer:    mailer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Record 为每个信号写入一条未读提醒
func (s *NotificationService) Record(userID int64, jobID string, signals []model.ChangeSignal) error {
	if len(signals) == 0 {
		return nil
	}

	createdAt := s.now()
	alerts := make([]*model.InsightAlert, 0, len(signals))
	for _, sig := range signals {
		alerts = append(alerts, &model.InsightAlert{
			UserID:        userID,
			AnalysisJobID: jobID,
			AlertType:     sig.Type,
			Title:         sig.Title,
			Message:       sig.Message,
			CreatedAt:     createdAt,
		})
	}

	return s.alertRepo.CreateBatch(alerts)
}

// ShouldNotify 上次发送为空或距今超过冷却时间
func ShouldNotify(lastSentAt *time.Time, now time.Time) bool {
	return lastSentAt == nil || now.Sub(*lastSentAt) > AlertCooldown
}

// Notify 冷却期外发送汇总邮件；任何失败只记录日志
func (s *NotificationService) Notify(userID int64, signals []model.ChangeSignal) {
	if len(signals) == 0 || s.mailer == nil {
		return
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		log.Printf("Notify user %d: failed to load user: %v", userID, err)
		return
	}
	if user.Email == nil || *user.Email == "" {
		return
	}

	now := s.now()
	if !ShouldNotify(user.LastAlertEmailAt, now) {
		return
	}

	// 条件更新占用冷却窗口，并发完成的任务只会有一个发出邮件
	claimedAt := now.Truncate(time.Millisecond)
	claimed, err := s.userRepo.ClaimAlertEmail(userID, claimedAt, now.Add(-AlertCooldown))
	if err != nil {
		log.Printf("Notify user %d: failed to claim cooldown: %v", userID, err)
		return
	}
	if !claimed {
		return
	}

	if err := s.mailer.SendAlertSummary(*user.Email, signals); err != nil {
		log.Printf("Notify user %d: failed to send alert email: %v", userID, err)
		if err := s.userRepo.ReleaseAlertEmail(userID, claimedAt, user.LastAlertEmailAt); err != nil {
			log.Printf("Notify user %d: failed to release cooldown: %v", userID, err)
		}
		return
	}

	log.Printf("Notify user %d: sent summary of %d alerts", userID, len(signals))
}

// MarkSeen 标记提醒为已读，只能操作自己的提醒
func (s *NotificationService) MarkSeen(userID, alertID int64) error {
	ok, err := s.alertRepo.MarkSeen(alertID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlertNotFound
	}
	return nil
}

// List 获取提醒列表
func (s *NotificationService) List(userID int64, unseenOnly bool, page, pageSize int) ([]*dto.AlertItem, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	alerts, total, err := s.alertRepo.ListByUser(userID, unseenOnly, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.AlertItem, len(alerts))
	for i, a := range alerts {
		items[i] = &dto.AlertItem{
			ID:            a.ID,
			AnalysisJobID: a.AnalysisJobID,
			AlertType:     a.AlertType,
			Title:         a.Title,
			Message:       a.Message,
			Seen:          a.Seen,
			CreatedAt:     a.CreatedAt.Format(time.RFC3339),
		}
	}

	return items, total, nil
}

// UnseenCount 未读提醒数量
func (s *NotificationService) UnseenCount(userID int64) (int64, error) {
	return s.alertRepo.CountUnseen(userID)
}
