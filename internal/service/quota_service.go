package service

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/insight_go_server/config"
	"github.com/qs3c/insight_go_server/internal/model"
	"github.com/qs3c/insight_go_server/internal/model/dto"
	"github.com/qs3c/insight_go_server/internal/repository"
)

const (
	// UsagePeriod 滚动重置周期
	UsagePeriod = 30 * 24 * time.Hour
	// NewAccountWindow 新账号限流窗口
	NewAccountWindow = 10 * time.Minute
)

var (
	ErrQuotaExceeded        = errors.New("本周期分析次数已用完")
	ErrSubscriptionRequired = errors.New("订阅已失效，请续费后再试")
	ErrRateLimited          = errors.New("新账号请稍后再提交分析")
	ErrUserNotFound         = errors.New("用户不存在")
)

// EntryLimitError 条目数超过套餐上限
type EntryLimitError struct {
	Limit int
	Count int
}

func (e *EntryLimitError) Error() string {
	return fmt.Sprintf("反馈条目数 %d 超过套餐上限 %d", e.Count, e.Limit)
}

type QuotaService struct {
	userRepo *repository.UserRepository
	cfg      *config.Config
	now      func() time.Time
}

func NewQuotaService(userRepo *repository.UserRepository, cfg *config.Config) *QuotaService {
	return &QuotaService{
		userRepo: userRepo,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// autoResets free 和年付 growth 按 30 天滚动重置；月付 growth 由扣款 webhook 重置
func autoResets(user *model.User) bool {
	return user.Plan != model.PlanGrowth || user.BillingCycle == model.BillingAnnual
}

// CheckAndMaybeReset 追赶式重置：距上次重置满 N 个周期时一次性前进 N 个周期并清零
func (s *QuotaService) CheckAndMaybeReset(user *model.User, now time.Time) (*model.User, error) {
	if !autoResets(user) {
		return user, nil
	}

	var resetAt time.Time
	if user.LastResetAt.IsZero() {
		resetAt = now
	} else {
		elapsed := now.Sub(user.LastResetAt)
		if elapsed < UsagePeriod {
			return user, nil
		}
		periods := elapsed / UsagePeriod
		resetAt = user.LastResetAt.Add(periods * UsagePeriod)
	}

	ok, err := s.userRepo.ResetUsage(user.ID, resetAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 已被并发请求重置，以库中数据为准
		return s.userRepo.GetByID(user.ID)
	}

	updated := *user
	updated.AnalysesUsedThisPeriod = 0
	updated.LastResetAt = resetAt
	return &updated, nil
}

// Admit 判断用户当前能否发起新的分析
func (s *QuotaService) Admit(user *model.User, now time.Time) error {
	if user.Plan == model.PlanGrowth && !s.subscriptionUsable(user, now) {
		return ErrSubscriptionRequired
	}

	if user.AnalysesUsedThisPeriod >= s.cfg.PlanLevel(user.Plan).MonthlyAnalyses {
		return ErrQuotaExceeded
	}
	return nil
}

// subscriptionUsable active 可用；past_due 在到期后宽限期内仍可用
func (s *QuotaService) subscriptionUsable(user *model.User, now time.Time) bool {
	switch user.SubscriptionStatus {
	case model.SubscriptionActive:
		return true
	case model.SubscriptionPastDue:
		if user.PlanExpiresAt == nil {
			return false
		}
		grace := time.Duration(s.cfg.Billing.GraceDays) * 24 * time.Hour
		return now.Before(user.PlanExpiresAt.Add(grace))
	default:
		return false
	}
}

// AdmitEntryCount 检查条目数是否超过套餐上限
func (s *QuotaService) AdmitEntryCount(plan string, count int) error {
	limit := s.cfg.PlanLevel(plan).MaxEntries
	if count > limit {
		return &EntryLimitError{Limit: limit, Count: count}
	}
	return nil
}

// NewAccountThrottle 新注册账号在窗口期内只允许一次分析
func (s *QuotaService) NewAccountThrottle(createdAt time.Time, used int, now time.Time) error {
	if now.Sub(createdAt) < NewAccountWindow && used >= 1 {
		return ErrRateLimited
	}
	return nil
}

// Commit 用量加一，只能在任务转为 completed 的事务中调用
func (s *QuotaService) Commit(tx *gorm.DB, userID int64) error {
	return s.userRepo.WithTx(tx).IncrementUsage(userID)
}

// LoadProfile 读取用户并执行到期重置
func (s *QuotaService) LoadProfile(userID int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.CheckAndMaybeReset(user, s.now())
}

// GetQuotaInfo 获取用户配额信息
func (s *QuotaService) GetQuotaInfo(userID int64) (*dto.QuotaInfo, error) {
	user, err := s.LoadProfile(userID)
	if err != nil {
		return nil, err
	}

	level := s.cfg.PlanLevel(user.Plan)
	remain := level.MonthlyAnalyses - user.AnalysesUsedThisPeriod
	if remain < 0 {
		remain = 0
	}

	info := &dto.QuotaInfo{
		Plan:               user.Plan,
		BillingCycle:       user.BillingCycle,
		SubscriptionStatus: user.SubscriptionStatus,
		MonthlyLimit:       level.MonthlyAnalyses,
		MonthlyUsed:        user.AnalysesUsedThisPeriod,
		MonthlyRemain:      remain,
		MaxEntries:         level.MaxEntries,
		LastResetAt:        user.LastResetAt.Format(time.RFC3339),
	}

	if autoResets(user) {
		info.NextResetAt = user.LastResetAt.Add(UsagePeriod).Format(time.RFC3339)
	} else if user.PlanExpiresAt != nil {
		info.NextResetAt = user.PlanExpiresAt.Format(time.RFC3339)
	}

	return info, nil
}
