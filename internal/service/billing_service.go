package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/insight_go_server/config"
	"github.com/qs3c/insight_go_server/internal/model"
	"github.com/qs3c/insight_go_server/internal/model/dto"
	"github.com/qs3c/insight_go_server/internal/repository"
)

var (
	ErrInvalidSignature     = errors.New("签名校验失败")
	ErrUnknownEvent         = errors.New("未知的计费事件")
	ErrInvalidBillingEvent  = errors.New("计费事件缺少必要字段")
	ErrSubscriptionNotFound = errors.New("订阅不存在")
)

type BillingService struct {
	subRepo  *repository.SubscriptionRepository
	userRepo *repository.UserRepository
	cfg      *config.Config
	now      func() time.Time
}

func NewBillingService(subRepo *repository.SubscriptionRepository, userRepo *repository.UserRepository, cfg *config.Config) *BillingService {
	return &BillingService{
		subRepo:  subRepo,
		userRepo: userRepo,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// VerifySignature 校验请求体的 HMAC-SHA256 签名（十六进制）
func (s *BillingService) VerifySignature(body []byte, signature string) error {
	if s.cfg.Billing.WebhookSecret == "" || signature == "" {
		return ErrInvalidSignature
	}

	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.Billing.WebhookSecret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign 生成签名，供测试和本地联调使用
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HandleEvent 应用计费事件，重复投递的事件不会产生额外影响
func (s *BillingService) HandleEvent(event *dto.BillingEvent) error {
	p := event.Payload
	if p.SubscriptionID == "" {
		return ErrInvalidBillingEvent
	}

	var apply func(tx *gorm.DB, p dto.BillingEventPayload) error
	switch event.Event {
	case dto.EventSubscriptionActivated:
		apply = s.activate
	case dto.EventSubscriptionCharged:
		apply = s.charge
	case dto.EventPaymentFailed:
		apply = s.paymentFailed
	case dto.EventSubscriptionCancelled:
		apply = s.cancel
	default:
		return ErrUnknownEvent
	}

	err := s.subRepo.Transaction(func(tx *gorm.DB) error {
		return apply(tx, p)
	})
	if err != nil {
		log.Printf("Billing %s for subscription %s failed: %v", event.Event, p.SubscriptionID, err)
		return err
	}

	log.Printf("Billing %s applied to subscription %s", event.Event, p.SubscriptionID)
	return nil
}

// activate 开通订阅，开始新的用量周期
func (s *BillingService) activate(tx *gorm.DB, p dto.BillingEventPayload) error {
	sub, created, err := s.loadOrCreate(tx, p)
	if err != nil {
		return err
	}
	if !created && sub.Status == model.SubscriptionActive {
		return nil
	}

	now := s.now()
	sub.Status = model.SubscriptionActive
	if end := periodEnd(p); end != nil {
		sub.CurrentPeriodEnd = end
	}
	if err := s.subRepo.WithTx(tx).Update(sub); err != nil {
		return err
	}

	return s.userRepo.WithTx(tx).UpdateFields(sub.UserID, map[string]interface{}{
		"plan":                      sub.Plan,
		"billing_cycle":             sub.BillingCycle,
		"subscription_status":       model.SubscriptionActive,
		"plan_expires_at":           sub.CurrentPeriodEnd,
		"analyses_used_this_period": 0,
		"last_reset_at":             now,
	})
}

// charge 续费成功，每个 payment_id 只生效一次
func (s *BillingService) charge(tx *gorm.DB, p dto.BillingEventPayload) error {
	if p.PaymentID == "" {
		return ErrInvalidBillingEvent
	}

	sub, _, err := s.loadOrCreate(tx, p)
	if err != nil {
		return err
	}
	if sub.LastPaymentID == p.PaymentID {
		return nil
	}
	if sub.Status == model.SubscriptionCancelled {
		log.Printf("Billing: ignoring charge %s on cancelled subscription %s", p.PaymentID, sub.ExternalID)
		return nil
	}

	now := s.now()
	sub.Status = model.SubscriptionActive
	sub.LastPaymentID = p.PaymentID
	if end := periodEnd(p); end != nil {
		sub.CurrentPeriodEnd = end
	}
	if err := s.subRepo.WithTx(tx).Update(sub); err != nil {
		return err
	}

	return s.userRepo.WithTx(tx).UpdateFields(sub.UserID, map[string]interface{}{
		"plan":                      sub.Plan,
		"billing_cycle":             sub.BillingCycle,
		"subscription_status":       model.SubscriptionActive,
		"plan_expires_at":           sub.CurrentPeriodEnd,
		"analyses_used_this_period": 0,
		"last_reset_at":             now,
	})
}

// paymentFailed 扣款失败进入宽限期，额度保持不变
func (s *BillingService) paymentFailed(tx *gorm.DB, p dto.BillingEventPayload) error {
	sub, err := s.load(tx, p.SubscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != model.SubscriptionActive {
		return nil
	}

	sub.Status = model.SubscriptionPastDue
	if err := s.subRepo.WithTx(tx).Update(sub); err != nil {
		return err
	}

	return s.userRepo.WithTx(tx).UpdateFields(sub.UserID, map[string]interface{}{
		"subscription_status": model.SubscriptionPastDue,
	})
}

// cancel 取消订阅，用户回到 free 套餐
func (s *BillingService) cancel(tx *gorm.DB, p dto.BillingEventPayload) error {
	sub, err := s.load(tx, p.SubscriptionID)
	if err != nil {
		return err
	}
	if sub.Status == model.SubscriptionCancelled {
		return nil
	}

	sub.Status = model.SubscriptionCancelled
	if err := s.subRepo.WithTx(tx).Update(sub); err != nil {
		return err
	}

	return s.userRepo.WithTx(tx).UpdateFields(sub.UserID, map[string]interface{}{
		"plan":                model.PlanFree,
		"subscription_status": model.SubscriptionCancelled,
	})
}

func (s *BillingService) load(tx *gorm.DB, externalID string) (*model.Subscription, error) {
	sub, err := s.subRepo.WithTx(tx).GetByExternalID(externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (s *BillingService) loadOrCreate(tx *gorm.DB, p dto.BillingEventPayload) (*model.Subscription, bool, error) {
	sub, err := s.load(tx, p.SubscriptionID)
	if err == nil {
		return sub, false, nil
	}
	if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, false, err
	}

	if p.UserID == 0 {
		return nil, false, ErrInvalidBillingEvent
	}
	if _, err := s.userRepo.WithTx(tx).GetByID(p.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrUserNotFound
		}
		return nil, false, err
	}

	sub = &model.Subscription{
		ExternalID:       p.SubscriptionID,
		UserID:           p.UserID,
		Plan:             model.PlanGrowth,
		BillingCycle:     model.BillingMonthly,
		Status:           model.SubscriptionActive,
		CurrentPeriodEnd: periodEnd(p),
	}
	if p.BillingCycle == model.BillingAnnual {
		sub.BillingCycle = model.BillingAnnual
	}
	if err := s.subRepo.WithTx(tx).Create(sub); err != nil {
		return nil, false, err
	}
	return sub, true, nil
}

func periodEnd(p dto.BillingEventPayload) *time.Time {
	if p.CurrentPeriodEnd <= 0 {
		return nil
	}
	t := time.Unix(p.CurrentPeriodEnd, 0).UTC()
	return &t
}
