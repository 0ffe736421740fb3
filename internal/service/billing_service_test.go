package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/insight_go_server/internal/model"
	"github.com/qs3c/insight_go_server/internal/model/dto"
	"github.com/qs3c/insight_go_server/internal/repository"
	"github.com/qs3c/insight_go_server/internal/testutil"
)

func setupBillingService(t *testing.T) (*BillingService, *gorm.DB, *fixedClock) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	svc := NewBillingService(repository.NewSubscriptionRepository(db), repository.NewUserRepository(db), testConfig())
	clock := &fixedClock{t: time.Now().UTC().Truncate(time.Second)}
	svc.now = clock.Now

	return svc, db, clock
}

func reloadUser(t *testing.T, db *gorm.DB, id int64) *model.User {
	t.Helper()
	var user model.User
	require.NoError(t, db.First(&user, id).Error)
	return &user
}

func TestBillingService_VerifySignature(t *testing.T) {
	svc, _, _ := setupBillingService(t)
	body := []byte(`{"event":"subscription.charged"}`)

	tests := []struct {
		name      string
		body      []byte
		signature string
		wantErr   bool
	}{
		{"valid", body, Sign("whsec_test", body), false},
		{"wrong secret", body, Sign("other", body), true},
		{"tampered body", []byte(`{"event":"subscription.cancelled"}`), Sign("whsec_test", body), true},
		{"not hex", body, "zz-not-hex", true},
		{"empty", body, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.VerifySignature(tt.body, tt.signature)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSignature)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBillingService_ActivateAndCharge(t *testing.T) {
	svc, db, clock := setupBillingService(t)
	user := testutil.TestUser(t, db, testutil.WithQuotaUsed(3))
	periodEnd := clock.Now().Add(30 * 24 * time.Hour)

	err := svc.HandleEvent(&dto.BillingEvent{
		Event: dto.EventSubscriptionActivated,
		Payload: dto.BillingEventPayload{
			SubscriptionID:   "sub_1",
			UserID:           user.ID,
			BillingCycle:     model.BillingMonthly,
			CurrentPeriodEnd: periodEnd.Unix(),
		},
	})
	require.NoError(t, err)

	got := reloadUser(t, db, user.ID)
	assert.Equal(t, model.PlanGrowth, got.Plan)
	assert.Equal(t, model.SubscriptionActive, got.SubscriptionStatus)
	assert.Equal(t, 0, got.AnalysesUsedThisPeriod)
	require.NotNil(t, got.PlanExpiresAt)
	assert.True(t, got.PlanExpiresAt.Equal(periodEnd))

	// 用掉一些额度后续费
	require.NoError(t, db.Model(&model.User{}).Where("id = ?", user.ID).Update("analyses_used_this_period", 7).Error)
	clock.Advance(30 * 24 * time.Hour)

	charge := &dto.BillingEvent{
		Event: dto.EventSubscriptionCharged,
		Payload: dto.BillingEventPayload{
			SubscriptionID:   "sub_1",
			UserID:           user.ID,
			PaymentID:        "pay_1",
			CurrentPeriodEnd: periodEnd.Add(30 * 24 * time.Hour).Unix(),
		},
	}
	require.NoError(t, svc.HandleEvent(charge))

	got = reloadUser(t, db, user.ID)
	assert.Equal(t, 0, got.AnalysesUsedThisPeriod)
	assert.True(t, got.LastResetAt.Equal(clock.Now()))

	// 重复投递同一笔扣款不会再次清零
	require.NoError(t, db.Model(&model.User{}).Where("id = ?", user.ID).Update("analyses_used_this_period", 2).Error)
	require.NoError(t, svc.HandleEvent(charge))

	got = reloadUser(t, db, user.ID)
	assert.Equal(t, 2, got.AnalysesUsedThisPeriod)

	var count int64
	db.Model(&model.Subscription{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestBillingService_ActivateTwiceKeepsUsage(t *testing.T) {
	svc, db, _ := setupBillingService(t)
	user := testutil.TestUser(t, db)

	event := &dto.BillingEvent{
		Event:   dto.EventSubscriptionActivated,
		Payload: dto.BillingEventPayload{SubscriptionID: "sub_2", UserID: user.ID, BillingCycle: model.BillingAnnual},
	}
	require.NoError(t, svc.HandleEvent(event))
	require.NoError(t, db.Model(&model.User{}).Where("id = ?", user.ID).Update("analyses_used_this_period", 4).Error)
	require.NoError(t, svc.HandleEvent(event))

	got := reloadUser(t, db, user.ID)
	assert.Equal(t, model.BillingAnnual, got.BillingCycle)
	assert.Equal(t, 4, got.AnalysesUsedThisPeriod)
}

func TestBillingService_PaymentFailedThenCancelled(t *testing.T) {
	svc, db, _ := setupBillingService(t)
	user := testutil.TestUser(t, db)

	require.NoError(t, svc.HandleEvent(&dto.BillingEvent{
		Event:   dto.EventSubscriptionActivated,
		Payload: dto.BillingEventPayload{SubscriptionID: "sub_3", UserID: user.ID},
	}))

	failed := &dto.BillingEvent{Event: dto.EventPaymentFailed, Payload: dto.BillingEventPayload{SubscriptionID: "sub_3"}}
	require.NoError(t, svc.HandleEvent(failed))
	require.NoError(t, svc.HandleEvent(failed))
	assert.Equal(t, model.SubscriptionPastDue, reloadUser(t, db, user.ID).SubscriptionStatus)

	require.NoError(t, svc.HandleEvent(&dto.BillingEvent{
		Event:   dto.EventSubscriptionCancelled,
		Payload: dto.BillingEventPayload{SubscriptionID: "sub_3"},
	}))

	got := reloadUser(t, db, user.ID)
	assert.Equal(t, model.PlanFree, got.Plan)
	assert.Equal(t, model.SubscriptionCancelled, got.SubscriptionStatus)

	// 取消后的扣款事件被忽略
	require.NoError(t, svc.HandleEvent(&dto.BillingEvent{
		Event:   dto.EventSubscriptionCharged,
		Payload: dto.BillingEventPayload{SubscriptionID: "sub_3", PaymentID: "pay_late"},
	}))
	assert.Equal(t, model.PlanFree, reloadUser(t, db, user.ID).Plan)
}

func TestBillingService_HandleEvent_Errors(t *testing.T) {
	svc, db, _ := setupBillingService(t)
	user := testutil.TestUser(t, db)

	tests := []struct {
		name  string
		event *dto.BillingEvent
		want  error
	}{
		{
			name:  "unknown event",
			event: &dto.BillingEvent{Event: "invoice.created", Payload: dto.BillingEventPayload{SubscriptionID: "sub_x"}},
			want:  ErrUnknownEvent,
		},
		{
			name:  "missing subscription id",
			event: &dto.BillingEvent{Event: dto.EventSubscriptionActivated, Payload: dto.BillingEventPayload{UserID: user.ID}},
			want:  ErrInvalidBillingEvent,
		},
		{
			name:  "charge without payment id",
			event: &dto.BillingEvent{Event: dto.EventSubscriptionCharged, Payload: dto.BillingEventPayload{SubscriptionID: "sub_x", UserID: user.ID}},
			want:  ErrInvalidBillingEvent,
		},
		{
			name:  "cancel unknown subscription",
			event: &dto.BillingEvent{Event: dto.EventSubscriptionCancelled, Payload: dto.BillingEventPayload{SubscriptionID: "sub_missing"}},
			want:  ErrSubscriptionNotFound,
		},
		{
			name:  "activate for missing user",
			event: &dto.BillingEvent{Event: dto.EventSubscriptionActivated, Payload: dto.BillingEventPayload{SubscriptionID: "sub_y", UserID: 999999}},
			want:  ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, svc.HandleEvent(tt.event), tt.want)
		})
	}

	var count int64
	db.Model(&model.Subscription{}).Count(&count)
	assert.Equal(t, int64(0), count)
}
