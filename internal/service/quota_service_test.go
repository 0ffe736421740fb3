package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/insight_go_server/internal/model"
	"github.com/qs3c/insight_go_server/internal/repository"
	"github.com/qs3c/insight_go_server/internal/testutil"
)

func setupQuotaService(t *testing.T) (*QuotaService, *gorm.DB, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	service := NewQuotaService(repository.NewUserRepository(db), testConfig())

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return service, db, cleanup
}

func TestQuotaService_CheckAndMaybeReset_CatchUp(t *testing.T) {
	service, db, cleanup := setupQuotaService(t)
	defer cleanup()

	now := time.Now().UTC().Truncate(time.Second)
	last := now.Add(-95 * 24 * time.Hour)
	user := testutil.TestUser(t, db, testutil.WithQuotaUsed(3), testutil.WithLastResetAt(last))

	updated, err := service.CheckAndMaybeReset(user, now)
	require.NoError(t, err)

	// 95 天 = 3 个完整周期
	assert.Equal(t, 0, updated.AnalysesUsedThisPeriod)
	assert.True(t, updated.LastResetAt.Equal(last.Add(90*24*time.Hour)))

	stored, _ := repository.NewUserRepository(db).GetByID(user.ID)
	assert.Equal(t, 0, stored.AnalysesUsedThisPeriod)
	assert.True(t, stored.LastResetAt.Equal(last.Add(90*24*time.Hour)))
}

func TestQuotaService_CheckAndMaybeReset_NotDue(t *testing.T) {
	service, db, cleanup := setupQuotaService(t)
	defer cleanup()

	now := time.Now().UTC()
	user := testutil.TestUser(t, db, testutil.WithQuotaUsed(2), testutil.WithLastResetAt(now.Add(-29*24*time.Hour)))

	updated, err := service.CheckAndMaybeReset(user, now)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.AnalysesUsedThisPeriod)
}

func TestQuotaService_CheckAndMaybeReset_ConcurrentLoser(t *testing.T) {
	service, db, cleanup := setupQuotaService(t)
	defer cleanup()

	now := time.Now().UTC().Truncate(time.Second)
	user := testutil.TestUser(t, db, testutil.WithQuotaUsed(3), testutil.WithLastResetAt(now.Add(-31*24*time.Hour)))
	stale := *user

	_, err := service.CheckAndMaybeReset(user, now)
	require.NoError(t, err)

	// 第二个调用方持有旧数据，重置不会再次生效
	require.NoError(t, repository.NewUserRepository(db).IncrementUsage(user.ID))
	updated, err := service.CheckAndMaybeReset(&stale, now)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.AnalysesUsedThisPeriod)
}

func TestQuotaService_CheckAndMaybeReset_GrowthMonthlySkipped(t *testing.T) {
	service, db, cleanup := setupQuotaService(t)
	defer cleanup()

	now := time.Now().UTC()
	user := testutil.TestUser(t, db,
		testutil.WithPlan(model.PlanGrowth, model.BillingMonthly, model.SubscriptionActive),
		testutil.WithQuotaUsed(10),
		testutil.WithLastResetAt(now.Add(-60*24*time.Hour)))

	updated, err := service.CheckAndMaybeReset(user, now)
	require.NoError(t, err)
	assert.Equal(t, 10, updated.AnalysesUsedThisPeriod)

	annual := testutil.TestUser(t, db,
		testutil.WithPlan(model.PlanGrowth, model.BillingAnnual, model.SubscriptionActive),
		testutil.WithQuotaUsed(10),
		testutil.WithLastResetAt(now.Add(-60*24*time.Hour)))

	updated, err = service.CheckAndMaybeReset(annual, now)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.AnalysesUsedThisPeriod)
}

func TestQuotaService_Admit_QuotaThenReset(t *testing.T) {
	service, db, cleanup := setupQuotaService(t)
	defer cleanup()

	now := time.Now().UTC().Truncate(time.Second)
	user := testutil.TestUser(t, db, testutil.WithQuotaUsed(3), testutil.WithLastResetAt(now.Add(-10*24*time.Hour)))

	assert.ErrorIs(t, service.Admit(user, now), ErrQuotaExceeded)

	later := now.Add(21 * 24 * time.Hour)
	updated, err := service.CheckAndMaybeReset(user, later)
	require.NoError(t, err)
	assert.NoError(t, service.Admit(updated, later))
}

func TestQuotaService_Admit_Subscription(t *testing.T) {
	service, _, cleanup := setupQuotaService(t)
	defer cleanup()

	now := time.Now().UTC()
	expired := now.Add(-24 * time.Hour)
	longExpired := now.Add(-10 * 24 * time.Hour)

	tests := []struct {
		name   string
		status string
		expiry *time.Time
		want   error
	}{
		{"active", model.SubscriptionActive, nil, nil},
		{"past due within grace", model.SubscriptionPastDue, &expired, nil},
		{"past due after grace", model.SubscriptionPastDue, &longExpired, ErrSubscriptionRequired},
		{"past due without expiry", model.SubscriptionPastDue, nil, ErrSubscriptionRequired},
		{"cancelled", model.SubscriptionCancelled, nil, ErrSubscriptionRequired},
		{"none", model.SubscriptionNone, nil, ErrSubscriptionRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &model.User{
				Plan:               model.PlanGrowth,
				SubscriptionStatus: tt.status,
				PlanExpiresAt:      tt.expiry,
			}
			err := service.Admit(user, now)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestQuotaService_AdmitEntryCount(t *testing.T) {
	service, _, cleanup := setupQuotaService(t)
	defer cleanup()

	assert.NoError(t, service.AdmitEntryCount(model.PlanFree, 500))
	assert.NoError(t, service.AdmitEntryCount(model.PlanGrowth, 5000))

	err := service.AdmitEntryCount(model.PlanFree, 501)
	var limitErr *EntryLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 500, limitErr.Limit)
	assert.Equal(t, 501, limitErr.Count)

	// 未知套餐按 free 处理
	assert.Error(t, service.AdmitEntryCount("enterprise", 501))
}

func TestQuotaService_NewAccountThrottle(t *testing.T) {
	service, _, cleanup := setupQuotaService(t)
	defer cleanup()

	now := time.Now().UTC()

	assert.NoError(t, service.NewAccountThrottle(now.Add(-time.Minute), 0, now))
	assert.ErrorIs(t, service.NewAccountThrottle(now.Add(-time.Minute), 1, now), ErrRateLimited)
	assert.NoError(t, service.NewAccountThrottle(now.Add(-11*time.Minute), 1, now))
}

func TestQuotaService_Commit(t *testing.T) {
	service, db, cleanup := setupQuotaService(t)
	defer cleanup()

	user := testutil.TestUser(t, db, testutil.WithQuotaUsed(1))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return service.Commit(tx, user.ID)
	}))

	stored, _ := repository.NewUserRepository(db).GetByID(user.ID)
	assert.Equal(t, 2, stored.AnalysesUsedThisPeriod)
}

func TestQuotaService_GetQuotaInfo(t *testing.T) {
	service, db, cleanup := setupQuotaService(t)
	defer cleanup()

	user := testutil.TestUser(t, db, testutil.WithQuotaUsed(2))

	info, err := service.GetQuotaInfo(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanFree, info.Plan)
	assert.Equal(t, 3, info.MonthlyLimit)
	assert.Equal(t, 2, info.MonthlyUsed)
	assert.Equal(t, 1, info.MonthlyRemain)
	assert.Equal(t, 500, info.MaxEntries)
	assert.NotEmpty(t, info.NextResetAt)

	_, err = service.GetQuotaInfo(99999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
