package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/insight_go_server/internal/model"
	"github.com/qs3c/insight_go_server/internal/testutil"
)

func TestSnapshotRepository_ListRecentByUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSnapshotRepository(db)
	user := testutil.TestUser(t, db)
	other := testutil.TestUser(t, db)
	now := time.Now().UTC()

	testutil.TestSnapshot(t, db, user.ID, "job-1", "Old", 3, model.PriorityP2, 5, now.Add(-2*time.Hour))
	testutil.TestSnapshot(t, db, user.ID, "job-2", "New", 5, model.PriorityP1, 8, now.Add(-time.Hour))
	testutil.TestSnapshot(t, db, user.ID, "job-3", "Current", 5, model.PriorityP1, 8, now)
	testutil.TestSnapshot(t, db, other.ID, "job-4", "Foreign", 5, model.PriorityP1, 8, now)

	snaps, err := repo.ListRecentByUser(user.ID, "job-3", 50)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "New", snaps[0].Title)
	assert.Equal(t, "Old", snaps[1].Title)

	limited, err := repo.ListRecentByUser(user.ID, "job-3", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "New", limited[0].Title)
}

func TestSnapshotRepository_CreateBatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSnapshotRepository(db)
	user := testutil.TestUser(t, db)

	require.NoError(t, repo.CreateBatch(nil))
	require.NoError(t, repo.CreateBatch([]*model.OpportunitySnapshot{
		{UserID: user.ID, AnalysisJobID: "job-1", Title: "A", DemandScore: 1, Priority: model.PriorityP3, CreatedAt: time.Now().UTC()},
	}))

	snaps, err := repo.ListRecentByUser(user.ID, "", 10)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}
