package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/livesync"
	"github.com/sells-group/prospect-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "prospect.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLitePlanRoundtrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	plan := model.Plan{
		ID:        "plan-1",
		AgentRef:  "agent-7",
		Suburb:    "Moggill QLD 4070",
		StartDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
		DoorKnockStreets: []model.DoorKnockStreet{
			{Name: "Grandview Rd", Why: "high turnover", HouseCount: 42, TargetKnocks: 30, TargetAnswers: 10},
		},
		PhoneCallStreets: []model.PhoneCallStreet{
			{Name: "Kangaroo Gully Rd", TargetCalls: 25},
		},
		TargetConnects:             12,
		TargetDesktopAppraisals:    3,
		TargetFaceToFaceAppraisals: 2,
	}
	require.NoError(t, s.SavePlan(ctx, plan))

	plans, err := s.FetchPlans(ctx, "agent-7")
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, plan, plans[0])

	// upsert keeps a single row
	plan.TargetConnects = 20
	require.NoError(t, s.SavePlan(ctx, plan))
	plans, err = s.FetchPlans(ctx, "agent-7")
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, 20, plans[0].TargetConnects)
}

func TestSQLiteActivityRoundtrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SaveActivity(ctx, model.Activity{
		AgentRef:   "agent-7",
		Type:       model.ActivityDoorKnock,
		Suburb:     "Moggill",
		Street:     "Grandview Rd",
		Date:       time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		KnocksMade: 8,
		Tags:       []string{"follow-up"},
	}))
	require.NoError(t, s.SaveActivity(ctx, model.Activity{
		AgentRef:       "agent-7",
		Type:           model.ActivityPhoneCall,
		Suburb:         "Kenmore",
		Date:           time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		CallsConnected: 5,
		CallsAnswered:  3,
	}))

	all, err := s.FetchActivities(ctx, "agent-7", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.NotEmpty(t, all[0].ID)
	assert.Equal(t, []string{"follow-up"}, all[0].Tags)

	moggill, err := s.FetchActivities(ctx, "agent-7", "Moggill")
	require.NoError(t, err)
	require.Len(t, moggill, 1)
	assert.Equal(t, 8, moggill[0].KnocksMade)

	none, err := s.FetchActivities(ctx, "someone-else", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLitePropertyRoundtrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	sold := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	n, err := s.SaveProperties(ctx, []model.Property{
		{
			AgencyName:     "Harcourts Success",
			AgentName:      "Jane Doe",
			Suburb:         "Pullenvale",
			Street:         "Grandview Rd",
			Price:          900000,
			SoldPrice:      950000,
			CommissionRate: 2,
			ContractStatus: model.StatusSold,
			ListedDate:     time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
			SoldDate:       &sold,
		},
		{
			AgencyName:     "Ray White",
			Suburb:         "Moggill",
			Street:         "Kangaroo Gully Rd",
			Price:          700000,
			CommissionRate: 2.5,
			ContractStatus: model.StatusListed,
			ListedDate:     time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := s.FetchProperties(ctx, PropertyFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	harcourts, err := s.FetchProperties(ctx, PropertyFilter{Agency: "Harcourts Success"})
	require.NoError(t, err)
	require.Len(t, harcourts, 1)
	assert.True(t, harcourts[0].Sold())
	require.NotNil(t, harcourts[0].SoldDate)
	assert.Equal(t, sold, *harcourts[0].SoldDate)

	moggill, err := s.FetchProperties(ctx, PropertyFilter{Suburb: "Moggill"})
	require.NoError(t, err)
	require.Len(t, moggill, 1)
	assert.False(t, moggill[0].Sold())
}

func TestSQLiteChangeFeed(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	events, unsubscribe := s.Changes().Subscribe()
	defer unsubscribe()

	require.NoError(t, s.SaveActivity(ctx, model.Activity{
		AgentRef: "agent-7",
		Type:     model.ActivityPhoneCall,
		Suburb:   "Moggill",
	}))

	select {
	case ev := <-events:
		assert.Equal(t, livesync.TableActivities, ev.Table)
		assert.Equal(t, livesync.KindInsert, ev.Kind)
		assert.Equal(t, "agent-7", ev.AgentRef)
	case <-time.After(time.Second):
		t.Fatal("no change event published")
	}

	require.NoError(t, s.SavePlan(ctx, model.Plan{ID: "plan-1", AgentRef: "agent-7", Suburb: "Moggill"}))
	select {
	case ev := <-events:
		assert.Equal(t, livesync.TablePlans, ev.Table)
	case <-time.After(time.Second):
		t.Fatal("no plan change event published")
	}
}
