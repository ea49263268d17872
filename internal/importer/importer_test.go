package importer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/livesync"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

// fakeStore records saved rows for assertions.
type fakeStore struct {
	properties []model.Property
	activities []model.Activity
	batches    int
	feed       *livesync.Broadcaster
}

func newFakeStore() *fakeStore {
	return &fakeStore{feed: livesync.NewBroadcaster()}
}

func (f *fakeStore) FetchPlans(context.Context, string) ([]model.Plan, error) { return nil, nil }
func (f *fakeStore) FetchActivities(context.Context, string, string) ([]model.Activity, error) {
	return nil, nil
}
func (f *fakeStore) FetchProperties(context.Context, store.PropertyFilter) ([]model.Property, error) {
	return nil, nil
}
func (f *fakeStore) SavePlan(context.Context, model.Plan) error { return nil }
func (f *fakeStore) SaveActivity(_ context.Context, a model.Activity) error {
	f.activities = append(f.activities, a)
	return nil
}
func (f *fakeStore) SaveProperties(_ context.Context, ps []model.Property) (int64, error) {
	f.properties = append(f.properties, ps...)
	f.batches++
	return int64(len(ps)), nil
}
func (f *fakeStore) Changes() livesync.Feed        { return f.feed }
func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { f.feed.Close(); return nil }

func TestImportCSVProperties(t *testing.T) {
	csv := `Agency Name,Agent Name,Suburb,Street Name,Price,Commission Rate,Contract Status,Sold Date
Harcourts Success,Jane Doe,Pullenvale,Grandview Rd,"$900,000",2.0,sold,2026-02-20
Ray White,John Roe,Moggill,Kangaroo Gully Rd,700000,2.5,listed,
,,,,,,,
`
	fs := newFakeStore()
	im := New(fs)

	res, err := im.ImportCSV(context.Background(), strings.NewReader(csv), Options{
		Kind:      KindProperties,
		BatchSize: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.Rows)
	assert.Equal(t, int64(2), res.Inserted)
	assert.Equal(t, int64(1), res.Skipped)

	require.Len(t, fs.properties, 2)
	p := fs.properties[0]
	assert.Equal(t, "Harcourts Success", p.AgencyName)
	assert.Equal(t, 900000.0, p.Price)
	assert.Equal(t, 2.0, p.CommissionRate)
	assert.True(t, p.Sold())
}

func TestImportCSVBatching(t *testing.T) {
	var b strings.Builder
	b.WriteString("agency_name,suburb,price\n")
	for i := 0; i < 5; i++ {
		b.WriteString("Ray White,Moggill,700000\n")
	}

	fs := newFakeStore()
	res, err := New(fs).ImportCSV(context.Background(), strings.NewReader(b.String()), Options{
		Kind:      KindProperties,
		BatchSize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Inserted)
	// 2 + 2 + 1
	assert.Equal(t, 3, fs.batches)
}

func TestImportCSVActivities(t *testing.T) {
	csv := `agent_ref,activity_type,suburb,street_name,knocks_made,activity_date
agent-7,door_knock,Moggill,Grandview Rd,8,2026-03-04
,door_knock,Moggill,Grandview Rd,4,2026-03-04
`
	fs := newFakeStore()
	res, err := New(fs).ImportCSV(context.Background(), strings.NewReader(csv), Options{
		Kind:      KindActivities,
		BatchSize: 10,
	})
	require.NoError(t, err)

	// row without agent_ref is dropped at insert time
	assert.Equal(t, int64(2), res.Rows)
	assert.Equal(t, int64(1), res.Inserted)
	require.Len(t, fs.activities, 1)
	assert.Equal(t, model.ActivityDoorKnock, fs.activities[0].Type)
	assert.Equal(t, 8, fs.activities[0].KnocksMade)
}

func TestImportCSVBadBatchSize(t *testing.T) {
	_, err := New(newFakeStore()).ImportCSV(context.Background(), strings.NewReader("a\n"), Options{Kind: KindProperties})
	assert.Error(t, err)
}

func TestImportUnknownKind(t *testing.T) {
	csv := "agency_name\nRay White\n"
	_, err := New(newFakeStore()).ImportCSV(context.Background(), strings.NewReader(csv), Options{
		Kind:      Kind("bogus"),
		BatchSize: 10,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestZipRowShortRow(t *testing.T) {
	raw := zipRow([]string{"a", "b", "c"}, []string{"1"})
	require.NotNil(t, raw)
	assert.Equal(t, "1", raw["a"])
	_, hasB := raw["b"]
	assert.False(t, hasB)
}

func TestNormalizeHeader(t *testing.T) {
	got := normalizeHeader([]string{" Agency Name ", "SUBURB", "street_name"})
	assert.Equal(t, []string{"agency_name", "suburb", "street_name"}, got)
}
