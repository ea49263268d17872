// Package store persists plan, activity, and property rows and emits typed
// change events as they are written.
package store

import (
	"context"

	"github.com/sells-group/prospect-cli/internal/livesync"
	"github.com/sells-group/prospect-cli/internal/model"
)

// PropertyFilter narrows a property fetch. Zero values mean "all".
type PropertyFilter struct {
	Agency string `json:"agency,omitempty"`
	Suburb string `json:"suburb,omitempty"`
}

// Store is the persistence interface the engine consumes. Fetch methods
// return fully-decoded rows; all default-filling for loose source data
// happens behind this boundary.
type Store interface {
	FetchPlans(ctx context.Context, agentRef string) ([]model.Plan, error)
	FetchActivities(ctx context.Context, agentRef, suburb string) ([]model.Activity, error)
	FetchProperties(ctx context.Context, filter PropertyFilter) ([]model.Property, error)

	SavePlan(ctx context.Context, plan model.Plan) error
	SaveActivity(ctx context.Context, activity model.Activity) error
	SaveProperties(ctx context.Context, properties []model.Property) (int64, error)

	// Changes is the row-change feed for live sync. The feed stays valid
	// until Close.
	Changes() livesync.Feed

	Migrate(ctx context.Context) error
	Close() error
}
