// Package reconcile folds logged activity against marketing-plan targets to
// produce completed/target rollups at street, suburb, and overall granularity.
//
// Every call rebuilds its output from the source rows. Nothing is patched
// incrementally, so a recompute can never double-count and two calls with the
// same input return identical results.
package reconcile

import (
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/normalize"
)

// Tally is one completed/target pair.
type Tally struct {
	Completed int `json:"completed"`
	Target    int `json:"target"`
}

// Percent returns progress clamped to [0, 100]. A zero target reports 0
// rather than dividing by zero.
func (t Tally) Percent() int {
	if t.Target <= 0 {
		return 0
	}
	pct := int(math.Round(float64(t.Completed) / float64(t.Target) * 100))
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// StreetKind says which metric a street row tracks.
type StreetKind string

const (
	KindKnock StreetKind = "door_knock"
	KindCall  StreetKind = "phone_call"
)

// StreetProgress is the completed/target pair for one planned street and
// metric. Only planned streets ever appear as rows; unplanned activity is
// counted in the suburb totals and logged, never listed per street.
type StreetProgress struct {
	Name      string     `json:"name"`
	Suburb    string     `json:"suburb"`
	Kind      StreetKind `json:"kind"`
	Completed int        `json:"completed"`
	Target    int        `json:"target"`
}

// Percent returns the street's clamped progress percentage.
func (s StreetProgress) Percent() int {
	return Tally{Completed: s.Completed, Target: s.Target}.Percent()
}

// Progress is one reconciliation pass's output: suburb-or-overall metric
// totals plus the per-street breakdown in plan declaration order.
type Progress struct {
	DoorKnocks           Tally            `json:"door_knocks"`
	PhoneCalls           Tally            `json:"phone_calls"`
	Connects             Tally            `json:"connects"`
	DesktopAppraisals    Tally            `json:"desktop_appraisals"`
	FaceToFaceAppraisals Tally            `json:"face_to_face_appraisals"`
	Streets              []StreetProgress `json:"streets"`
}

// Aggregator reconciles plans against activity streams. It holds only the
// suburb table; all aggregation state lives in the per-call fold.
type Aggregator struct {
	suburbs normalize.SuburbTable
}

// New creates an Aggregator using the given suburb table.
func New(suburbs normalize.SuburbTable) *Aggregator {
	return &Aggregator{suburbs: suburbs}
}

// Suburb reconciles one plan against activities whose normalized suburb
// matches the plan's. Activities from other agents (when the plan names one)
// or other suburbs are ignored.
func (a *Aggregator) Suburb(plan model.Plan, activities []model.Activity) *Progress {
	return a.fold([]model.Plan{plan}, activities, false)
}

// Overall reconciles all of an agent's plans in one pass. Street keys are
// namespaced by suburb so identical names in different suburbs never collide.
func (a *Aggregator) Overall(plans []model.Plan, activities []model.Activity) *Progress {
	return a.fold(plans, activities, true)
}

// streetRef indexes a mutable street row during the fold.
type streetRef struct {
	idx int
}

func (a *Aggregator) fold(plans []model.Plan, activities []model.Activity, namespaced bool) *Progress {
	p := &Progress{Streets: []StreetProgress{}}

	knockIdx := make(map[string]streetRef)
	callIdx := make(map[string]streetRef)
	planSuburbs := make(map[string]string) // canonical suburb -> agent ref owning it

	for _, plan := range plans {
		suburb := a.suburbs.Suburb(plan.Suburb)
		planSuburbs[suburb] = plan.AgentRef

		p.Connects.Target += plan.TargetConnects
		p.DesktopAppraisals.Target += plan.TargetDesktopAppraisals
		p.FaceToFaceAppraisals.Target += plan.TargetFaceToFaceAppraisals

		for _, st := range plan.DoorKnockStreets {
			p.DoorKnocks.Target += st.TargetKnocks
			key := matchKey(suburb, st.Name, namespaced)
			if ref, dup := knockIdx[key]; dup {
				// The same street across two plan windows: targets add up,
				// keeping the total equal to the sum of the street rows.
				p.Streets[ref.idx].Target += st.TargetKnocks
				continue
			}
			p.Streets = append(p.Streets, StreetProgress{
				Name: st.Name, Suburb: suburb, Kind: KindKnock, Target: st.TargetKnocks,
			})
			knockIdx[key] = streetRef{idx: len(p.Streets) - 1}
		}
		for _, st := range plan.PhoneCallStreets {
			p.PhoneCalls.Target += st.TargetCalls
			key := matchKey(suburb, st.Name, namespaced)
			if ref, dup := callIdx[key]; dup {
				p.Streets[ref.idx].Target += st.TargetCalls
				continue
			}
			p.Streets = append(p.Streets, StreetProgress{
				Name: st.Name, Suburb: suburb, Kind: KindCall, Target: st.TargetCalls,
			})
			callIdx[key] = streetRef{idx: len(p.Streets) - 1}
		}
	}

	unplanned := make(map[string]bool)

	for _, act := range activities {
		suburb := a.suburbs.Suburb(act.Suburb)
		agentRef, planned := planSuburbs[suburb]
		if !planned {
			if !namespaced {
				// Suburb mode only reconciles the plan's own suburb.
				continue
			}
			// Overall mode keeps the work in the totals under its own suburb.
			agentRef = ""
		}
		if agentRef != "" && act.AgentRef != "" && act.AgentRef != agentRef {
			continue
		}

		// Appraisal counters contribute regardless of street match.
		p.DesktopAppraisals.Completed += act.DesktopAppraisals
		p.FaceToFaceAppraisals.Completed += act.FaceToFaceAppraisals

		switch act.Type {
		case model.ActivityDoorKnock:
			p.DoorKnocks.Completed += act.KnocksMade
			key := matchKey(suburb, act.Street, namespaced)
			if ref, ok := knockIdx[key]; ok {
				p.Streets[ref.idx].Completed += act.KnocksMade
			} else {
				reportUnplanned(unplanned, suburb, act)
			}
		case model.ActivityPhoneCall:
			p.PhoneCalls.Completed += act.CallsConnected
			p.Connects.Completed += act.CallsAnswered
			key := matchKey(suburb, act.Street, namespaced)
			if ref, ok := callIdx[key]; ok {
				p.Streets[ref.idx].Completed += act.CallsConnected
			} else {
				reportUnplanned(unplanned, suburb, act)
			}
		case model.ActivityConnection:
			p.Connects.Completed += act.CallsConnected
		}
	}

	return p
}

// matchKey builds the street matching key: suburb-namespaced in overall mode,
// bare in suburb mode.
func matchKey(suburb, street string, namespaced bool) string {
	if namespaced {
		return normalize.StreetKey(suburb, street)
	}
	return normalize.Street(street)
}

// reportUnplanned logs an activity whose street was never declared in a
// plan, once per street key. The work still counts in the metric totals; it
// just has no per-street row.
func reportUnplanned(seen map[string]bool, suburb string, act model.Activity) {
	key := normalize.StreetKey(suburb, act.Street)
	if seen[key] {
		return
	}
	seen[key] = true
	zap.L().Warn("reconcile: activity street not in plan",
		zap.String("suburb", suburb),
		zap.String("street", act.Street),
		zap.String("activity_type", string(act.Type)),
	)
}
