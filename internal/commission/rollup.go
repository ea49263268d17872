package commission

import (
	"sort"
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/normalize"
)

// topN is the length of the ranked agency/agent lists in a Summary.
const topN = 5

// AgentTotal aggregates one agent's properties. Name is the first-seen
// trimmed form of the raw name; Key is its normalized form.
type AgentTotal struct {
	Key        string  `json:"key"`
	Name       string  `json:"name"`
	Commission float64 `json:"commission"`
	Listed     int     `json:"listed"`
	Sold       int     `json:"sold"`
}

// AgencyTotal aggregates one agency's properties, with nested per-agent
// rollups for the agency-scoped table.
type AgencyTotal struct {
	Key        string       `json:"key"`
	Name       string       `json:"name"`
	Commission float64      `json:"commission"`
	Properties int          `json:"properties"`
	Listed     int          `json:"listed"`
	Sold       int          `json:"sold"`
	Suburbs    []string     `json:"suburbs"`
	Agents     []AgentTotal `json:"agents"`
}

// StreetTotal aggregates listings for one (street, suburb) pair.
type StreetTotal struct {
	Street     string  `json:"street"`
	Suburb     string  `json:"suburb"`
	Listed     int     `json:"listed"`
	Commission float64 `json:"commission"`
}

// Summary is the full commission rollup. Rankings are deterministic:
// descending commission, ties broken by ascending key, independent of source
// row order.
type Summary struct {
	TotalCommission float64       `json:"total_commission"`
	TotalProperties int           `json:"total_properties"`
	TotalListed     int           `json:"total_listed"`
	TotalSold       int           `json:"total_sold"`
	TopAgency       *AgencyTotal  `json:"top_agency,omitempty"`
	TopAgent        *AgentTotal   `json:"top_agent,omitempty"`
	TopStreet       *StreetTotal  `json:"top_street,omitempty"`
	TopAgencies     []AgencyTotal `json:"top_agencies"`
	TopAgents       []AgentTotal  `json:"top_agents"`
}

type agencyAcc struct {
	total   AgencyTotal
	suburbs map[string]bool
	agents  map[string]*AgentTotal
}

// Rollup folds a property collection into a Summary. The suburb table is
// used only for the suburb dimension on agencies and streets; agency and
// agent keys come from name normalization. Output is rebuilt wholesale on
// every call.
func Rollup(properties []model.Property, suburbs normalize.SuburbTable) *Summary {
	summary := &Summary{
		TopAgencies: []AgencyTotal{},
		TopAgents:   []AgentTotal{},
	}

	agencies := make(map[string]*agencyAcc)
	agents := make(map[string]*AgentTotal)
	streets := make(map[string]*StreetTotal)

	for _, p := range properties {
		agencyKey := normalize.Agency(p.AgencyName)
		agentKey := normalize.Agent(p.AgentName)
		suburb := suburbs.Suburb(p.Suburb)
		comm := Calculate(p)
		sold := p.Sold()

		summary.TotalCommission += comm
		summary.TotalProperties++
		summary.TotalListed++
		if sold {
			summary.TotalSold++
		}

		acc, ok := agencies[agencyKey]
		if !ok {
			acc = &agencyAcc{
				total:   AgencyTotal{Key: agencyKey, Name: displayName(p.AgencyName)},
				suburbs: make(map[string]bool),
				agents:  make(map[string]*AgentTotal),
			}
			agencies[agencyKey] = acc
		}
		acc.total.Commission += comm
		acc.total.Properties++
		acc.total.Listed++
		if sold {
			acc.total.Sold++
		}
		acc.suburbs[suburb] = true

		nested, ok := acc.agents[agentKey]
		if !ok {
			nested = &AgentTotal{Key: agentKey, Name: displayName(p.AgentName)}
			acc.agents[agentKey] = nested
		}
		addAgent(nested, comm, sold)

		global, ok := agents[agentKey]
		if !ok {
			global = &AgentTotal{Key: agentKey, Name: displayName(p.AgentName)}
			agents[agentKey] = global
		}
		addAgent(global, comm, sold)

		streetKey := normalize.StreetKey(suburb, p.Street)
		st, ok := streets[streetKey]
		if !ok {
			st = &StreetTotal{Street: p.Street, Suburb: suburb}
			streets[streetKey] = st
		}
		st.Listed++
		st.Commission += comm
	}

	agencyTotals := make([]AgencyTotal, 0, len(agencies))
	for _, acc := range agencies {
		for name := range acc.suburbs {
			acc.total.Suburbs = append(acc.total.Suburbs, name)
		}
		sort.Strings(acc.total.Suburbs)
		for _, a := range acc.agents {
			acc.total.Agents = append(acc.total.Agents, *a)
		}
		sortAgents(acc.total.Agents)
		agencyTotals = append(agencyTotals, acc.total)
	}
	sort.Slice(agencyTotals, func(i, j int) bool {
		if agencyTotals[i].Commission != agencyTotals[j].Commission {
			return agencyTotals[i].Commission > agencyTotals[j].Commission
		}
		return agencyTotals[i].Key < agencyTotals[j].Key
	})

	agentTotals := make([]AgentTotal, 0, len(agents))
	for _, a := range agents {
		agentTotals = append(agentTotals, *a)
	}
	sortAgents(agentTotals)

	if len(agencyTotals) > 0 {
		top := agencyTotals[0]
		summary.TopAgency = &top
	}
	if len(agentTotals) > 0 {
		top := agentTotals[0]
		summary.TopAgent = &top
	}
	summary.TopStreet = topStreet(streets)

	summary.TopAgencies = truncAgencies(agencyTotals, topN)
	summary.TopAgents = truncAgents(agentTotals, topN)

	return summary
}

func addAgent(a *AgentTotal, comm float64, sold bool) {
	a.Commission += comm
	a.Listed++
	if sold {
		a.Sold++
	}
}

// displayName keeps the first-seen trimmed raw name for presentation while
// the normalized form drives grouping.
func displayName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return normalize.Unknown
	}
	return name
}

func sortAgents(agents []AgentTotal) {
	sort.Slice(agents, func(i, j int) bool {
		if agents[i].Commission != agents[j].Commission {
			return agents[i].Commission > agents[j].Commission
		}
		return agents[i].Key < agents[j].Key
	})
}

// topStreet picks the street with the most listings, ties broken by higher
// commission, then ascending key.
func topStreet(streets map[string]*StreetTotal) *StreetTotal {
	keys := make([]string, 0, len(streets))
	for k := range streets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var best *StreetTotal
	for _, k := range keys {
		st := streets[k]
		if best == nil ||
			st.Listed > best.Listed ||
			(st.Listed == best.Listed && st.Commission > best.Commission) {
			best = st
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

func truncAgencies(totals []AgencyTotal, n int) []AgencyTotal {
	if len(totals) > n {
		totals = totals[:n]
	}
	return totals
}

func truncAgents(totals []AgentTotal, n int) []AgentTotal {
	if len(totals) > n {
		totals = totals[:n]
	}
	return totals
}
