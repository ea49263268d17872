package commission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/normalize"
)

func prop(agency, agent, suburb, street string, price, rate float64) model.Property {
	return model.Property{
		AgencyName:     agency,
		AgentName:      agent,
		Suburb:         suburb,
		Street:         street,
		Price:          price,
		CommissionRate: rate,
		ContractStatus: model.StatusListed,
	}
}

func TestRollup_Empty(t *testing.T) {
	s := Rollup(nil, normalize.DefaultSuburbs())

	assert.Zero(t, s.TotalCommission)
	assert.Zero(t, s.TotalProperties)
	assert.Nil(t, s.TopAgency)
	assert.Nil(t, s.TopAgent)
	assert.Nil(t, s.TopStreet)
	assert.NotNil(t, s.TopAgencies)
	assert.Empty(t, s.TopAgencies)
	assert.NotNil(t, s.TopAgents)
	assert.Empty(t, s.TopAgents)
}

func TestRollup_TopAgency(t *testing.T) {
	props := []model.Property{
		prop("Harcourts Success", "Jane Citizen", "Moggill", "Main St", 500_000, 2),   // 10000
		prop("harcourts success ", "Jane Citizen", "Moggill", "Main St", 250_000, 2),  // 5000
		prop("RE/MAX", "Bob Smith", "Pullenvale QLD 4069", "Grandview Rd", 150_000, 2), // 3000
	}

	s := Rollup(props, normalize.DefaultSuburbs())

	require.NotNil(t, s.TopAgency)
	assert.Equal(t, "Harcourts Success", s.TopAgency.Name)
	assert.InDelta(t, 15_000, s.TopAgency.Commission, 0.001)
	assert.Equal(t, 2, s.TopAgency.Properties)
	assert.InDelta(t, 18_000, s.TotalCommission, 0.001)
	assert.Equal(t, 3, s.TotalProperties)

	// Agency grouping survives inconsistent casing and whitespace.
	assert.Len(t, s.TopAgencies, 2)
}

func TestRollup_SoldCounting(t *testing.T) {
	soldDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	byStatus := prop("A", "X", "Moggill", "Main St", 100, 1)
	byStatus.ContractStatus = model.StatusSold
	byDate := prop("A", "X", "Moggill", "Main St", 100, 1)
	byDate.SoldDate = &soldDate
	unsold := prop("A", "X", "Moggill", "Main St", 100, 1)

	s := Rollup([]model.Property{byStatus, byDate, unsold}, normalize.DefaultSuburbs())

	assert.Equal(t, 2, s.TotalSold)
	assert.Equal(t, 3, s.TotalListed)
	require.NotNil(t, s.TopAgent)
	assert.Equal(t, 2, s.TopAgent.Sold)
}

func TestRollup_ZeroCommissionStillCounted(t *testing.T) {
	props := []model.Property{
		prop("Solo Realty", "Pat Lee", "Kenmore", "High St", 0, 2),
	}

	s := Rollup(props, normalize.DefaultSuburbs())

	assert.Equal(t, 1, s.TotalProperties)
	require.NotNil(t, s.TopAgency)
	assert.Zero(t, s.TopAgency.Commission)
	assert.Equal(t, 1, s.TopAgency.Properties)
}

func TestRollup_DeterministicTieBreak(t *testing.T) {
	props := []model.Property{
		prop("Beta Realty", "B", "Moggill", "One St", 100_000, 2),
		prop("Alpha Realty", "A", "Moggill", "Two St", 100_000, 2),
	}

	// Equal commission: lexical key order decides, not input order.
	s := Rollup(props, normalize.DefaultSuburbs())
	require.NotNil(t, s.TopAgency)
	assert.Equal(t, "Alpha Realty", s.TopAgency.Name)

	reversed := []model.Property{props[1], props[0]}
	s2 := Rollup(reversed, normalize.DefaultSuburbs())
	assert.Equal(t, s.TopAgency.Key, s2.TopAgency.Key)
}

func TestRollup_TopStreet(t *testing.T) {
	props := []model.Property{
		prop("A", "X", "Moggill", "Main St", 100_000, 2),
		prop("A", "X", "Moggill QLD", "Main St", 100_000, 2),
		prop("B", "Y", "Pullenvale", "Grandview Rd", 900_000, 2),
	}

	s := Rollup(props, normalize.DefaultSuburbs())

	require.NotNil(t, s.TopStreet)
	// Listed count outranks commission.
	assert.Equal(t, "Main St", s.TopStreet.Street)
	assert.Equal(t, "MOGGILL 4070", s.TopStreet.Suburb)
	assert.Equal(t, 2, s.TopStreet.Listed)
}

func TestRollup_SameStreetDifferentSuburbsStaySeparate(t *testing.T) {
	props := []model.Property{
		prop("A", "X", "Moggill", "Main St", 100_000, 2),
		prop("B", "Y", "Kenmore", "Main St", 500_000, 2),
	}

	s := Rollup(props, normalize.DefaultSuburbs())

	require.NotNil(t, s.TopStreet)
	// Tied on listings; commission breaks the tie.
	assert.Equal(t, "KENMORE 4069", s.TopStreet.Suburb)
	assert.Equal(t, 1, s.TopStreet.Listed)
}

func TestRollup_UnknownBuckets(t *testing.T) {
	props := []model.Property{
		prop("", "", "Nowhereville", "Main St", 200_000, 2),
	}

	s := Rollup(props, normalize.DefaultSuburbs())

	require.NotNil(t, s.TopAgency)
	assert.Equal(t, normalize.Unknown, s.TopAgency.Name)
	assert.Equal(t, []string{normalize.Unknown}, s.TopAgency.Suburbs)
	assert.InDelta(t, 4_000, s.TotalCommission, 0.001)
}

func TestRollup_NestedAgentTable(t *testing.T) {
	props := []model.Property{
		prop("A", "Jane", "Moggill", "Main St", 500_000, 2),
		prop("A", "Bob", "Moggill", "Main St", 100_000, 2),
		prop("B", "Jane", "Kenmore", "High St", 300_000, 2),
	}

	s := Rollup(props, normalize.DefaultSuburbs())

	require.Len(t, s.TopAgencies, 2)
	a := s.TopAgencies[0]
	assert.Equal(t, "A", a.Name)
	require.Len(t, a.Agents, 2)
	assert.Equal(t, "Jane", a.Agents[0].Name)
	assert.InDelta(t, 10_000, a.Agents[0].Commission, 0.001)

	// Global agent table spans agencies.
	require.NotNil(t, s.TopAgent)
	assert.Equal(t, "Jane", s.TopAgent.Name)
	assert.InDelta(t, 16_000, s.TopAgent.Commission, 0.001)
}
