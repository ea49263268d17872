// Package commission derives monetary commission figures from property rows
// and folds property collections into agency/agent rollups.
package commission

import "github.com/sells-group/prospect-cli/internal/model"

// Calculate returns the commission for a property: sold price when present,
// else list price, times the rate percentage. Absent or non-positive price
// and rate contribute zero rather than erroring.
func Calculate(p model.Property) float64 {
	price := p.SoldPrice
	if price <= 0 {
		price = p.Price
	}
	if price <= 0 || p.CommissionRate <= 0 {
		return 0
	}
	return price * p.CommissionRate / 100
}
