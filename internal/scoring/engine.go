// Package scoring computes composite credit scores from business activity.
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine derives credit scores from a business activity snapshot.
// It is pure: no I/O, no hidden state, safe for concurrent use.
type Engine struct {
	now func() time.Time
}

// NewEngine creates a scoring engine using the system clock.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// NewEngineWithClock creates a scoring engine with an injected clock.
// Age and stability factors depend on "now", so tests pin it.
func NewEngineWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Score computes the composite credit score for a snapshot.
// Calling it twice on the same snapshot yields the same result.
func (e *Engine) Score(snap *domain.BusinessSnapshot) *domain.CreditScore {
	factors := map[domain.FactorName]domain.ScoreFactor{
		domain.FactorPaymentHistory:      e.paymentHistory(snap.Invoices),
		domain.FactorBusinessAge:         e.businessAge(snap.Sales),
		domain.FactorRevenueStability:    e.revenueStability(snap.Sales),
		domain.FactorInventoryManagement: e.inventoryManagement(snap.Inventory),
		domain.FactorCustomerBase:        e.customerBase(snap.Customers),
	}

	weighted := 0.0
	for name, f := range factors {
		weighted += float64(f.Score) * float64(domain.FactorWeights[name]) / 100.0
	}
	composite := clamp(int(math.Round(weighted)))

	return &domain.CreditScore{
		TenantID:     snap.TenantID,
		Score:        composite,
		Rating:       domain.RatingFor(composite),
		Factors:      factors,
		Improvements: improvements(factors),
		ComputedAt:   e.now(),
	}
}

// paymentHistory scores invoice collection performance. 35% weight.
func (e *Engine) paymentHistory(invoices []domain.Invoice) domain.ScoreFactor {
	weight := domain.FactorWeights[domain.FactorPaymentHistory]

	if len(invoices) == 0 {
		return domain.ScoreFactor{
			Score:       500,
			Weight:      weight,
			Description: "No invoice history",
		}
	}

	total := len(invoices)
	paid, overdue := 0, 0
	for _, inv := range invoices {
		switch inv.Status {
		case domain.InvoicePaid:
			paid++
		case domain.InvoiceOverdue:
			overdue++
		}
	}

	paymentRate := float64(paid) / float64(total)
	overdueRate := float64(overdue) / float64(total)
	score := 300 + paymentRate*400 - overdueRate*200

	return domain.ScoreFactor{
		Score:       clamp(int(math.Round(score))),
		Weight:      weight,
		Description: fmt.Sprintf("%.0f%% of invoices paid, %d overdue", paymentRate*100, overdue),
	}
}

// businessAge scores operating history length from the oldest sale. 15% weight.
func (e *Engine) businessAge(sales []domain.Sale) domain.ScoreFactor {
	weight := domain.FactorWeights[domain.FactorBusinessAge]

	if len(sales) == 0 {
		return domain.ScoreFactor{
			Score:       400,
			Weight:      weight,
			Description: "No sales history",
		}
	}

	oldest := sales[0].SaleDate
	for _, s := range sales[1:] {
		if s.SaleDate.Before(oldest) {
			oldest = s.SaleDate
		}
	}

	ageMonths := int(e.now().Sub(oldest).Hours() / (24 * 30))
	if ageMonths < 1 {
		ageMonths = 1
	}

	score := 400 + min(ageMonths*15, 300)
	if score > domain.ScoreCeiling {
		score = domain.ScoreCeiling
	}

	return domain.ScoreFactor{
		Score:       clamp(score),
		Weight:      weight,
		Description: fmt.Sprintf("%d months of sales history", ageMonths),
	}
}

// revenueStability scores month-over-month revenue consistency. 25% weight.
func (e *Engine) revenueStability(sales []domain.Sale) domain.ScoreFactor {
	weight := domain.FactorWeights[domain.FactorRevenueStability]

	if len(sales) < 3 {
		return domain.ScoreFactor{
			Score:       450,
			Weight:      weight,
			Description: "Insufficient sales data",
		}
	}

	monthly := make(map[string]float64)
	for _, s := range sales {
		monthly[s.SaleDate.Format("2006-01")] += s.TotalAmount
	}

	mean := 0.0
	for _, v := range monthly {
		mean += v
	}
	mean /= float64(len(monthly))

	if mean == 0 {
		return domain.ScoreFactor{
			Score:       400,
			Weight:      weight,
			Description: "No revenue recorded",
		}
	}

	variance := 0.0
	for _, v := range monthly {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(monthly))
	stdDev := math.Sqrt(variance)

	cv := stdDev / mean
	score := 500 + math.Max(0, (1-cv)*250)

	trend := "variable"
	if cv < 0.3 {
		trend = "stable"
	}

	return domain.ScoreFactor{
		Score:       clamp(int(math.Round(score))),
		Weight:      weight,
		Description: fmt.Sprintf("Monthly revenue is %s (CV %.2f)", trend, cv),
	}
}

// inventoryManagement scores stock health. 15% weight.
// Stock of 0 counts as out; stock of 3 or less counts as critical.
// The two penalties overlap for out-of-stock items.
func (e *Engine) inventoryManagement(items []domain.InventoryItem) domain.ScoreFactor {
	weight := domain.FactorWeights[domain.FactorInventoryManagement]

	if len(items) == 0 {
		return domain.ScoreFactor{
			Score:       400,
			Weight:      weight,
			Description: "No inventory tracked",
		}
	}

	total := len(items)
	out, critical, active := 0, 0, 0
	for _, it := range items {
		if it.StockQuantity == 0 {
			out++
		}
		if it.StockQuantity <= 3 {
			critical++
		}
		if it.IsActive {
			active++
		}
	}

	outRate := float64(out) / float64(total)
	criticalRate := float64(critical) / float64(total)
	score := 600 - outRate*200 - criticalRate*100
	if active > 10 {
		score += 50
	}

	return domain.ScoreFactor{
		Score:       clamp(int(math.Round(score))),
		Weight:      weight,
		Description: fmt.Sprintf("%d of %d items out of stock, %d active", out, total, active),
	}
}

// customerBase scores customer count and contactability. 10% weight.
func (e *Engine) customerBase(customers []domain.Customer) domain.ScoreFactor {
	weight := domain.FactorWeights[domain.FactorCustomerBase]

	count := len(customers)
	contactable := 0
	for _, c := range customers {
		if c.Email != "" || c.Phone != "" {
			contactable++
		}
	}

	contactRate := 0.0
	if count > 0 {
		contactRate = float64(contactable) / float64(count)
	}

	score := 400 + float64(min(count*10, 300)) + contactRate*100

	return domain.ScoreFactor{
		Score:       clamp(int(math.Round(score))),
		Weight:      weight,
		Description: fmt.Sprintf("%d customers, %.0f%% with contact details", count, contactRate*100),
	}
}

// improvements lists suggestions for factors below their target thresholds.
// Each condition is checked against the unweighted factor score.
func improvements(factors map[domain.FactorName]domain.ScoreFactor) []string {
	var out []string
	if factors[domain.FactorPaymentHistory].Score < 650 {
		out = append(out, "Improve invoice collection rates")
	}
	if factors[domain.FactorRevenueStability].Score < 600 {
		out = append(out, "Stabilize monthly revenue")
	}
	if factors[domain.FactorInventoryManagement].Score < 600 {
		out = append(out, "Reduce out-of-stock items")
	}
	if factors[domain.FactorCustomerBase].Score < 600 {
		out = append(out, "Grow your customer base")
	}
	if factors[domain.FactorBusinessAge].Score < 600 {
		out = append(out, "Continue building business history")
	}
	return out
}

func clamp(score int) int {
	if score < domain.ScoreFloor {
		return domain.ScoreFloor
	}
	if score > domain.ScoreCeiling {
		return domain.ScoreCeiling
	}
	return score
}
