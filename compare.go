package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// savingsThresholdPence is the buffer a candidate must beat the current
// tariff by before a switch is worth the churn. Strictly greater-than.
var savingsThresholdPence = decimal.NewFromInt(2)

// TariffPricing is a candidate tariff's live pricing for one day and one
// region, resolved from the public product catalog.
type TariffPricing struct {
	ProductCode         string
	StandingChargePence float64
	Windows             []RateWindow
}

// RateSource resolves live pricing for a tariff by its catalog display
// name. Implemented by ProductCatalog.
type RateSource interface {
	TariffRates(displayName, regionCode string, day time.Time) (*TariffPricing, error)
}

// Decision is the outcome of a comparison.
type Decision int

const (
	DecisionStay Decision = iota
	DecisionSwitch
)

// ComparisonResult holds every quote plus the selected winner. Quotes are
// ordered: current tariff first, then candidates in catalog order.
type ComparisonResult struct {
	Current      *TariffQuote
	Quotes       []*TariffQuote
	Winner       *TariffQuote
	SavingsPence decimal.Decimal
	Decision     Decision
	Summary      string
}

// TariffComparator prices the same consumption series on every candidate
// tariff and picks the cheapest switchable one.
type TariffComparator struct {
	rates  RateSource
	logger *slog.Logger
}

func NewTariffComparator(rates RateSource, logger *slog.Logger) *TariffComparator {
	return &TariffComparator{rates: rates, logger: logger}
}

// Compare evaluates the account's consumption for day against each
// candidate. A candidate that cannot be priced is recorded with the reason
// and excluded; it never aborts the remaining candidates.
func (c *TariffComparator) Compare(account *AccountInfo, candidates []Tariff, day time.Time) *ComparisonResult {
	var summary strings.Builder

	totalKWh := 0.0
	for _, p := range account.Consumption {
		totalKWh += p.ConsumptionWh / 1000
	}
	fmt.Fprintf(&summary, "Total Consumption today: %s kWh\n", humanize.CommafWithDigits(totalKWh, 4))

	current := currentTariffQuote(account)
	fmt.Fprintf(&summary, "Current tariff %s: £%s (£%s con + £%s s/c)\n",
		current.Tariff.DisplayName,
		poundsOf(current.Cost.TotalPence),
		poundsOf(current.Cost.ConsumptionPence),
		poundsOf(current.Cost.StandingChargePence))

	quotes := []*TariffQuote{current}

	for _, tariff := range candidates {
		if tariff.ID == account.CurrentTariff.ID {
			continue
		}

		quote := c.evaluate(account, tariff, day)
		quotes = append(quotes, quote)

		if quote.Cost == nil {
			fmt.Fprintf(&summary, "No cost for %s\n", tariff.DisplayName)
			continue
		}
		fmt.Fprintf(&summary, "Potential cost on %s: £%s (£%s con + £%s s/c)\n",
			tariff.DisplayName,
			poundsOf(quote.Cost.TotalPence),
			poundsOf(quote.Cost.ConsumptionPence),
			poundsOf(quote.Cost.StandingChargePence))
	}

	result := &ComparisonResult{
		Current: current,
		Quotes:  quotes,
		Summary: summary.String(),
	}

	// First minimum wins; quote order is fixed, so ties resolve
	// deterministically in favour of earlier declaration.
	var winner *TariffQuote
	for _, q := range quotes {
		if !q.Tariff.Switchable || q.Cost == nil {
			continue
		}
		if winner == nil || q.Cost.TotalPence.LessThan(winner.Cost.TotalPence) {
			winner = q
		}
	}
	if winner == nil {
		// Nothing viable to switch to; staying put is the only option.
		winner = current
	}
	result.Winner = winner

	if winner.Tariff.ID == current.Tariff.ID {
		result.Decision = DecisionStay
		return result
	}

	result.SavingsPence = current.Cost.TotalPence.Sub(winner.Cost.TotalPence)
	if result.SavingsPence.GreaterThan(savingsThresholdPence) {
		result.Decision = DecisionSwitch
	} else {
		result.Decision = DecisionStay
	}
	return result
}

func (c *TariffComparator) evaluate(account *AccountInfo, tariff Tariff, day time.Time) *TariffQuote {
	quote := &TariffQuote{Tariff: tariff}

	pricing, err := c.rates.TariffRates(tariff.APIDisplayName, account.RegionCode, day)
	if err != nil {
		evalErr := &EvalError{TariffID: tariff.ID, Err: err}
		c.logger.Warn("could not price tariff", "tariff", tariff.ID, "error", err)
		quote.FailReason = evalErr.Error()
		return quote
	}
	quote.ProductCode = pricing.ProductCode

	cost, err := aggregateCost(account.Consumption, pricing.Windows, pricing.StandingChargePence)
	if err != nil {
		evalErr := &EvalError{TariffID: tariff.ID, Err: err}
		c.logger.Warn("could not price tariff", "tariff", tariff.ID, "error", err)
		quote.FailReason = evalErr.Error()
		return quote
	}

	quote.Cost = cost
	return quote
}

// currentTariffQuote derives the current tariff's cost straight from the
// costs the meter already recorded; it is never recomputed via rate lookup.
func currentTariffQuote(account *AccountInfo) *TariffQuote {
	consumptionPence := decimal.Zero
	for _, p := range account.Consumption {
		if p.CostDeltaWithTax != nil {
			consumptionPence = consumptionPence.Add(decimal.NewFromFloat(*p.CostDeltaWithTax))
		}
	}

	standing := decimal.NewFromFloat(account.StandingChargePence)
	return &TariffQuote{
		Tariff: account.CurrentTariff,
		Cost: &CostResult{
			TotalPence:          consumptionPence.Add(standing),
			ConsumptionPence:    consumptionPence,
			StandingChargePence: standing,
		},
	}
}

// poundsOf renders pence as a £-less pounds string with two decimals.
func poundsOf(pence decimal.Decimal) string {
	return pence.Div(decimal.NewFromInt(100)).StringFixed(2)
}
