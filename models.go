package main

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsumptionPeriod is one half-hour slot of metered usage. ReadAt is the
// period end. CostDeltaWithTax is the cost already billed on the current
// tariff, in pence, when the data source knows it.
type ConsumptionPeriod struct {
	ReadAt           time.Time
	ConsumptionWh    float64
	CostDeltaWithTax *float64
}

// RateWindow is a unit rate valid for an interval. A nil ValidTo means the
// rate is open-ended. PaymentMethod is nil when the rate applies regardless
// of how the account pays.
type RateWindow struct {
	ValueIncVAT   float64
	ValidFrom     *time.Time
	ValidTo       *time.Time
	PaymentMethod *string
}

// AccountInfo is the per-run snapshot of everything the comparison needs.
// Built once, read-only afterwards.
type AccountInfo struct {
	CurrentTariff       Tariff
	StandingChargePence float64
	RegionCode          string
	Consumption         []ConsumptionPeriod
	Mpan                string
}

// PeriodCost is one row of a tariff's cost breakdown.
type PeriodCost struct {
	PeriodEnd      time.Time
	ConsumptionKWh decimal.Decimal
	RatePence      float64
	CostPence      decimal.Decimal
}

// CostResult is the cost of one day's consumption on one tariff.
type CostResult struct {
	TotalPence          decimal.Decimal
	ConsumptionPence    decimal.Decimal
	StandingChargePence decimal.Decimal
	Periods             []PeriodCost
}

// TariffQuote holds the per-run evaluation of one candidate tariff. The
// resolved product code lives here rather than on the catalog entry so the
// catalog stays immutable between runs. Cost is nil when the tariff could
// not be priced; FailReason says why.
type TariffQuote struct {
	Tariff      Tariff
	ProductCode string
	Cost        *CostResult
	FailReason  string
}
