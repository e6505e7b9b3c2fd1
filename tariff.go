package main

import (
	"strings"
)

// TariffKind identifies a tariff family. Each kind carries its own rule for
// recognising a provider tariff code (e.g. "E-1R-AGILE-24-10-01-C") as an
// instance of that family.
type TariffKind int

const (
	KindAgile TariffKind = iota
	KindGo
	KindFlexible
	KindCosy
	KindTracker
)

// matchesCode reports whether a provider tariff code belongs to this family.
func (k TariffKind) matchesCode(code string) bool {
	code = strings.ToUpper(code)
	switch k {
	case KindAgile:
		return strings.Contains(code, "AGILE")
	case KindGo:
		return strings.Contains(code, "-GO-")
	case KindFlexible:
		// Go codes like E-1R-GO-VAR-22-10-14-C also carry VAR.
		return strings.Contains(code, "VAR-") && !strings.Contains(code, "GO-")
	case KindCosy:
		return strings.Contains(code, "COSY")
	case KindTracker:
		return strings.Contains(code, "SILVER")
	default:
		return false
	}
}

// Tariff is an immutable catalog entry. APIDisplayName is the name the
// public product catalog uses, which is not always the name shown to users.
// Product codes resolved during a run live on TariffQuote, not here.
type Tariff struct {
	ID             string
	DisplayName    string
	APIDisplayName string
	Kind           TariffKind
	Switchable     bool
}

// Matches reports whether the given provider tariff code is an instance of
// this tariff.
func (t Tariff) Matches(tariffCode string) bool {
	return t.Kind.matchesCode(tariffCode)
}

// tariffCatalog lists every tariff family this tool understands. Order
// matters: the comparator breaks cost ties by declaration order.
var tariffCatalog = []Tariff{
	{ID: "go", DisplayName: "Octopus Go", APIDisplayName: "Octopus Go", Kind: KindGo, Switchable: true},
	{ID: "agile", DisplayName: "Agile Octopus", APIDisplayName: "Agile Octopus", Kind: KindAgile, Switchable: true},
	{ID: "flexible", DisplayName: "Flexible Octopus", APIDisplayName: "Flexible Octopus", Kind: KindFlexible, Switchable: true},
	{ID: "cosy", DisplayName: "Cosy Octopus", APIDisplayName: "Cosy Octopus", Kind: KindCosy, Switchable: true},
	// Tracker is closed to new joiners, so it can win a comparison on paper
	// but must never be selected as a switch target.
	{ID: "tracker", DisplayName: "Octopus Tracker", APIDisplayName: "Tracker", Kind: KindTracker, Switchable: false},
}

// selectTariffs resolves a comma-separated list of tariff IDs against the
// catalog, preserving catalog order. Unknown IDs are reported through warn
// and skipped.
func selectTariffs(ids string, warn func(string)) []Tariff {
	requested := map[string]bool{}
	for _, id := range strings.Split(ids, ",") {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			requested[id] = true
		}
	}

	var selected []Tariff
	for _, t := range tariffCatalog {
		if requested[t.ID] {
			selected = append(selected, t)
			delete(requested, t.ID)
		}
	}

	for id := range requested {
		warn("Warning: No tariff found for ID '" + id + "'")
	}

	return selected
}

// matchTariff finds the catalog tariff a provider tariff code belongs to.
func matchTariff(candidates []Tariff, tariffCode string) (Tariff, bool) {
	for _, t := range candidates {
		if t.Matches(tariffCode) {
			return t, true
		}
	}
	return Tariff{}, false
}
