package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTariffKindMatchesCode(t *testing.T) {
	tests := []struct {
		name   string
		kind   TariffKind
		code   string
		expect bool
	}{
		{name: "agile code", kind: KindAgile, code: "E-1R-AGILE-24-10-01-C", expect: true},
		{name: "go code", kind: KindGo, code: "E-1R-GO-VAR-22-10-14-C", expect: true},
		{name: "flexible code", kind: KindFlexible, code: "E-1R-VAR-22-11-01-C", expect: true},
		{name: "tracker code", kind: KindTracker, code: "E-1R-SILVER-24-07-01-C", expect: true},
		{name: "cosy code", kind: KindCosy, code: "E-1R-COSY-22-12-08-C", expect: true},
		{name: "agile does not match go", kind: KindAgile, code: "E-1R-GO-VAR-22-10-14-C", expect: false},
		{name: "flexible does not match agile", kind: KindFlexible, code: "E-1R-AGILE-24-10-01-C", expect: false},
		{name: "flexible does not match go-var", kind: KindFlexible, code: "E-1R-GO-VAR-22-10-14-C", expect: false},
		{name: "lowercase code still matches", kind: KindAgile, code: "e-1r-agile-24-10-01-c", expect: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expect, test.kind.matchesCode(test.code))
		})
	}
}

func TestSelectTariffs(t *testing.T) {
	var warnings []string
	warn := func(msg string) { warnings = append(warnings, msg) }

	selected := selectTariffs("agile, go ,unknown", warn)

	require.Len(t, selected, 2)
	// Catalog order is preserved regardless of the order in the list.
	require.Equal(t, "go", selected[0].ID)
	require.Equal(t, "agile", selected[1].ID)

	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "unknown")
}

func TestSelectTariffsEmpty(t *testing.T) {
	selected := selectTariffs("", func(string) {})
	require.Empty(t, selected)
}

func TestMatchTariff(t *testing.T) {
	candidates := selectTariffs("go,agile,flexible", func(string) {})

	matched, ok := matchTariff(candidates, "E-1R-VAR-22-11-01-C")
	require.True(t, ok)
	require.Equal(t, "flexible", matched.ID)

	_, ok = matchTariff(candidates, "E-1R-SILVER-24-07-01-C")
	require.False(t, ok, "tracker is not among the candidates")
}
