package main

import (
	"fmt"
	"time"
)

// endOfTime stands in for the upper bound of open-ended rate windows.
var endOfTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// paymentMethodDirectDebit is the only restricted payment method we accept;
// rates with no restriction always apply.
const paymentMethodDirectDebit = "DIRECT_DEBIT"

// matchRate returns the single rate window covering periodEnd. Bounds are
// inclusive at both ends and a missing ValidTo means the window never
// closes. Zero matches or more than one match both signal malformed rate
// data upstream and abort the tariff being evaluated, so neither is
// resolved by silently picking a window.
func matchRate(periodEnd time.Time, windows []RateWindow) (*RateWindow, error) {
	var matched *RateWindow
	for i := range windows {
		w := &windows[i]
		if w.PaymentMethod != nil && *w.PaymentMethod != paymentMethodDirectDebit {
			continue
		}

		from := time.Time{}
		if w.ValidFrom != nil {
			from = *w.ValidFrom
		}
		to := endOfTime
		if w.ValidTo != nil {
			to = *w.ValidTo
		}

		if periodEnd.Before(from) || periodEnd.After(to) {
			continue
		}

		if matched != nil {
			return nil, fmt.Errorf("%w at %s", ErrAmbiguousRate, periodEnd.Format(time.RFC3339))
		}
		matched = w
	}

	if matched == nil {
		return nil, fmt.Errorf("%w at %s", ErrNoMatchingRate, periodEnd.Format(time.RFC3339))
	}
	return matched, nil
}
