package main

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestRunDryRunNeverSubmitsSwitch drives a full comparison run that picks a
// cheaper tariff, with dry-run set: the decision logic runs to completion
// but no switch mutation may ever reach the API.
func TestRunDryRunNeverSubmitsSwitch(t *testing.T) {
	accountBody := `{"data": {"account": {"electricityAgreements": [
		{
			"validFrom": "2024-06-01T00:00:00+00:00",
			"meterPoint": {
				"mpan": "1234567890123",
				"direction": "IMPORT",
				"meters": [{"smartDevices": [{"deviceId": "device-1"}]}]
			},
			"tariff": {"tariffCode": "E-1R-VAR-22-11-01-C", "standingCharge": 47.85}
		}
	]}}}`
	// 1 kWh billed at 30p: 77.85p on the current tariff, against 56.35p on
	// Octopus Go (1 kWh at 8.5p plus 47.85p standing), so the comparison
	// decides to switch.
	telemetryBody := `{"data": {"smartMeterTelemetry": [
		{"readAt": "2025-01-07T00:30:00Z", "consumptionDelta": "1000", "costDeltaWithTax": "30"}
	]}}`

	var submitCalls int
	rt := &MockRoundTripper{Handler: func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodPost {
			call := decodeGQLCall(t, req)
			switch {
			case strings.Contains(call.Query, "obtainKrakenToken"):
				return jsonResponse(http.StatusOK, tokenBody), nil
			case strings.Contains(call.Query, "electricityAgreements"):
				return jsonResponse(http.StatusOK, accountBody), nil
			case strings.Contains(call.Query, "smartMeterTelemetry"):
				return jsonResponse(http.StatusOK, telemetryBody), nil
			case strings.Contains(call.Query, "startOnboardingProcess"):
				submitCalls++
				return jsonResponse(http.StatusOK,
					`{"data": {"startOnboardingProcess": {"productEnrolment": {"id": "enrolment-1"}}}}`), nil
			default:
				t.Fatalf("unexpected GraphQL document: %s", call.Query)
				return nil, nil
			}
		}
		switch req.URL.Path {
		case "/v1/products/":
			return jsonResponse(http.StatusOK, productListBody), nil
		case "/v1/products/GO-24-10-01/":
			return jsonResponse(http.StatusOK, productDetailBody), nil
		case "/v1/products/GO-24-10-01/electricity-tariffs/E-1R-GO-24-10-01-C/standard-unit-rates/":
			return jsonResponse(http.StatusOK, unitRatesBody), nil
		default:
			t.Fatalf("unexpected GET %s", req.URL)
			return nil, nil
		}
	}}

	cfg := &Config{
		APIKey:        "sk_test_key",
		AccountNumber: "A-1234ABCD",
		BaseURL:       "https://api.example.test/v1",
		Tariffs:       "go,flexible",
		DryRun:        true,
	}
	ch := &fakeChannel{}
	app := &App{
		Config:   cfg,
		Logger:   testLogger(),
		Octopus:  NewOctopusClient(cfg.AccountNumber, cfg.APIKey, cfg.BaseURL, rt, testLogger()),
		Catalog:  NewProductCatalog(cfg.BaseURL, rt, testLogger()),
		Notifier: NewDispatcher([]Channel{ch}, false, testLogger()),
		Tariffs:  selectTariffs(cfg.Tariffs, func(string) {}),
		now:      func() time.Time { return time.Date(2025, 1, 7, 23, 1, 0, 0, time.UTC) },
	}

	require.NoError(t, app.run())
	require.Zero(t, submitCalls, "dry-run must never submit a switch")

	require.NotEmpty(t, ch.messages)
	require.Contains(t, ch.messages[0].Body, "DRY RUN: Starting comparison")

	var bodies []string
	for _, m := range ch.messages {
		bodies = append(bodies, m.Body)
	}
	joined := strings.Join(bodies, "\n")
	require.Contains(t, joined, "Using octopus for consumption data")
	require.Contains(t, joined, "Initiating Switch to Octopus Go")
	require.Equal(t, "DRY RUN: Not going through with switch today.", ch.messages[len(ch.messages)-1].Body)
}

func TestParseDailyAt(t *testing.T) {
	tests := []struct {
		value   string
		hour    int
		minute  int
		wantErr bool
	}{
		{value: "23:00", hour: 23, minute: 0},
		{value: "00:00", hour: 0, minute: 0},
		{value: "09:30", hour: 9, minute: 30},
		{value: "24:00", wantErr: true},
		{value: "12:60", wantErr: true},
		{value: "12", wantErr: true},
		{value: "12:00:00", wantErr: true},
		{value: "noon", wantErr: true},
		{value: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			hour, minute, err := parseDailyAt(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.hour, hour)
			require.Equal(t, tt.minute, minute)
		})
	}
}

func TestDayBounds(t *testing.T) {
	start, end := dayBounds(time.Date(2025, 1, 7, 23, 1, 42, 0, time.UTC))
	require.True(t, start.Equal(time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC)))
	require.True(t, end.Equal(time.Date(2025, 1, 7, 23, 59, 59, 0, time.UTC)))
}

func TestSameDate(t *testing.T) {
	morning := time.Date(2025, 1, 7, 0, 30, 0, 0, time.UTC)
	evening := time.Date(2025, 1, 7, 23, 30, 0, 0, time.UTC)
	nextDay := time.Date(2025, 1, 8, 0, 30, 0, 0, time.UTC)

	require.True(t, sameDate(morning, evening))
	require.False(t, sameDate(evening, nextDay))
}
