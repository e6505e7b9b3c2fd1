package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"
)

// ConsumptionSource supplies one day of half-hourly consumption. Two
// implementations exist: supplier smart-meter telemetry and a Home
// Assistant history resample. Exactly one is selected per run.
type ConsumptionSource interface {
	Name() string
	ConsumptionData(start, end time.Time) ([]ConsumptionPeriod, error)
	StandingCharge() (float64, error)
	Available() bool
}

// selectConsumptionSource prefers Home Assistant when it is fully
// configured, falling back to supplier telemetry.
func selectConsumptionSource(ha *HomeAssistantSource, octopus *TelemetrySource, logger *slog.Logger) (ConsumptionSource, error) {
	if ha.Available() {
		logger.Info("using Home Assistant consumption source")
		return ha, nil
	}
	if ha.configured() {
		logger.Warn("Home Assistant configuration incomplete, falling back to supplier telemetry")
	}
	if octopus.Available() {
		logger.Info("using supplier telemetry consumption source")
		return octopus, nil
	}
	return nil, fmt.Errorf("no valid consumption data source available, check configuration")
}

// TelemetrySource reads half-hourly telemetry from the supplier's smart
// meter device. Costs arrive already computed on the current tariff, and
// the standing charge is the one from the account snapshot.
type TelemetrySource struct {
	client              *OctopusClient
	deviceID            string
	standingChargePence float64
}

func NewTelemetrySource(client *OctopusClient, deviceID string, standingChargePence float64) *TelemetrySource {
	return &TelemetrySource{
		client:              client,
		deviceID:            deviceID,
		standingChargePence: standingChargePence,
	}
}

func (s *TelemetrySource) Name() string { return "octopus" }

func (s *TelemetrySource) Available() bool {
	return s.client != nil && s.deviceID != ""
}

func (s *TelemetrySource) ConsumptionData(start, end time.Time) ([]ConsumptionPeriod, error) {
	return s.client.SmartMeterTelemetry(s.deviceID, start, end)
}

func (s *TelemetrySource) StandingCharge() (float64, error) {
	return s.standingChargePence, nil
}

// vatMultiplier grosses up the ex-VAT rate entity Home Assistant exposes.
const vatMultiplier = 1.05

// HomeAssistantSource rebuilds half-hourly consumption from a cumulative
// energy counter entity and a unit-rate entity in Home Assistant, for
// installs without a supplier smart-meter feed.
type HomeAssistantSource struct {
	baseURL              string
	token                string
	energyEntity         string
	rateEntity           string
	standingChargeEntity string
	httpClient           *http.Client
	logger               *slog.Logger
	now                  func() time.Time
}

func NewHomeAssistantSource(cfg HomeAssistantConfig, logger *slog.Logger) *HomeAssistantSource {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = "http://supervisor/core/api"
	}
	return &HomeAssistantSource{
		baseURL:              baseURL,
		token:                cfg.Token,
		energyEntity:         cfg.EnergyEntity,
		rateEntity:           cfg.RateEntity,
		standingChargeEntity: cfg.StandingChargeEntity,
		httpClient:           &http.Client{Timeout: 60 * time.Second},
		logger:               logger,
		now:                  time.Now,
	}
}

func (s *HomeAssistantSource) Name() string { return "home_assistant" }

// configured reports whether the user asked for Home Assistant at all.
func (s *HomeAssistantSource) configured() bool {
	return s.energyEntity != ""
}

func (s *HomeAssistantSource) Available() bool {
	return s.token != "" && s.energyEntity != "" && s.rateEntity != "" && s.standingChargeEntity != ""
}

type haState struct {
	State       string `json:"state"`
	LastChanged string `json:"last_changed"`
}

func (s *HomeAssistantSource) ConsumptionData(start, end time.Time) ([]ConsumptionPeriod, error) {
	energyHistory, err := s.entityHistory(s.energyEntity, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetching energy history: %w", err)
	}
	rateHistory, err := s.entityHistory(s.rateEntity, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetching rate history: %w", err)
	}
	return s.resample(energyHistory, rateHistory, end), nil
}

// StandingCharge reads the standing-charge entity, converting pounds to
// pence.
func (s *HomeAssistantSource) StandingCharge() (float64, error) {
	var state haState
	if err := s.getJSON(fmt.Sprintf("%s/states/%s", s.baseURL, s.standingChargeEntity), nil, &state); err != nil {
		return 0, fmt.Errorf("fetching standing charge: %w", err)
	}
	pounds, err := strconv.ParseFloat(state.State, 64)
	if err != nil {
		return 0, fmt.Errorf("standing charge state %q: %w", state.State, err)
	}
	return pounds * 100, nil
}

func (s *HomeAssistantSource) entityHistory(entityID string, start, end time.Time) ([]haState, error) {
	endpoint := fmt.Sprintf("%s/history/period/%s", s.baseURL, isoZ(start))
	params := url.Values{
		"filter_entity_id": {entityID},
		"end_time":         {isoZ(end)},
		"minimal_response": {"true"},
	}

	// HA returns one array of states per requested entity.
	var history [][]haState
	if err := s.getJSON(endpoint, params, &history); err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}
	return history[0], nil
}

// resample turns a cumulative energy counter plus a rate series into
// half-hour consumption deltas with back-computed costs. Counter resets
// clamp to zero rather than producing negative consumption.
func (s *HomeAssistantSource) resample(energyHistory, rateHistory []haState, end time.Time) []ConsumptionPeriod {
	if len(energyHistory) == 0 {
		return nil
	}

	sort.Slice(energyHistory, func(i, j int) bool {
		return energyHistory[i].LastChanged < energyHistory[j].LastChanged
	})
	sort.Slice(rateHistory, func(i, j int) bool {
		return rateHistory[i].LastChanged < rateHistory[j].LastChanged
	})

	first, err := parseHATime(energyHistory[0].LastChanged)
	if err != nil {
		s.logger.Warn("unparseable history timestamp", "value", energyHistory[0].LastChanged)
		return nil
	}
	cursor := first.Truncate(30 * time.Minute)

	limit := s.now().UTC()
	if end.Before(limit) {
		limit = end
	}

	var periods []ConsumptionPeriod
	var prevEnergy *float64

	for cursor.Before(limit) {
		periodEnd := cursor.Add(30 * time.Minute)

		energy := readingAt(energyHistory, periodEnd)
		if energy != nil && prevEnergy != nil {
			deltaKWh := *energy - *prevEnergy
			if deltaKWh < 0 {
				deltaKWh = 0
			}

			rate := readingAt(rateHistory, cursor)
			if rate != nil {
				cost := deltaKWh * *rate * vatMultiplier * 100
				periods = append(periods, ConsumptionPeriod{
					ReadAt:           periodEnd,
					ConsumptionWh:    deltaKWh * 1000,
					CostDeltaWithTax: &cost,
				})
			}
		}

		prevEnergy = energy
		cursor = periodEnd
	}

	return periods
}

// readingAt returns the state value closest to but not after target.
func readingAt(history []haState, target time.Time) *float64 {
	var best *float64
	var bestAt time.Time

	for _, h := range history {
		at, err := parseHATime(h.LastChanged)
		if err != nil || at.After(target) {
			continue
		}
		if best == nil || at.After(bestAt) {
			value, err := strconv.ParseFloat(h.State, 64)
			if err != nil {
				// Entity was unavailable/unknown for this sample.
				continue
			}
			best = &value
			bestAt = at
		}
	}
	return best
}

func parseHATime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, value)
}

func (s *HomeAssistantSource) getJSON(endpoint string, params url.Values, out any) error {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if params != nil {
		req.URL.RawQuery = params.Encode()
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &APIError{Endpoint: endpoint, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Message: "unexpected status"}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
