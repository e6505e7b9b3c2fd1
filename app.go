package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
)

// App wires the clients, the notifier and the tariff candidates for a run.
type App struct {
	Config   *Config
	Logger   *slog.Logger
	Octopus  *OctopusClient
	Catalog  *ProductCatalog
	Notifier *Dispatcher
	Tariffs  []Tariff

	now func() time.Time
}

// NewApp builds the application from configuration. Each run constructs its
// own transport and in-memory state; nothing is shared across runs.
func NewApp(cfg *Config, logger *slog.Logger) (*App, error) {
	rt := http.DefaultTransport
	if cfg.CacheDir != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
		rt = &CachingRoundTripper{UnderlyingTransport: http.DefaultTransport, CacheDir: cfg.CacheDir}
		logger.Info("HTTP caching enabled", "dir", cfg.CacheDir)
	}

	var channels []Channel
	if cfg.WebhookURL != "" {
		channels = append(channels, NewWebhookChannel(cfg.WebhookURL))
	}
	if cfg.MQTTBroker != "" {
		mqttChannel, err := NewMQTTChannel(cfg.MQTTBroker, cfg.MQTTTopic)
		if err != nil {
			return nil, fmt.Errorf("setting up MQTT notifications: %w", err)
		}
		channels = append(channels, mqttChannel)
	}
	notifier := NewDispatcher(channels, cfg.BatchNotifications, logger)

	tariffs := selectTariffs(cfg.Tariffs, notifier.Notify)
	if len(tariffs) == 0 {
		return nil, fmt.Errorf("none of the configured tariffs are known: %s", cfg.Tariffs)
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Octopus:  NewOctopusClient(cfg.AccountNumber, cfg.APIKey, cfg.BaseURL, rt, logger),
		Catalog:  NewProductCatalog(cfg.BaseURL, rt, logger),
		Notifier: notifier,
		Tariffs:  tariffs,
		now:      time.Now,
	}, nil
}

// RunOnce executes one comparison run. Every failure funnels through here:
// it is formatted with full diagnostic detail and sent as an error-flagged
// notification rather than silently crashing the process.
func (a *App) RunOnce() {
	defer a.Notifier.Flush()
	defer func() {
		if r := recover(); r != nil {
			detail := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
			a.Logger.Error("run panicked", "panic", r)
			a.Notifier.NotifyError(detail, "Tariff switcher error")
		}
	}()

	if err := a.run(); err != nil {
		a.Logger.Error("run failed", "error", err)
		a.Notifier.NotifyError(fmt.Sprintf("%+v", err), "Tariff switcher error")
	}
}

func (a *App) run() error {
	welcome := ""
	if a.Config.DryRun {
		welcome = "DRY RUN: "
	}
	welcome += fmt.Sprintf("Starting comparison of today's costs... (%s)", botVersion)
	a.Notifier.Notify(welcome)

	account, source, err := a.accountSnapshot()
	if err != nil {
		return err
	}
	a.Notifier.Notify(fmt.Sprintf("Using %s for consumption data", source.Name()))

	comparator := NewTariffComparator(a.Catalog, a.Logger)
	result := comparator.Compare(account, a.Tariffs, a.now().UTC())

	if result.Decision == DecisionStay {
		if result.Winner == result.Current {
			a.Notifier.Notify(fmt.Sprintf("%s\nYou are already on the cheapest tariff: %s at £%s",
				result.Summary, result.Winner.Tariff.DisplayName, poundsOf(result.Winner.Cost.TotalPence)))
		} else {
			a.Notifier.Notify(fmt.Sprintf("%s\nNot switching today.", result.Summary))
		}
		return nil
	}

	a.Notifier.Notify(fmt.Sprintf("%s\nInitiating Switch to %s", result.Summary, result.Winner.Tariff.DisplayName))

	if a.Config.DryRun {
		a.Notifier.Notify("DRY RUN: Not going through with switch today.")
		return nil
	}

	if result.Winner.ProductCode == "" {
		return fmt.Errorf("product code is missing for %s", result.Winner.Tariff.ID)
	}
	if account.Mpan == "" {
		return fmt.Errorf("mpan is missing")
	}

	orchestrator := NewSwitchOrchestrator(a.Octopus, a.Notifier, a.Config.AccountNumber, a.Logger)
	_, err = orchestrator.Execute(result.Winner.ProductCode, account.Mpan)
	return err
}

// accountSnapshot assembles the read-only AccountInfo for this run from the
// supplier account plus the selected consumption source.
func (a *App) accountSnapshot() (*AccountInfo, ConsumptionSource, error) {
	agreements, err := a.Octopus.ElectricityAgreements()
	if err != nil {
		return nil, nil, err
	}

	var importAgreement *ElectricityAgreement
	for i := range agreements {
		if agreements[i].MeterPoint.Direction == "IMPORT" {
			importAgreement = &agreements[i]
			break
		}
	}
	if importAgreement == nil {
		return nil, nil, fmt.Errorf("no IMPORT meter point found in account data")
	}

	tariffCode := importAgreement.Tariff.TariffCode
	if tariffCode == "" {
		return nil, nil, fmt.Errorf("no tariff code found for the IMPORT meter")
	}
	if importAgreement.Tariff.StandingCharge == 0 {
		return nil, nil, fmt.Errorf("no standing charge found for the IMPORT meter tariff")
	}
	if importAgreement.MeterPoint.Mpan == "" {
		return nil, nil, fmt.Errorf("no MPAN found for the IMPORT meter")
	}

	currentTariff, ok := matchTariff(a.Tariffs, tariffCode)
	if !ok {
		return nil, nil, fmt.Errorf("found no supported tariff for %s", tariffCode)
	}

	// Region is the single-character suffix of the tariff code.
	regionCode := tariffCode[len(tariffCode)-1:]

	var deviceID string
	for _, meter := range importAgreement.MeterPoint.Meters {
		for _, device := range meter.SmartDevices {
			if device.DeviceID != "" {
				deviceID = device.DeviceID
				break
			}
		}
		if deviceID != "" {
			break
		}
	}

	ha := NewHomeAssistantSource(a.Config.HomeAssistant, a.Logger)
	telemetry := NewTelemetrySource(a.Octopus, deviceID, importAgreement.Tariff.StandingCharge)
	source, err := selectConsumptionSource(ha, telemetry, a.Logger)
	if err != nil {
		return nil, nil, err
	}

	start, end := dayBounds(a.now().UTC())
	consumption, err := source.ConsumptionData(start, end)
	if err != nil {
		return nil, nil, err
	}

	standingCharge, err := source.StandingCharge()
	if err != nil {
		return nil, nil, err
	}

	return &AccountInfo{
		CurrentTariff:       currentTariff,
		StandingChargePence: standingCharge,
		RegionCode:          regionCode,
		Consumption:         consumption,
		Mpan:                importAgreement.MeterPoint.Mpan,
	}, source, nil
}

// RunScheduled blocks, firing one run per day at the configured time. The
// next scheduled invocation is the retry unit: a failed run is reported and
// then forgotten.
func (a *App) RunScheduled() error {
	hour, minute, err := parseDailyAt(a.Config.ExecutionTime)
	if err != nil {
		return err
	}
	a.Logger.Info("scheduler started", "daily_at", a.Config.ExecutionTime)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var lastRun time.Time
	for now := range ticker.C {
		if now.Hour() != hour || now.Minute() != minute {
			continue
		}
		if !lastRun.IsZero() && sameDate(now, lastRun) {
			continue
		}
		lastRun = now
		a.RunOnce()
	}
	return nil
}

// parseDailyAt parses a "HH:MM" schedule value.
func parseDailyAt(value string) (int, int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour, minute, nil
}

// dayBounds returns the UTC day boundaries for t: 00:00:00 to 23:59:59.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24*time.Hour - time.Second)
}
