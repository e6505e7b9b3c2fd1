package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultBaseURL = "https://api.octopus.energy/v1"

// Config is the application configuration, loaded from YAML with
// environment variable overrides. Flags override both.
type Config struct {
	APIKey        string `yaml:"api_key"`
	AccountNumber string `yaml:"account_number"`
	BaseURL       string `yaml:"base_url"`

	// Comma-separated tariff IDs to compare, e.g. "go,agile,flexible".
	Tariffs string `yaml:"tariffs"`

	DryRun        bool   `yaml:"dry_run"`
	OneOff        bool   `yaml:"one_off"`
	ExecutionTime string `yaml:"execution_time"`

	BatchNotifications bool   `yaml:"batch_notifications"`
	WebhookURL         string `yaml:"webhook_url"`
	MQTTBroker         string `yaml:"mqtt_broker"`
	MQTTTopic          string `yaml:"mqtt_topic"`

	HomeAssistant HomeAssistantConfig `yaml:"home_assistant,omitempty"`

	// Directory for cached catalog responses; empty disables caching.
	CacheDir string `yaml:"cache_dir"`

	Debug bool `yaml:"debug"`
}

// HomeAssistantConfig enables the Home Assistant consumption source when
// set; the supplier telemetry source is used otherwise.
type HomeAssistantConfig struct {
	URL                  string `yaml:"url"`
	Token                string `yaml:"token"`
	EnergyEntity         string `yaml:"energy_entity"`
	RateEntity           string `yaml:"rate_entity"`
	StandingChargeEntity string `yaml:"standing_charge_entity"`
}

// LoadConfig reads the YAML file at path, then applies environment
// overrides. A missing file is fine when the environment carries
// everything.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		BaseURL:       defaultBaseURL,
		Tariffs:       "go,agile,flexible",
		ExecutionTime: "23:00",
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.APIKey, "API_KEY")
	setString(&c.AccountNumber, "ACC_NUMBER")
	setString(&c.BaseURL, "BASE_URL")
	setString(&c.Tariffs, "TARIFFS")
	setString(&c.ExecutionTime, "EXECUTION_TIME")
	setString(&c.WebhookURL, "WEBHOOK_URL")
	setString(&c.MQTTBroker, "MQTT_BROKER")
	setString(&c.MQTTTopic, "MQTT_TOPIC")
	setString(&c.CacheDir, "CACHE_DIR")
	setBool(&c.DryRun, "DRY_RUN")
	setBool(&c.OneOff, "ONE_OFF")
	setBool(&c.BatchNotifications, "BATCH_NOTIFICATIONS")
	setBool(&c.Debug, "DEBUG")

	setString(&c.HomeAssistant.URL, "HA_URL")
	setString(&c.HomeAssistant.Token, "HA_TOKEN")
	setString(&c.HomeAssistant.EnergyEntity, "HA_ENERGY_ENTITY")
	setString(&c.HomeAssistant.RateEntity, "HA_RATE_ENTITY")
	setString(&c.HomeAssistant.StandingChargeEntity, "HA_STANDING_CHARGE_ENTITY")
}

// Validate checks for the settings without which a run cannot start.
// Failures here are fatal at startup.
func (c *Config) Validate() error {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "api_key")
	}
	if c.AccountNumber == "" {
		missing = append(missing, "account_number")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if strings.TrimSpace(c.Tariffs) == "" {
		return fmt.Errorf("no tariffs configured for comparison")
	}

	if _, _, err := parseDailyAt(c.ExecutionTime); err != nil {
		return fmt.Errorf("invalid execution_time: %w", err)
	}
	return nil
}

func setString(target *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*target = v
	}
}

func setBool(target *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			*target = true
		case "false", "0", "no":
			*target = false
		}
	}
}
