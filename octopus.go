package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// GraphQL documents for the Kraken API. Inputs travel as variables, never
// interpolated into the document.
const (
	obtainKrakenTokenMutation = `
mutation ObtainToken($apiKey: String!) {
  obtainKrakenToken(input: {APIKey: $apiKey}) {
    token
  }
}`

	accountQuery = `
query Account($accountNumber: String!) {
  account(accountNumber: $accountNumber) {
    electricityAgreements(active: true) {
      validFrom
      meterPoint {
        mpan
        direction
        meters {
          smartDevices {
            deviceId
          }
        }
      }
      tariff {
        ... on TariffType {
          tariffCode
          standingCharge
        }
      }
    }
  }
}`

	telemetryQuery = `
query Telemetry($deviceId: String!, $start: DateTime!, $end: DateTime!) {
  smartMeterTelemetry(deviceId: $deviceId, grouping: HALF_HOURLY, start: $start, end: $end) {
    readAt
    consumptionDelta
    costDeltaWithTax
  }
}`

	startOnboardingMutation = `
mutation StartOnboarding($accountNumber: String!, $mpan: String!, $productCode: String!, $changeDate: Date!) {
  startOnboardingProcess(input: {accountNumber: $accountNumber, mpan: $mpan, productCode: $productCode, targetAgreementChangeDate: $changeDate}) {
    productEnrolment {
      id
    }
  }
}`

	termsVersionQuery = `
query TermsVersion($productCode: String!) {
  termsAndConditionsForProduct(productCode: $productCode) {
    version
  }
}`

	acceptTermsMutation = `
mutation AcceptTerms($accountNumber: String!, $enrolmentId: ID!, $major: Int!, $minor: Int!) {
  acceptTermsAndConditions(input: {accountNumber: $accountNumber, enrolmentId: $enrolmentId, termsVersion: {major: $major, minor: $minor}}) {
    acceptedVersion
  }
}`
)

// OctopusClient talks to the Kraken GraphQL API. It lazily obtains a token
// from the account API key and refreshes it when close to expiry.
type OctopusClient struct {
	accountNumber string
	apiKey        string
	endpoint      string
	httpClient    *http.Client
	logger        *slog.Logger

	token       string
	tokenExpiry time.Time
}

func NewOctopusClient(accountNumber, apiKey, baseURL string, rt http.RoundTripper, logger *slog.Logger) *OctopusClient {
	return &OctopusClient{
		accountNumber: accountNumber,
		apiKey:        apiKey,
		endpoint:      baseURL + "/graphql/",
		httpClient: &http.Client{
			Transport: rt,
			Timeout:   30 * time.Second,
		},
		logger: logger,
	}
}

type gqlError struct {
	Message string `json:"message"`
}

type tokenResponse struct {
	Data struct {
		ObtainKrakenToken struct {
			Token string `json:"token"`
		} `json:"obtainKrakenToken"`
	} `json:"data"`
	Errors []gqlError `json:"errors"`
}

func (c *OctopusClient) ensureToken() error {
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return nil
	}

	c.logger.Debug("obtaining Kraken token")

	var resp tokenResponse
	if err := c.post(obtainKrakenTokenMutation, map[string]any{"apiKey": c.apiKey}, "", &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return &AuthError{Message: resp.Errors[0].Message}
	}
	if resp.Data.ObtainKrakenToken.Token == "" {
		return &AuthError{Message: "empty token received"}
	}

	c.token = resp.Data.ObtainKrakenToken.Token
	// Tokens last an hour; renew well inside that.
	c.tokenExpiry = time.Now().Add(45 * time.Minute)
	return nil
}

// query runs an authenticated GraphQL document and decodes the response
// into result, surfacing GraphQL-level errors as Go errors.
func (c *OctopusClient) query(document string, variables map[string]any, result any) error {
	if err := c.ensureToken(); err != nil {
		return err
	}

	raw := struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlError      `json:"errors"`
	}{}
	if err := c.post(document, variables, c.token, &raw); err != nil {
		return err
	}
	if len(raw.Errors) > 0 {
		return &APIError{Endpoint: c.endpoint, Message: raw.Errors[0].Message}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw.Data, result); err != nil {
		return fmt.Errorf("decoding GraphQL data: %w", err)
	}
	return nil
}

func (c *OctopusClient) post(document string, variables map[string]any, token string, result any) error {
	body, err := json.Marshal(map[string]any{
		"query":     document,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("marshalling GraphQL request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating GraphQL request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	c.logger.Debug("GraphQL request", "endpoint", c.endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Endpoint: c.endpoint, Message: "GraphQL request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading GraphQL response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.token = ""
		return &AuthError{Message: fmt.Sprintf("authentication failed (status %d)", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Endpoint: c.endpoint, Message: string(respBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding GraphQL response: %w", err)
	}
	return nil
}

// ElectricityAgreement is one active agreement on the account.
type ElectricityAgreement struct {
	ValidFrom  string `json:"validFrom"`
	MeterPoint struct {
		Mpan      string `json:"mpan"`
		Direction string `json:"direction"`
		Meters    []struct {
			SmartDevices []struct {
				DeviceID string `json:"deviceId"`
			} `json:"smartDevices"`
		} `json:"meters"`
	} `json:"meterPoint"`
	Tariff struct {
		TariffCode     string  `json:"tariffCode"`
		StandingCharge float64 `json:"standingCharge"`
	} `json:"tariff"`
}

// ElectricityAgreements fetches the account's active electricity
// agreements.
func (c *OctopusClient) ElectricityAgreements() ([]ElectricityAgreement, error) {
	var data struct {
		Account struct {
			ElectricityAgreements []ElectricityAgreement `json:"electricityAgreements"`
		} `json:"account"`
	}
	err := c.query(accountQuery, map[string]any{"accountNumber": c.accountNumber}, &data)
	if err != nil {
		return nil, fmt.Errorf("fetching account: %w", err)
	}
	return data.Account.ElectricityAgreements, nil
}

// SmartMeterTelemetry fetches half-hourly telemetry for a smart meter
// device. The API returns numbers as strings; they are parsed here.
func (c *OctopusClient) SmartMeterTelemetry(deviceID string, start, end time.Time) ([]ConsumptionPeriod, error) {
	var data struct {
		SmartMeterTelemetry []struct {
			ReadAt           string  `json:"readAt"`
			ConsumptionDelta string  `json:"consumptionDelta"`
			CostDeltaWithTax *string `json:"costDeltaWithTax"`
		} `json:"smartMeterTelemetry"`
	}
	err := c.query(telemetryQuery, map[string]any{
		"deviceId": deviceID,
		"start":    isoZ(start),
		"end":      isoZ(end),
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("fetching telemetry: %w", err)
	}

	var periods []ConsumptionPeriod
	for _, t := range data.SmartMeterTelemetry {
		readAt, err := time.Parse(time.RFC3339, t.ReadAt)
		if err != nil {
			return nil, fmt.Errorf("telemetry readAt %q: %w", t.ReadAt, err)
		}
		delta, err := strconv.ParseFloat(t.ConsumptionDelta, 64)
		if err != nil {
			return nil, fmt.Errorf("telemetry consumptionDelta %q: %w", t.ConsumptionDelta, err)
		}

		period := ConsumptionPeriod{ReadAt: readAt, ConsumptionWh: delta}
		if t.CostDeltaWithTax != nil {
			cost, err := strconv.ParseFloat(*t.CostDeltaWithTax, 64)
			if err != nil {
				return nil, fmt.Errorf("telemetry costDeltaWithTax %q: %w", *t.CostDeltaWithTax, err)
			}
			period.CostDeltaWithTax = &cost
		}
		periods = append(periods, period)
	}
	return periods, nil
}

// SubmitSwitch starts the onboarding process for the target product and
// returns the enrolment id, empty when the supplier returned none.
func (c *OctopusClient) SubmitSwitch(productCode, mpan string, changeDate time.Time) (string, error) {
	var data struct {
		StartOnboardingProcess struct {
			ProductEnrolment struct {
				ID string `json:"id"`
			} `json:"productEnrolment"`
		} `json:"startOnboardingProcess"`
	}
	err := c.query(startOnboardingMutation, map[string]any{
		"accountNumber": c.accountNumber,
		"mpan":          mpan,
		"productCode":   productCode,
		"changeDate":    changeDate.UTC().Format("2006-01-02"),
	}, &data)
	if err != nil {
		return "", fmt.Errorf("submitting switch: %w", err)
	}
	return data.StartOnboardingProcess.ProductEnrolment.ID, nil
}

// TermsVersion fetches the terms-and-conditions version for a product,
// empty when the supplier has none.
func (c *OctopusClient) TermsVersion(productCode string) (string, error) {
	var data struct {
		TermsAndConditionsForProduct struct {
			Version string `json:"version"`
		} `json:"termsAndConditionsForProduct"`
	}
	err := c.query(termsVersionQuery, map[string]any{"productCode": productCode}, &data)
	if err != nil {
		return "", fmt.Errorf("fetching terms version: %w", err)
	}
	return data.TermsAndConditionsForProduct.Version, nil
}

// AcceptTerms accepts the pending agreement's terms and returns the
// accepted version string.
func (c *OctopusClient) AcceptTerms(enrolmentID string, major, minor int) (string, error) {
	var data struct {
		AcceptTermsAndConditions struct {
			AcceptedVersion string `json:"acceptedVersion"`
		} `json:"acceptTermsAndConditions"`
	}
	err := c.query(acceptTermsMutation, map[string]any{
		"accountNumber": c.accountNumber,
		"enrolmentId":   enrolmentID,
		"major":         major,
		"minor":         minor,
	}, &data)
	if err != nil {
		return "", fmt.Errorf("accepting terms: %w", err)
	}
	return data.AcceptTermsAndConditions.AcceptedVersion, nil
}

// AgreementStartDates returns the start date of every active electricity
// agreement, used to verify a switch landed.
func (c *OctopusClient) AgreementStartDates() ([]time.Time, error) {
	agreements, err := c.ElectricityAgreements()
	if err != nil {
		return nil, err
	}
	var starts []time.Time
	for _, a := range agreements {
		if a.ValidFrom == "" {
			continue
		}
		start, err := time.Parse(time.RFC3339, a.ValidFrom)
		if err != nil {
			return nil, fmt.Errorf("agreement validFrom %q: %w", a.ValidFrom, err)
		}
		starts = append(starts, start)
	}
	return starts, nil
}

// isoZ renders a UTC timestamp with a literal Z suffix, the shape every
// external date parameter uses.
func isoZ(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
