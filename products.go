package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
)

// ProductCatalog resolves live tariff pricing from the public Octopus REST
// API. Navigation follows the links embedded in each payload rather than
// hard-coding URL shapes: product list -> product self link -> region
// tariff -> standard unit rates link.
type ProductCatalog struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewProductCatalog(baseURL string, rt http.RoundTripper, logger *slog.Logger) *ProductCatalog {
	return &ProductCatalog{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: rt,
			Timeout:   30 * time.Second,
		},
		logger: logger,
	}
}

type halLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type productSummary struct {
	Code        string    `json:"code"`
	DisplayName string    `json:"display_name"`
	Direction   string    `json:"direction"`
	Links       []halLink `json:"links"`
}

type productList struct {
	Next    *string          `json:"next"`
	Results []productSummary `json:"results"`
}

type regionTariff struct {
	StandingChargeIncVAT *float64  `json:"standing_charge_inc_vat"`
	Links                []halLink `json:"links"`
}

type regionTariffGroup struct {
	DirectDebitMonthly *regionTariff `json:"direct_debit_monthly"`
	Varying            *regionTariff `json:"varying"`
}

type productDetail struct {
	SingleRegisterElectricityTariffs map[string]regionTariffGroup `json:"single_register_electricity_tariffs"`
}

type unitRate struct {
	ValueIncVAT   float64          `json:"value_inc_vat"`
	ValidFrom     *strfmt.DateTime `json:"valid_from"`
	ValidTo       *strfmt.DateTime `json:"valid_to"`
	PaymentMethod *string          `json:"payment_method"`
}

type unitRateList struct {
	Next    *string    `json:"next"`
	Results []unitRate `json:"results"`
}

// TariffRates resolves the live product for a tariff display name, then its
// standing charge and unit-rate schedule for day in the given region.
func (p *ProductCatalog) TariffRates(displayName, regionCode string, day time.Time) (*TariffPricing, error) {
	product, err := p.findProduct(displayName)
	if err != nil {
		return nil, err
	}

	selfLink := findLink(product.Links, "self")
	if selfLink == "" {
		return nil, fmt.Errorf("self link not found for product %s", product.Code)
	}

	var detail productDetail
	if err := p.getJSON(selfLink, &detail); err != nil {
		return nil, err
	}

	regionKey := "_" + regionCode
	group, ok := detail.SingleRegisterElectricityTariffs[regionKey]
	if !ok {
		return nil, fmt.Errorf("region code not found %s", regionKey)
	}

	region := group.DirectDebitMonthly
	if region == nil {
		region = group.Varying
	}
	if region == nil {
		return nil, fmt.Errorf("no pricing for region %s", regionKey)
	}
	if region.StandingChargeIncVAT == nil {
		return nil, fmt.Errorf("standing charge not found for region %s", regionKey)
	}

	ratesLink := findLink(region.Links, "standard_unit_rates")
	if ratesLink == "" {
		return nil, fmt.Errorf("standard unit rates link not found for region %s", regionKey)
	}

	windows, err := p.unitRates(ratesLink, day)
	if err != nil {
		return nil, err
	}

	return &TariffPricing{
		ProductCode:         product.Code,
		StandingChargePence: *region.StandingChargeIncVAT,
		Windows:             windows,
	}, nil
}

// findProduct scans the public catalog for the import product with the
// given display name, following pagination.
func (p *ProductCatalog) findProduct(displayName string) (*productSummary, error) {
	url := p.baseURL + "/products/?brand=OCTOPUS_ENERGY&is_business=false"
	for url != "" {
		var page productList
		if err := p.getJSON(url, &page); err != nil {
			return nil, err
		}

		for i := range page.Results {
			product := &page.Results[i]
			if product.DisplayName == displayName && product.Direction == "IMPORT" {
				return product, nil
			}
		}

		url = ""
		if page.Next != nil {
			url = *page.Next
		}
	}
	return nil, fmt.Errorf("no matching product found for %s", displayName)
}

// unitRates fetches the rate windows covering day, following pagination.
// Agile publishes 48+ windows per day, so a single page cannot be assumed.
func (p *ProductCatalog) unitRates(link string, day time.Time) ([]RateWindow, error) {
	date := day.UTC().Format("2006-01-02")
	url := fmt.Sprintf("%s?period_from=%sT00:00:00Z&period_to=%sT23:59:59Z", link, date, date)

	var windows []RateWindow
	for url != "" {
		var page unitRateList
		if err := p.getJSON(url, &page); err != nil {
			return nil, err
		}

		for _, rate := range page.Results {
			windows = append(windows, RateWindow{
				ValueIncVAT:   rate.ValueIncVAT,
				ValidFrom:     (*time.Time)(rate.ValidFrom),
				ValidTo:       (*time.Time)(rate.ValidTo),
				PaymentMethod: rate.PaymentMethod,
			})
		}

		url = ""
		if page.Next != nil {
			url = *page.Next
		}
	}
	return windows, nil
}

func (p *ProductCatalog) getJSON(url string, out any) error {
	p.logger.Debug("REST request", "url", url)

	resp, err := p.httpClient.Get(url)
	if err != nil {
		return &APIError{Endpoint: url, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Endpoint: url, Message: "unexpected status"}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}

func findLink(links []halLink, rel string) string {
	for _, l := range links {
		if strings.EqualFold(l.Rel, rel) {
			return l.Href
		}
	}
	return ""
}
