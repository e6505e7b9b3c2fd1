package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const productListBody = `{
	"next": null,
	"results": [
		{
			"code": "GO-EXPORT-24-10-01",
			"display_name": "Octopus Go",
			"direction": "EXPORT",
			"links": [{"href": "https://api.example.test/v1/products/GO-EXPORT-24-10-01/", "rel": "self"}]
		},
		{
			"code": "GO-24-10-01",
			"display_name": "Octopus Go",
			"direction": "IMPORT",
			"links": [{"href": "https://api.example.test/v1/products/GO-24-10-01/", "rel": "self"}]
		}
	]
}`

const productDetailBody = `{
	"single_register_electricity_tariffs": {
		"_C": {
			"direct_debit_monthly": {
				"standing_charge_inc_vat": 47.85,
				"links": [
					{"href": "https://api.example.test/v1/products/GO-24-10-01/electricity-tariffs/E-1R-GO-24-10-01-C/standard-unit-rates/", "rel": "standard_unit_rates"}
				]
			}
		}
	}
}`

const unitRatesBody = `{
	"next": null,
	"results": [
		{"value_inc_vat": 8.5, "valid_from": "2025-01-07T00:30:00Z", "valid_to": "2025-01-07T05:30:00Z", "payment_method": null},
		{"value_inc_vat": 26.43, "valid_from": "2025-01-07T05:30:00Z", "valid_to": null, "payment_method": "DIRECT_DEBIT"}
	]
}`

func newTestCatalog(handler func(req *http.Request) (*http.Response, error)) *ProductCatalog {
	return NewProductCatalog("https://api.example.test/v1", &MockRoundTripper{Handler: handler}, testLogger())
}

func TestTariffRates(t *testing.T) {
	var requested []string
	catalog := newTestCatalog(func(req *http.Request) (*http.Response, error) {
		requested = append(requested, req.URL.String())
		switch req.URL.Path {
		case "/v1/products/":
			require.Equal(t, "OCTOPUS_ENERGY", req.URL.Query().Get("brand"))
			return jsonResponse(http.StatusOK, productListBody), nil
		case "/v1/products/GO-24-10-01/":
			return jsonResponse(http.StatusOK, productDetailBody), nil
		case "/v1/products/GO-24-10-01/electricity-tariffs/E-1R-GO-24-10-01-C/standard-unit-rates/":
			q := req.URL.Query()
			require.Equal(t, "2025-01-07T00:00:00Z", q.Get("period_from"))
			require.Equal(t, "2025-01-07T23:59:59Z", q.Get("period_to"))
			return jsonResponse(http.StatusOK, unitRatesBody), nil
		default:
			return jsonResponse(http.StatusNotFound, `{}`), nil
		}
	})

	day := time.Date(2025, 1, 7, 22, 0, 0, 0, time.UTC)
	pricing, err := catalog.TariffRates("Octopus Go", "C", day)
	require.NoError(t, err)

	require.Equal(t, "GO-24-10-01", pricing.ProductCode, "export variant must be skipped")
	require.Equal(t, 47.85, pricing.StandingChargePence)
	require.Len(t, pricing.Windows, 2)

	first := pricing.Windows[0]
	require.Equal(t, 8.5, first.ValueIncVAT)
	require.Nil(t, first.PaymentMethod)
	require.Equal(t, time.Date(2025, 1, 7, 0, 30, 0, 0, time.UTC), first.ValidFrom.UTC())

	second := pricing.Windows[1]
	require.Nil(t, second.ValidTo, "open-ended window")
	require.NotNil(t, second.PaymentMethod)
	require.Equal(t, "DIRECT_DEBIT", *second.PaymentMethod)

	require.Len(t, requested, 3)
}

func TestTariffRatesUnknownDisplayName(t *testing.T) {
	catalog := newTestCatalog(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, productListBody), nil
	})

	_, err := catalog.TariffRates("Agile Octopus", "C", time.Now())
	require.ErrorContains(t, err, "no matching product found for Agile Octopus")
}

func TestTariffRatesUnknownRegion(t *testing.T) {
	catalog := newTestCatalog(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/v1/products/" {
			return jsonResponse(http.StatusOK, productListBody), nil
		}
		return jsonResponse(http.StatusOK, productDetailBody), nil
	})

	_, err := catalog.TariffRates("Octopus Go", "Z", time.Now())
	require.ErrorContains(t, err, "region code not found _Z")
}

func TestTariffRatesHTTPError(t *testing.T) {
	catalog := newTestCatalog(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, `{}`), nil
	})

	_, err := catalog.TariffRates("Octopus Go", "C", time.Now())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestFindProductFollowsPagination(t *testing.T) {
	page1 := `{
		"next": "https://api.example.test/v1/products/?page=2",
		"results": [
			{"code": "OTHER", "display_name": "Something Else", "direction": "IMPORT", "links": []}
		]
	}`
	page2 := `{
		"next": null,
		"results": [
			{"code": "AGILE-24-10-01", "display_name": "Agile Octopus", "direction": "IMPORT", "links": []}
		]
	}`

	catalog := newTestCatalog(func(req *http.Request) (*http.Response, error) {
		if req.URL.Query().Get("page") == "2" {
			return jsonResponse(http.StatusOK, page2), nil
		}
		return jsonResponse(http.StatusOK, page1), nil
	})

	product, err := catalog.findProduct("Agile Octopus")
	require.NoError(t, err)
	require.Equal(t, "AGILE-24-10-01", product.Code)
}
