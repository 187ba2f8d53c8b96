package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client talks to a freecurrencyapi-style rate provider: GET /v1/latest with
// an API key, a base currency and a comma-separated currency list, answered by
// {"data": {code: rate}} where rate is units of code per one base unit.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type latestResponse struct {
	Data map[string]float64 `json:"data"`
}

// Latest fetches rates for the given currencies relative to base. Any
// transport error, non-200 status or a payload without the data object is
// reported as a wrapped ErrRateFetch.
func (c *Client) Latest(ctx context.Context, base string, currencies []string) (map[string]decimal.Decimal, error) {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("base_currency", base)
	params.Set("currencies", strings.Join(currencies, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/latest?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrRateFetch, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned status %d", ErrRateFetch, resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrRateFetch, err)
	}
	if body.Data == nil {
		return nil, fmt.Errorf("%w: response has no data object", ErrRateFetch)
	}

	rates := make(map[string]decimal.Decimal, len(body.Data))
	for code, rate := range body.Data {
		if rate <= 0 {
			return nil, fmt.Errorf("%w: non-positive rate %v for %s", ErrRateFetch, rate, code)
		}
		rates[code] = decimal.NewFromFloat(rate)
	}
	return rates, nil
}
