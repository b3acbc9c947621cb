package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
)

// httpFeed reads rates from a remote service speaking the same
// GET /rates/{base}/{quote}?at=RFC3339 endpoint that cmd/api serves.
type httpFeed struct {
	// url base API url
	url string

	// client for HTTP requests
	client http.Client
}

// NewHTTPFeed returns a Feed backed by the rate endpoint under baseURL.
func NewHTTPFeed(baseURL string, timeout time.Duration) Feed {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpFeed{
		url: strings.TrimRight(baseURL, "/"),
		client: http.Client{
			Timeout: timeout,
		},
	}
}

func (f *httpFeed) RateAtOrBefore(ctx context.Context, base, quote money.Code, at time.Time) (models.ExchangeRate, error) {
	u := fmt.Sprintf("%s/rates/%s/%s?at=%s", f.url, url.PathEscape(string(base)), url.PathEscape(string(quote)), url.QueryEscape(at.UTC().Format(time.RFC3339Nano)))

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.ExchangeRate{}, fmt.Errorf("building http request: %w", err)
	}
	response, err := f.client.Do(request)
	if err != nil {
		return models.ExchangeRate{}, apperr.Storage("rate feed", err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotFound || response.StatusCode == http.StatusUnprocessableEntity:
		return models.ExchangeRate{}, noRate(base, quote, at)
	case response.StatusCode != http.StatusOK:
		return models.ExchangeRate{}, apperr.Storage("rate feed", fmt.Errorf("unexpected status %s", response.Status))
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return models.ExchangeRate{}, apperr.Storage("rate feed", fmt.Errorf("reading json: %w", err))
	}
	var r models.ExchangeRate
	if err := json.Unmarshal(body, &r); err != nil {
		return models.ExchangeRate{}, apperr.Storage("rate feed", fmt.Errorf("decoding json: %w", err))
	}
	if err := r.Validate(); err != nil {
		return models.ExchangeRate{}, apperr.Storage("rate feed", err)
	}
	if r.Base != base || r.Quote != quote || r.AsOf.After(at) {
		return models.ExchangeRate{}, apperr.Storage("rate feed", fmt.Errorf("feed answered %s/%s at %s", r.Base, r.Quote, r.AsOf))
	}
	return r, nil
}
