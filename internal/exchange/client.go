package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"coinspread/internal/config"
	"coinspread/internal/logger"
)

const userAgent = "coinspread/1.0 (+https://github.com/coinspread)"

// rateLimitPenalty is slept before retrying after a 429, on top of the
// regular backoff schedule.
const rateLimitPenalty = 5 * time.Second

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     30 * time.Second,
		},
	}
}

// venue carries the request plumbing shared by all providers: rate limiting,
// circuit breaking, retry with exponential backoff and backup base URLs.
type venue struct {
	name        string
	baseURLs    []string
	client      *http.Client
	limiter     *rate.Limiter
	breaker     *Breaker
	attempts    int
	delay       time.Duration
	ratePenalty time.Duration
}

func newVenue(name string, baseURLs []string, client *http.Client, perSecond float64, api config.APIConfig) *venue {
	return &venue{
		name:        name,
		baseURLs:    baseURLs,
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), 1),
		breaker:     NewBreaker(breakerThreshold, breakerCooldown),
		attempts:    api.RetryAttempts,
		delay:       api.RetryDelay(),
		ratePenalty: rateLimitPenalty,
	}
}

// getJSON issues a GET against path on the primary base URL, falling back to
// backups and retrying transient failures. The breaker records the outcome.
func (v *venue) getJSON(ctx context.Context, path string, query url.Values, dest any) error {
	if !v.breaker.Allow() {
		return fmt.Errorf("%s: %w", v.name, ErrCircuitOpen)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = v.delay
	bo.MaxInterval = 10 * time.Second

	operation := func() error {
		var lastErr error
		for _, base := range v.baseURLs {
			if err := v.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
			if err := v.doOnce(ctx, base+path, query, dest); err != nil {
				lastErr = err
				if isPermanent(err) {
					return backoff.Permanent(err)
				}
				if errors.Is(err, ErrRateLimited) {
					select {
					case <-ctx.Done():
						return backoff.Permanent(ctx.Err())
					case <-time.After(v.ratePenalty):
					}
				}
				continue
			}
			return nil
		}
		return lastErr
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(v.attempts-1)), ctx))
	if err != nil {
		if errors.Is(err, ErrBlocked) {
			v.breaker.Disable()
			logger.Warn().Str("exchange", v.name).Msg("exchange disabled after blocked response")
		} else {
			v.breaker.Failure()
		}
		return err
	}
	v.breaker.Success()
	return nil
}

func (v *venue) doOnce(ctx context.Context, rawURL string, query url.Values, dest any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%s: bad url %s: %w", v.name, rawURL, err))
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", v.name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: reading response: %w", v.name, err)
		}
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("%s: decoding response: %w", v.name, err)
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		v.breaker.RateLimited()
		logger.Warn().Str("exchange", v.name).Msg("rate limited by exchange")
		return fmt.Errorf("%s: %w (status %d)", v.name, ErrRateLimited, resp.StatusCode)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnavailableForLegalReasons:
		return fmt.Errorf("%s: %w (status %d)", v.name, ErrBlocked, resp.StatusCode)
	default:
		return fmt.Errorf("%s: unexpected status %d", v.name, resp.StatusCode)
	}
}

func isPermanent(err error) bool {
	return err != nil && (errors.Is(err, ErrBlocked) || errors.Is(err, context.Canceled))
}
