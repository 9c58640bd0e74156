// Package registry submits transformed records to the registry import
// endpoint and interprets its replies.
package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// ImportPath is appended to the base URL.
	ImportPath = "/registry/import/import_s3/"

	// SessionCookie carries the pre-established session token.
	SessionCookie = "PHPSESSID"

	UserAgent = "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:38.0) Gecko/20100101 Firefox/38.0"

	defaultTimeout = 60 * time.Second
)

// Config configures an Uploader.
type Config struct {
	// BaseURL is the registry root, without ImportPath.
	BaseURL string

	// SourceID is sent as the "id" field of every upload.
	SourceID string

	// SessionID is the value of the session cookie.
	SessionID string

	// Timeout bounds a single upload (default: 60s).
	Timeout time.Duration

	// Rate limits uploads per second. Zero means unlimited.
	Rate float64

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper
}

// StatusError is returned when the endpoint answers with anything but 200.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("import endpoint returned HTTP %d", e.StatusCode)
}

// Uploader posts records one at a time.
type Uploader struct {
	cfg        Config
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewUploader validates cfg and returns an Uploader for it.
func NewUploader(cfg Config) (*Uploader, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	u := &Uploader{
		cfg:      cfg,
		endpoint: base.String() + ImportPath,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
	}
	if cfg.Rate > 0 {
		u.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}

	return u, nil
}

// Endpoint returns the URL uploads are posted to.
func (u *Uploader) Endpoint() string {
	return u.endpoint
}

// EncodeForm builds the request body: id and xml, both percent-encoded.
func EncodeForm(sourceID, payload string) string {
	return url.Values{
		"id":  {sourceID},
		"xml": {payload},
	}.Encode()
}

// Upload posts payload and returns the response body. Any status other
// than 200 is a *StatusError.
func (u *Uploader) Upload(ctx context.Context, payload string) ([]byte, error) {
	if u.limiter != nil {
		if err := u.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	body := EncodeForm(u.cfg.SourceID, payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json, */*")
	req.Header.Set("Accept-Language", "en-US, en")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: u.cfg.SessionID})

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	return data, nil
}
