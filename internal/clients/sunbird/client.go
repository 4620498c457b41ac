package sunbird

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/edusight/observation-service/internal/platform/envutil"
	"github.com/edusight/observation-service/internal/platform/logger"
	"github.com/edusight/observation-service/internal/types"
)

const (
	locationSearchPath = "/api/data/v1/location/search"
	userReadPath       = "/api/user/v1/read/"

	responseCodeOK = "OK"
)

// LocationFilter addresses directory records either by UUID id or by opaque
// code. Exactly one side goes on the wire.
type LocationFilter struct {
	IDs   []string
	Codes []string
}

func (f LocationFilter) empty() bool { return len(f.IDs) == 0 && len(f.Codes) == 0 }

// LocationSearchResult mirrors the upstream contract: failures are absorbed
// into Success=false with no data, never surfaced as errors.
type LocationSearchResult struct {
	Success bool
	Data    []types.Entity
	Count   int
}

type ProfileResult struct {
	Success bool
	Profile types.UserProfile
}

type Client interface {
	LocationSearch(ctx context.Context, filter LocationFilter) LocationSearchResult
	Profile(ctx context.Context, bearerToken, userID string) ProfileResult
}

type Config struct {
	BaseURL      string
	ServiceToken string
	DataLimit    int
	Timeout      time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:      strings.TrimSpace(os.Getenv("SUNBIRD_SERVICE_URL")),
		ServiceToken: strings.TrimSpace(os.Getenv("SUNBIRD_SERVICE_AUTHORIZATION")),
		DataLimit:    envutil.Int("SUNBIRD_RESPONSE_DATA_LIMIT", 10000),
		Timeout:      envutil.Seconds("SUNBIRD_SERVER_TIMEOUT_SECONDS", 5*time.Second),
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("missing SUNBIRD_SERVICE_URL")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.DataLimit <= 0 {
		cfg.DataLimit = 10000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &client{
		log: log.With("client", "SunbirdClient"),
		cfg: cfg,
		// No Timeout on the http.Client: the race below ignores slow
		// responses rather than cancelling them.
		httpClient: &http.Client{},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

// --- wire types ---

type locationSearchRequest struct {
	Request locationSearchRequestBody `json:"request"`
}

type locationSearchRequestBody struct {
	Filters locationFilters `json:"filters"`
	Limit   int             `json:"limit"`
}

type locationFilters struct {
	ID   []string `json:"id,omitempty"`
	Code []string `json:"code,omitempty"`
}

type locationSearchResponse struct {
	ResponseCode string `json:"responseCode"`
	Result       struct {
		Response []types.Entity `json:"response"`
		Count    int            `json:"count"`
	} `json:"result"`
}

type userReadResponse struct {
	ResponseCode string `json:"responseCode"`
	Result       struct {
		Response types.UserProfile `json:"response"`
	} `json:"result"`
}

// LocationSearch resolves location identifiers to canonical records. The
// call races against the configured timeout: if the timer fires first the
// result is reported failed and the in-flight response, if any, is ignored.
// Never retries.
func (c *client) LocationSearch(ctx context.Context, filter LocationFilter) LocationSearchResult {
	failed := LocationSearchResult{Success: false}
	if filter.empty() {
		return failed
	}

	body := locationSearchRequest{
		Request: locationSearchRequestBody{
			Filters: locationFilters{ID: filter.IDs, Code: filter.Codes},
			Limit:   c.cfg.DataLimit,
		},
	}

	type outcome struct {
		parsed locationSearchResponse
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		var out outcome
		out.err = c.post(locationSearchPath, body, &out.parsed)
		done <- out
	}()

	select {
	case <-time.After(c.cfg.Timeout):
		c.log.Warn("location search timed out", "timeout", c.cfg.Timeout.String())
		return failed
	case <-ctx.Done():
		return failed
	case out := <-done:
		if out.err != nil {
			c.log.Warn("location search failed", "error", out.err)
			return failed
		}
		if out.parsed.ResponseCode != responseCodeOK {
			c.log.Warn("location search non-OK response", "response_code", out.parsed.ResponseCode)
			return failed
		}
		return LocationSearchResult{
			Success: true,
			Data:    out.parsed.Result.Response,
			Count:   out.parsed.Result.Count,
		}
	}
}

// Profile reads a user's directory profile with the caller's bearer token.
func (c *client) Profile(ctx context.Context, bearerToken, userID string) ProfileResult {
	if strings.TrimSpace(userID) == "" {
		return ProfileResult{Success: false}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+userReadPath+userID, nil)
	if err != nil {
		return ProfileResult{Success: false}
	}
	req.Header.Set("Authorization", c.cfg.ServiceToken)
	req.Header.Set("x-authenticated-user-token", bearerToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("user read failed", "error", err)
		return ProfileResult{Success: false}
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ProfileResult{Success: false}
	}

	var parsed userReadResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.ResponseCode != responseCodeOK {
		return ProfileResult{Success: false}
	}
	return ProfileResult{Success: true, Profile: parsed.Result.Response}
}

func (c *client) post(path string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.cfg.ServiceToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sunbird http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}
