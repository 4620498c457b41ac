package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/edusight/observation-service/internal/platform/envutil"
	"github.com/edusight/observation-service/internal/platform/httpx"
	"github.com/edusight/observation-service/internal/platform/logger"
	"github.com/edusight/observation-service/internal/types"
)

const (
	targetedSolutionsPath = "/v1/solutions/targetedSolutions"
	solutionDetailsPath   = "/v1/solutions/details/"
	appDetailsPath        = "/v1/apps/details/"
)

// TargetedSolution is a role-scoped view of a solution returned by the core
// service; IDs stay as strings because targeted rows may not exist locally.
type TargetedSolution struct {
	ID                  string `json:"_id"`
	ExternalID          string `json:"externalId,omitempty"`
	Name                string `json:"name"`
	Description         string `json:"description,omitempty"`
	EntityType          string `json:"entityType,omitempty"`
	ProgramID           string `json:"programId,omitempty"`
	ProgramExternalID   string `json:"programExternalId,omitempty"`
	ProgramName         string `json:"programName,omitempty"`
	FrameworkID         string `json:"frameworkId,omitempty"`
	FrameworkExternalID string `json:"frameworkExternalId,omitempty"`
	IsAPrivateProgram   bool   `json:"isAPrivateProgram,omitempty"`
	Type                string `json:"type,omitempty"`
}

type TargetedSolutionList struct {
	Data  []TargetedSolution
	Count int
}

type AppDetails struct {
	Name    string `json:"name"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type Client interface {
	SolutionDetailsForRole(ctx context.Context, userToken string, claims types.RoleClaims, solutionID string) (*TargetedSolution, error)
	TargetedSolutions(ctx context.Context, userToken string, claims types.RoleClaims, solutionType, search string, skipSolutionIDs []string) (*TargetedSolutionList, error)
	AppDetails(ctx context.Context, appName string) (*AppDetails, error)
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:    strings.TrimSpace(os.Getenv("CORE_SERVICE_URL")),
		Timeout:    envutil.Seconds("CORE_SERVICE_TIMEOUT_SECONDS", 30*time.Second),
		MaxRetries: envutil.Int("CORE_SERVICE_MAX_RETRIES", 3),
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
		return nil, fmt.Errorf("missing CORE_SERVICE_URL")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &client{
		log:        log.With("client", "CoreServiceClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result"`
}

type listResult struct {
	Data  []TargetedSolution `json:"data"`
	Count int                `json:"count"`
}

func (c *client) SolutionDetailsForRole(ctx context.Context, userToken string, claims types.RoleClaims, solutionID string) (*TargetedSolution, error) {
	if strings.TrimSpace(solutionID) == "" {
		return nil, fmt.Errorf("solution id required")
	}
	body := claimsBody(claims)

	raw, err := c.do(ctx, http.MethodPost, solutionDetailsPath+solutionID, userToken, body)
	if err != nil {
		return nil, err
	}
	var out TargetedSolution
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) TargetedSolutions(ctx context.Context, userToken string, claims types.RoleClaims, solutionType, search string, skipSolutionIDs []string) (*TargetedSolutionList, error) {
	body := claimsBody(claims)
	if len(skipSolutionIDs) > 0 {
		body["filter"] = map[string]any{"skipSolutions": skipSolutionIDs}
	}

	path := targetedSolutionsPath + "?type=" + url.QueryEscape(solutionType)
	if search != "" {
		path += "&search=" + url.QueryEscape(search)
	}

	raw, err := c.do(ctx, http.MethodPost, path, userToken, body)
	if err != nil {
		return nil, err
	}
	var out listResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &TargetedSolutionList{Data: out.Data, Count: out.Count}, nil
}

func (c *client) AppDetails(ctx context.Context, appName string) (*AppDetails, error) {
	if strings.TrimSpace(appName) == "" {
		return nil, fmt.Errorf("app name required")
	}
	raw, err := c.do(ctx, http.MethodGet, appDetailsPath+url.PathEscape(appName), "", nil)
	if err != nil {
		return nil, err
	}
	var out AppDetails
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func claimsBody(claims types.RoleClaims) map[string]any {
	body := map[string]any{}
	if claims.Role != "" {
		body["role"] = claims.Role
	}
	for k, v := range claims.Locations {
		body[k] = v
	}
	return body
}

// ---------- HTTP / retry helpers ----------

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "core: <nil error>"
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("core http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) do(ctx context.Context, method, path, userToken string, body any) ([]byte, error) {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, userToken, body)
		if err == nil {
			return raw, nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return nil, err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("core service request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return nil, errors.New("unreachable retry loop")
}

func (c *client) doOnce(ctx context.Context, method, path, userToken string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(map[string]any{"request": body}); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	if userToken != "" {
		req.Header.Set("x-authenticated-user-token", userToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp, raw, err
	}
	if len(env.Result) == 0 {
		return resp, nil, fmt.Errorf("core: empty result for %s", path)
	}
	return resp, env.Result, nil
}
