package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pathforge/pathforge/core"
)

// fetcher performs the GET requests shared by the HTTP-backed tools.
type fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

func newFetcher(httpClient *http.Client, cfg core.ToolsConfig) *fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 2 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "pathforge/1.0"
	}
	return &fetcher{client: httpClient, userAgent: cfg.UserAgent, maxBytes: cfg.MaxBodyBytes}
}

// get fetches rawURL and returns the (possibly truncated) body.
//
// Transport failures return *core.NetworkError; non-2xx responses return a
// *core.ToolExecutionError whose category follows the status code.
func (f *fetcher) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", invalidInput("INVALID_URL", fmt.Errorf("invalid url %q: %v", rawURL, err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,text/markdown,text/plain,application/json;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &core.NetworkError{Target: hostOf(rawURL), Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		te := core.NewToolError(fmt.Sprintf("HTTP_%d", resp.StatusCode), core.CategoryForStatus(resp.StatusCode),
			fmt.Errorf("GET %s: %s", rawURL, resp.Status))
		te.Details = map[string]string{
			"status_code": strconv.Itoa(resp.StatusCode),
			"url":         rawURL,
		}
		return "", te
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &core.NetworkError{Target: hostOf(rawURL), Err: err}
	}
	return string(body), nil
}

func invalidInput(code string, err error) *core.ToolExecutionError {
	return core.NewToolError(code, core.CategoryInputError, fmt.Errorf("%w: %v", core.ErrInvalidInput, err))
}

// stringInput returns input[key] as a non-empty string.
func stringInput(input map[string]interface{}, key string) (string, error) {
	v, _ := input[key].(string)
	v = strings.TrimSpace(v)
	if v == "" {
		return "", invalidInput("MISSING_"+strings.ToUpper(key), fmt.Errorf("%s is required", key))
	}
	return v, nil
}

// HostOf returns the lower-cased host of rawURL, or "" when it has none.
func HostOf(rawURL string) string { return hostOf(rawURL) }

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
