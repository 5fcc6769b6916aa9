package taskregistry

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HTTPInvoker fires an HTTP webhook and is the one built-in, registerable
// task kind shipped with this package. It is a direct generalization of
// the teacher's scheduler.Executor: same TLS floor, same connection pool
// tuning, same bounded redirect chain, same request-id header — but
// reachable as an ordinary taskregistry.Func instead of being baked into
// the worker loop, so webhook jobs (the teacher's entire original domain)
// remain expressible without the core depending on net/http at all.
type HTTPInvoker struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPInvoker builds an HTTPInvoker with the teacher's transport
// settings: TLS 1.2 floor, pooled idle connections, a 10-redirect cap.
func NewHTTPInvoker(logger *slog.Logger) *HTTPInvoker {
	return &HTTPInvoker{
		logger: logger.With("component", "http_invoker"),
		client: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

// HTTPRequestSpec is the expected shape of kwargs for a job dispatched to
// the "http_invoke" task: {"url": ..., "method": ..., "headers": ...,
// "body": ...}.
type HTTPRequestSpec struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
}

// Invoke performs the HTTP call described by kwargs and returns the
// response status code, or an error for transport failures and non-2xx
// responses — the generalization of the teacher's runJob success test
// (status == http.StatusOK) to "any 2xx is success".
func (h *HTTPInvoker) Invoke(ctx context.Context, _ []any, kwargs map[string]any) (any, error) {
	spec := parseHTTPRequestSpec(kwargs)
	if spec.Method == "" {
		spec.Method = http.MethodGet
	}

	var body io.Reader
	if spec.Body != "" {
		body = strings.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, spec.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func parseHTTPRequestSpec(kwargs map[string]any) HTTPRequestSpec {
	var spec HTTPRequestSpec
	if v, ok := kwargs["url"].(string); ok {
		spec.URL = v
	}
	if v, ok := kwargs["method"].(string); ok {
		spec.Method = v
	}
	if v, ok := kwargs["body"].(string); ok {
		spec.Body = v
	}
	if v, ok := kwargs["headers"].(map[string]string); ok {
		spec.Headers = v
	}
	return spec
}
