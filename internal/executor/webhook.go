package executor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/worklinehq/workline/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultWebhookTimeout  = 10 * time.Second
)

// WebhookClient delivers webhook descriptors. One descriptor is one
// HTTP request; retries belong to the job scheduler, not this client.
type WebhookClient struct {
	client          *http.Client
	maxResponseBody int64
	timeout         time.Duration
}

// NewWebhookClient creates a webhook client. A zero timeout means
// defaultWebhookTimeout.
func NewWebhookClient(timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookClient{
		client:          &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		maxResponseBody: defaultMaxResponseBody,
		timeout:         timeout,
	}
}

// Validate checks the descriptor's URL before any request is attempted.
func (c *WebhookClient) Validate(desc *schema.JobDescriptor) error {
	if desc.URL == "" {
		return schema.NewError(schema.ErrCodeValidation, "webhook: missing url")
	}
	u, err := url.ParseRequestURI(desc.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return schema.NewErrorf(schema.ErrCodeValidation, "webhook: invalid url %q", desc.URL)
	}
	return nil
}

// Do performs the webhook request and returns the response as a map:
// status_code, status, headers, body, content_type, duration_ms. A JSON
// response body is parsed; anything else stays a string. Network errors
// and non-2xx statuses are both TRANSPORT_ERROR failures so the
// scheduler's retry policy treats them alike.
func (c *WebhookClient) Do(ctx context.Context, desc *schema.JobDescriptor) (map[string]any, error) {
	if err := c.Validate(desc); err != nil {
		return nil, err
	}

	method := strings.ToUpper(desc.Method)
	if method == "" {
		method = http.MethodPost
	}

	var bodyReader io.Reader
	var contentType string
	if desc.Body != nil {
		b, err := json.Marshal(desc.Body)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "webhook: body is not JSON-marshalable").WithCause(err)
		}
		bodyReader = strings.NewReader(string(b))
		contentType = "application/json"
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, desc.URL, bodyReader)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "webhook: failed to build request").WithCause(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range desc.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		code := schema.ErrCodeTransport
		if reqCtx.Err() != nil {
			code = schema.ErrCodeTimeout
		}
		return nil, schema.NewErrorf(code, "webhook: request failed: %v", err).
			WithCause(err).
			WithDetails(map[string]any{"url": desc.URL, "method": method})
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBody))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeTransport, "webhook: failed to read response body").WithCause(err)
	}

	respContentType := resp.Header.Get("Content-Type")
	var parsedBody any
	if len(bodyBytes) == 0 {
		parsedBody = nil
	} else if strings.Contains(respContentType, "application/json") {
		var jsonBody any
		if err := json.Unmarshal(bodyBytes, &jsonBody); err == nil {
			parsedBody = jsonBody
		} else {
			parsedBody = string(bodyBytes)
		}
	} else {
		parsedBody = string(bodyBytes)
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	result := map[string]any{
		"status_code":  resp.StatusCode,
		"status":       resp.Status,
		"headers":      respHeaders,
		"body":         parsedBody,
		"content_type": respContentType,
		"duration_ms":  durationMs,
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, schema.NewErrorf(schema.ErrCodeTransport,
			"webhook: %s %s returned %d", method, desc.URL, resp.StatusCode).
			WithDetails(result)
	}

	return result, nil
}
