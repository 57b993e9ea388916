package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Request is a host-neutral HTTP request, the shape serverless platforms
// hand to a function.
type Request struct {
	Method          string            `json:"method"`
	Path            string            `json:"path"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body,omitempty"`
	IsBase64Encoded bool              `json:"is_base64_encoded,omitempty"`
	SourceIP        string            `json:"source_ip,omitempty"`
}

// Response is what Invoke returns to the host.
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// InvokeOption configures Invoke.
type InvokeOption func(*invokeConfig)

type invokeConfig struct {
	stripPrefix string
}

// WithStripPrefix removes prefix from the request path before routing, for
// hosts that mount the function under e.g. "/.netlify/functions/api".
func WithStripPrefix(prefix string) InvokeOption {
	return func(c *invokeConfig) { c.stripPrefix = strings.TrimRight(prefix, "/") }
}

// Invoke runs a single request through h without a listener.
func Invoke(ctx context.Context, h http.Handler, req Request, opts ...InvokeOption) (Response, error) {
	var cfg invokeConfig
	for _, o := range opts {
		o(&cfg)
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return Response{}, fmt.Errorf("decoding request body: %w", err)
		}
		body = decoded
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	path := req.Path
	if cfg.stripPrefix != "" && strings.HasPrefix(path, cfg.stripPrefix) {
		path = strings.TrimPrefix(path, cfg.stripPrefix)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, path, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("building request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if host := httpReq.Header.Get("Host"); host != "" {
		httpReq.Host = host
	}
	if req.SourceIP != "" {
		httpReq.RemoteAddr = net.JoinHostPort(req.SourceIP, "0")
	}

	rw := newBufferedResponse()
	h.ServeHTTP(rw, httpReq)

	headers := make(map[string]string, len(rw.header))
	for k, v := range rw.header {
		headers[k] = strings.Join(v, ", ")
	}
	return Response{
		StatusCode: rw.statusCode(),
		Headers:    headers,
		Body:       rw.body.String(),
	}, nil
}

// bufferedResponse collects a handler's output in memory.
type bufferedResponse struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) statusCode() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}
