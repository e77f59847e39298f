package relay

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Caller delivers one request body to one endpoint. The per-attempt deadline travels in ctx.
type Caller interface {
	Call(ctx context.Context, endpoint string, body []byte) Outcome
}

const defaultMaxResponseBytes = 32 << 20

type HTTPCaller struct {
	Client           *http.Client
	UserAgent        string
	MaxResponseBytes int64
}

// NewHTTPCaller builds a caller with its own transport. tlsConf may be nil.
func NewHTTPCaller(tlsConf *tls.Config, userAgent string) *HTTPCaller {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if tlsConf != nil {
		tr.TLSClientConfig = tlsConf
	}
	return &HTTPCaller{
		Client:           &http.Client{Transport: tr},
		UserAgent:        userAgent,
		MaxResponseBytes: defaultMaxResponseBytes,
	}
}

func (c *HTTPCaller) Call(ctx context.Context, endpoint string, body []byte) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: KindTransportError, Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return failure(ctx, err)
	}
	defer resp.Body.Close()

	limit := c.MaxResponseBytes
	if limit <= 0 {
		limit = defaultMaxResponseBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return failure(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Outcome{Kind: KindTransportError, Status: resp.StatusCode, Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return Outcome{Kind: KindSuccess, Status: resp.StatusCode, Body: b}
}

func failure(ctx context.Context, err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Outcome{Kind: KindTimedOut, Reason: "timeout"}
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}
	return Outcome{Kind: KindTransportError, Reason: err.Error()}
}
