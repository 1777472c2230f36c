package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/scottbass3/regscope/internal/cancel"
)

const maxBodySize = 4 << 20

// Response is a normalized registry response. Header keys are lower-case.
// Body holds the decoded JSON payload, or {} when the response carried no
// content length.
type Response struct {
	Status     int
	StatusText string
	Succeeded  bool
	Headers    map[string]string
	Body       json.RawMessage
}

func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode registry response: %w", err)
	}
	return nil
}

type v2Request struct {
	Method string
	Path   string
	Scope  string
	Accept []string
	// AllowFailure returns non-2xx responses instead of a RequestFailedError.
	AllowFailure bool
}

// registryV2Request issues a single signed call against the registry API.
func registryV2Request(ctx context.Context, r *Registry, in v2Request) (*Response, error) {
	endpoint := resolveURL(r.BaseURL(), in.Path)
	resp, err := r.execute(ctx, endpoint, in)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized && r.provider.retryChallenges {
		if _, upgraded := r.AuthContext(); !upgraded {
			if authCtx, ok := getAuthContext(resp); ok {
				r.setAuthContext(authCtx)
				resp, err = r.execute(ctx, endpoint, in)
				if err != nil {
					return nil, err
				}
			}
		}
	}

	if !in.AllowFailure && !resp.Succeeded {
		return nil, &RequestFailedError{
			Method:     in.Method,
			URL:        endpoint,
			Status:     resp.Status,
			StatusText: resp.StatusText,
		}
	}
	return resp, nil
}

func (r *Registry) execute(ctx context.Context, endpoint string, in v2Request) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, in.Method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if len(in.Accept) > 0 {
		req.Header.Set("Accept", strings.Join(in.Accept, ", "))
	}
	if err := r.sign(ctx, req, in.Scope); err != nil {
		return nil, err
	}
	return roundTrip(ctx, r.provider.httpClient, r.provider.requestLogger, req)
}

// roundTrip sends req through the cancellation bridge and normalizes the
// response. The body is always read and closed inside the raced call so a
// canceled caller does not leak the connection.
func roundTrip(ctx context.Context, client *http.Client, logger RequestLogger, req *http.Request) (*Response, error) {
	return cancel.Race(ctx, func() (*Response, error) {
		resp, err := client.Do(req)
		logRequestWithLogger(logger, req, resp)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return normalizeResponse(resp)
	})
}

func normalizeResponse(resp *http.Response) (*Response, error) {
	out := &Response{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Succeeded:  resp.StatusCode >= 200 && resp.StatusCode < 300,
		Headers:    lowerHeaders(resp.Header),
		Body:       json.RawMessage("{}"),
	}

	// The transport drops Content-Length when it transparently decompresses
	// a gzip body, so Uncompressed counts as a present length.
	if resp.ContentLength == 0 || (resp.ContentLength < 0 && !resp.Uncompressed) {
		return out, nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read registry response: %w", err)
	}
	if len(data) > maxBodySize {
		return nil, fmt.Errorf("registry response exceeds %d bytes", maxBodySize)
	}
	if !json.Valid(data) {
		if out.Succeeded {
			return nil, fmt.Errorf("registry response is not valid JSON")
		}
		return out, nil
	}
	out.Body = data
	return out, nil
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
