package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPProvider fetches records from a remote JSON endpoint. The endpoint may answer with a
// single object or with a list of per-user objects, in which case the first one is used.
// A "{user_id}" placeholder in the URL is replaced with the requesting user's id.
type HTTPProvider struct {
	url    string
	client *http.Client
}

func NewHTTPProvider(rawURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		url: strings.TrimSpace(rawURL),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *HTTPProvider) Fetch(ctx context.Context, userID string) (Record, error) {
	target := strings.ReplaceAll(p.url, "{user_id}", url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	return decodeRecord(body)
}

// StatusError reports a non-200 provider response. It matches ErrUnavailable.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("finance provider http status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrUnavailable }

func (e *StatusError) StatusCode() int { return e.Code }

func decodeRecord(body []byte) (Record, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	switch v := payload.(type) {
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty list", ErrUnavailable)
		}
		first, ok := v[0].(map[string]any)
		if !ok || len(first) == 0 {
			return nil, fmt.Errorf("%w: first element is not an object", ErrUnavailable)
		}
		return Record(first), nil
	case map[string]any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty object", ErrUnavailable)
		}
		return Record(v), nil
	default:
		return nil, fmt.Errorf("%w: unexpected payload %T", ErrUnavailable, payload)
	}
}
