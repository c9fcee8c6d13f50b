package ownership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPResolver asks the owning service for ownership metadata. Each resource
// type gets its own endpoint, supplied by configuration at startup. The
// lookup carries a bounded deadline; it is the only network hop on the
// decision path.
type HTTPResolver struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

// NewHTTPResolver constructs a resolver for one resource type endpoint.
func NewHTTPResolver(endpoint string, timeout time.Duration) *HTTPResolver {
	return &HTTPResolver{
		endpoint: endpoint,
		timeout:  timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type recordWire struct {
	TenantID string `json:"tenant_id"`
	OwnerID  string `json:"owner_id"`
	Version  int64  `json:"version"`
	Parent   *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"parent"`
}

// Resolve performs GET {endpoint}/{id} against the owning service.
func (r *HTTPResolver) Resolve(ctx context.Context, id string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", r.endpoint, url.PathEscape(id)), nil)
	if err != nil {
		return Record{}, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return Record{}, fmt.Errorf("%w: %s", ErrResolutionTimeout, r.endpoint)
		}
		return Record{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Record{}, ErrResourceNotFound
	case resp.StatusCode >= 400:
		return Record{}, fmt.Errorf("ownership: lookup returned status %d", resp.StatusCode)
	}

	var wire recordWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return Record{}, fmt.Errorf("ownership: decode lookup response: %w", err)
	}
	record := Record{TenantID: wire.TenantID, OwnerID: wire.OwnerID, Version: wire.Version}
	if wire.Parent != nil {
		record.Parent = &Ref{Type: wire.Parent.Type, ID: wire.Parent.ID}
	}
	return record, nil
}

func isTimeout(err error) bool {
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}
