package trackclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/trasealla/delivery-tracking/pkg/track"
)

// Snapshot is the tracking view returned by the server for a token.
type Snapshot struct {
	TrackingToken string               `json:"tracking_token"`
	Status        track.OrderStatus    `json:"status"`
	NextStatuses  []track.OrderStatus  `json:"next_statuses"`
	RecipientName string               `json:"recipient_name"`
	Address       string               `json:"recipient_address,omitempty"`
	Destination   *track.Coordinates   `json:"destination,omitempty"`
	AgentID       string               `json:"agent_id,omitempty"`
	PaymentMethod string               `json:"payment_method,omitempty"`
	CODAmount     float64              `json:"cod_amount,omitempty"`
	CODCollected  float64              `json:"cod_collected_amount,omitempty"`
	StatusHistory []track.StatusEvent  `json:"status_history"`
	Position      *track.AgentPosition `json:"position,omitempty"`
}

// SnapshotFetcher resolves a tracking token into a Snapshot. The
// session controller polls through this seam; APIClient is the HTTP
// implementation.
type SnapshotFetcher interface {
	Snapshot(ctx context.Context, token string) (*Snapshot, error)
}

// APIClient talks to the tracking REST surface.
type APIClient struct {
	baseURL string
	http    *http.Client
}

// NewAPIClient returns an APIClient for the given base URL
// (e.g. "https://api.trasealla.com"). A nil httpClient uses a default
// with a 10s timeout.
func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Snapshot fetches GET /tracking/{token}.
func (c *APIClient) Snapshot(ctx context.Context, token string) (*Snapshot, error) {
	var snap Snapshot
	if err := c.getJSON(ctx, "/tracking/"+token, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Order fetches GET /tracking/{token}/order, the scan flow's resolution
// endpoint. The payload is the same snapshot.
func (c *APIClient) Order(ctx context.Context, token string) (*Snapshot, error) {
	var snap Snapshot
	if err := c.getJSON(ctx, "/tracking/"+token+"/order", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *APIClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failure is recoverable: callers degrade to the
		// last-known state instead of blanking.
		return fmt.Errorf("%w: %v", track.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", track.ErrValidationFailed, err)
	}
	return nil
}

// APIError carries the server-reported message verbatim alongside its
// taxonomy kind, so errors.Is still classifies it and the UI can show
// Message exactly as the server sent it.
type APIError struct {
	Kind    error
	Message string
}

func (e *APIError) Error() string { return e.Message }

func (e *APIError) Unwrap() error { return e.Kind }

// apiError maps a non-200 response back into the error taxonomy.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		msg = envelope.Error
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return &APIError{Kind: track.ErrNotFound, Message: msg}
	case http.StatusUnprocessableEntity:
		return &APIError{Kind: track.ErrInvalidTransition, Message: msg}
	case http.StatusBadRequest:
		return &APIError{Kind: track.ErrValidationFailed, Message: msg}
	default:
		return &APIError{Kind: track.ErrUnavailable, Message: fmt.Sprintf("http %d: %s", resp.StatusCode, msg)}
	}
}
