package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// TokenSource supplies a bearer token for each outbound Graph call. The auth
// manager satisfies it; its failures pass through to callers untranslated so
// the authentication taxonomy survives.
type TokenSource interface {
	AcquireTokenSilent(ctx context.Context) (string, error)
}

// APIError reports an error response from Microsoft Graph.
type APIError struct {
	Message    string
	StatusCode int
	Details    any
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

// Client is a thin wrapper around Microsoft Graph REST operations for drives
// and drive items. It holds the session's active drive; every request fetches
// a fresh bearer token from the TokenSource.
type Client struct {
	tokens  TokenSource
	baseURL string
	httpc   *http.Client
	logger  zerolog.Logger

	mu            sync.RWMutex
	activeDriveID string
}

// NewClient creates a Graph client. baseURL defaults to the v1.0 endpoint.
func NewClient(tokens TokenSource, baseURL string, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		tokens:  tokens,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   http.DefaultClient,
		logger:  logger.With().Str("component", "graph").Logger(),
	}
}

// ActiveDriveID returns the drive selected for this session, if any.
func (c *Client) ActiveDriveID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeDriveID
}

// SetActiveDrive validates driveID against Graph and selects it for
// subsequent item operations.
func (c *Client) SetActiveDrive(ctx context.Context, driveID string) (*Drive, error) {
	drive, err := c.GetDrive(ctx, driveID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.activeDriveID = driveID
	c.mu.Unlock()
	c.logger.Info().Str("driveId", driveID).Msg("active drive changed")
	return drive, nil
}

// PreselectDrive sets the active drive without consulting Graph. It serves
// configured defaults applied before the first token exists; interactive
// selection goes through SetActiveDrive. A mistyped id surfaces as an
// APIError on the first item operation that falls back to it.
func (c *Client) PreselectDrive(driveID string) {
	c.mu.Lock()
	c.activeDriveID = driveID
	c.mu.Unlock()
	c.logger.Info().Str("driveId", driveID).Msg("preselected configured drive, validation deferred to first use")
}

// resolveDriveID picks the explicit drive or falls back to the active one.
func (c *Client) resolveDriveID(driveID string) (string, error) {
	if driveID != "" {
		return driveID, nil
	}
	c.mu.RLock()
	active := c.activeDriveID
	c.mu.RUnlock()
	if active == "" {
		return "", &APIError{Message: "no drive specified; select an active drive or provide driveId explicitly"}
	}
	return active, nil
}

// request performs an authenticated Graph call and decodes the JSON response
// into out when non-nil. Token acquisition failures propagate untouched;
// transport and Graph failures surface as *APIError.
func (c *Client) request(ctx context.Context, method, endpoint string, query neturl.Values, body io.Reader, contentType string, out any) error {
	token, err := c.tokens.AcquireTokenSilent(ctx)
	if err != nil {
		return err
	}
	url := c.baseURL + endpoint
	if len(query) > 0 {
		url += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return &APIError{Message: "invalid Microsoft Graph request", Details: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return &APIError{Message: "network error while calling Microsoft Graph", Details: err.Error()}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Message: "unable to read Microsoft Graph response", Details: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("graph request failed")
		return &APIError{
			Message:    fmt.Sprintf("Microsoft Graph request failed with status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
			Details:    safeDetails(data),
		}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &APIError{Message: "unable to decode Microsoft Graph response", Details: err.Error()}
	}
	return nil
}

// requestJSON marshals body as the JSON payload of an authenticated call.
func (c *Client) requestJSON(ctx context.Context, method, endpoint string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return &APIError{Message: "unable to encode Microsoft Graph request", Details: err.Error()}
	}
	return c.request(ctx, method, endpoint, nil, bytes.NewReader(data), "application/json", out)
}

// safeDetails decodes an error payload as JSON when possible, raw text otherwise.
func safeDetails(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err == nil {
		return decoded
	}
	return string(data)
}
