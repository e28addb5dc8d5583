package openf1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a new OpenF1 API client rooted at baseURL.
func New(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    NewHTTPClient(10*time.Second, 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Client is a thin, uncached wrapper over the OpenF1 REST API
type Client struct {
	baseURL string
	http    *http.Client
}

type ClientOption = func(c *Client)

// WithHTTPClient replaces the retrying default client; primarily used for testing.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

type record interface {
	validate() error
}

// get fetches one endpoint and decodes its JSON array, rejecting the whole
// payload if any element misses a required field.
func get[T record](ctx context.Context, c *Client, endpoint string, params url.Values) ([]T, error) {
	u := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	logrus.WithFields(logrus.Fields{"endpoint": endpoint, "params": params.Encode()}).Debug("Requesting OpenF1")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observe(endpoint, "error", start)
		if isTimeout(err) {
			logrus.Errorf("OpenF1 %s timed out after %s", endpoint, time.Since(start))
			return nil, fmt.Errorf("%s: %w", endpoint, ErrUpstreamTimeout)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &UpstreamError{Endpoint: endpoint, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	observe(endpoint, strconv.Itoa(resp.StatusCode), start)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%s: %w", endpoint, ErrUpstreamTimeout)
		}
		return nil, &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}

	if resp.StatusCode == http.StatusNotFound && isNoResults(body) {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		logrus.Errorf("Error getting %s: %d - %s", endpoint, resp.StatusCode, string(body))
		return nil, &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var items []T
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: truncate(body), Err: fmt.Errorf("decoding payload: %w", err)}
	}
	for i, item := range items {
		if err := item.validate(); err != nil {
			return nil, &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("record %d: %w", i, err)}
		}
	}

	return items, nil
}

// OpenF1 answers an empty query with 404 {"detail": "No results found."}
func isNoResults(body []byte) bool {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(payload.Detail), "no results")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

func sessionParams(sessionKey int) url.Values {
	return url.Values{"session_key": {strconv.Itoa(sessionKey)}}
}

// Sessions lists the sessions matching (year, location, session name)
func (c *Client) Sessions(ctx context.Context, year int, location, sessionName string) ([]Session, error) {
	return get[Session](ctx, c, "sessions", url.Values{
		"year":         {strconv.Itoa(year)},
		"location":     {location},
		"session_name": {sessionName},
	})
}

// ResolveSession returns the key of the first matching session.
// found is false when upstream knows no such session yet.
func (c *Client) ResolveSession(ctx context.Context, year int, location, sessionName string) (sessionKey int, found bool, err error) {
	sessions, err := c.Sessions(ctx, year, location, sessionName)
	if err != nil {
		return 0, false, err
	}
	if len(sessions) == 0 {
		return 0, false, nil
	}
	return sessions[0].SessionKey, true, nil
}

// Drivers lists the roster of a session
func (c *Client) Drivers(ctx context.Context, sessionKey int) ([]Driver, error) {
	return get[Driver](ctx, c, "drivers", sessionParams(sessionKey))
}

// Meetings lists every meeting of a year, tests included
func (c *Client) Meetings(ctx context.Context, year int) ([]Meeting, error) {
	return get[Meeting](ctx, c, "meetings", url.Values{"year": {strconv.Itoa(year)}})
}

// GrandPrix lists the meetings of a year that are championship rounds
func (c *Client) GrandPrix(ctx context.Context, year int) ([]Meeting, error) {
	meetings, err := c.Meetings(ctx, year)
	if err != nil {
		return nil, err
	}

	events := make([]Meeting, 0, len(meetings))
	for _, m := range meetings {
		if m.IsGrandPrix() {
			events = append(events, m)
		}
	}
	return events, nil
}

// Positions lists running-order changes of a session
func (c *Client) Positions(ctx context.Context, sessionKey int) ([]Position, error) {
	return get[Position](ctx, c, "position", sessionParams(sessionKey))
}

// Intervals lists interval updates of a session, for one driver when driverNumber is non-zero
func (c *Client) Intervals(ctx context.Context, sessionKey, driverNumber int) ([]Interval, error) {
	params := sessionParams(sessionKey)
	if driverNumber != 0 {
		params.Set("driver_number", strconv.Itoa(driverNumber))
	}
	return get[Interval](ctx, c, "intervals", params)
}

// PitStops lists pit lane visits of a session
func (c *Client) PitStops(ctx context.Context, sessionKey int) ([]PitStop, error) {
	return get[PitStop](ctx, c, "pit", sessionParams(sessionKey))
}

// Stints lists tyre stints of a session
func (c *Client) Stints(ctx context.Context, sessionKey int) ([]Stint, error) {
	return get[Stint](ctx, c, "stints", sessionParams(sessionKey))
}

// Laps lists laps of a session
func (c *Client) Laps(ctx context.Context, sessionKey int) ([]Lap, error) {
	return get[Lap](ctx, c, "laps", sessionParams(sessionKey))
}
