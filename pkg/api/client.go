// Package api is a small client for the fleet management REST API. It only
// covers the read endpoints the map and the stream client need.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nodefleet/fleetview/pkg/nodes"
	"github.com/nodefleet/fleetview/pkg/utils"
)

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// StatusError is returned for any non-2xx response other than 404.
type StatusError struct {
	Path   string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: bad status: %s", e.Path, e.Status)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Error closing response body: %v", err)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("GET %s: %w", path, utils.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Path: path, Code: resp.StatusCode, Status: resp.Status}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// EpochMillis is a timestamp sent as milliseconds since the Unix epoch. The
// API is not consistent, so numeric strings and RFC 3339 strings are accepted
// too. Null and 0 both mean "never".
type EpochMillis int64

func (m *EpochMillis) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*m = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*m = 0
			return nil
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			*m = EpochMillis(v)
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
		*m = EpochMillis(t.UnixMilli())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("timestamp %s: %w", b, err)
	}
	*m = EpochMillis(v)
	return nil
}

// Time converts to time.Time. Zero stays the zero Time.
func (m EpochMillis) Time() time.Time {
	if m == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(m))
}

type LiteNode struct {
	Server        string      `json:"server"`
	Lat           float64     `json:"lat"`
	Lon           float64     `json:"lon"`
	IsBM          bool        `json:"isBM"`
	Type          string      `json:"type"`
	IsCheckinNode bool        `json:"isCheckinNode"`
	LastCheckinAt EpochMillis `json:"lastCheckinAt"`
}

type liteStatus struct {
	Server          string      `json:"server"`
	LastTickChanged EpochMillis `json:"lastTickChanged"`
	Tick            uint64      `json:"tick"`
}

type bobStatus struct {
	Server              string      `json:"server"`
	CurrentFetchingTick uint64      `json:"currentFetchingTick"`
	LastTickChanged     EpochMillis `json:"lastTickChanged"`
	Lat                 float64     `json:"lat"`
	Lon                 float64     `json:"lon"`
}

func (c *Client) LiteNodes(ctx context.Context) ([]LiteNode, error) {
	var out []LiteNode
	if err := c.get(ctx, "/lite-nodes", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) LiteStatuses(ctx context.Context) ([]nodes.LiteStatus, error) {
	var raw []liteStatus
	if err := c.get(ctx, "/lite-nodes/status", &raw); err != nil {
		return nil, err
	}
	out := make([]nodes.LiteStatus, 0, len(raw))
	for _, s := range raw {
		out = append(out, nodes.LiteStatus{
			Server:          s.Server,
			Tick:            s.Tick,
			LastTickChanged: s.LastTickChanged.Time(),
		})
	}
	return out, nil
}

// BobStatuses lists Bob nodes with their fetch progress. It satisfies
// stream.BobLister.
func (c *Client) BobStatuses(ctx context.Context) ([]nodes.BobStatus, error) {
	var raw []bobStatus
	if err := c.get(ctx, "/bob-nodes/status", &raw); err != nil {
		return nil, err
	}
	out := make([]nodes.BobStatus, 0, len(raw))
	for _, s := range raw {
		out = append(out, nodes.BobStatus{
			Server:              s.Server,
			CurrentFetchingTick: s.CurrentFetchingTick,
			LastTickChanged:     s.LastTickChanged.Time(),
			Lat:                 s.Lat,
			Lon:                 s.Lon,
		})
	}
	return out, nil
}
