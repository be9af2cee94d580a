package lcu

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is the REST verb surface over a Connection (spec.md §4.3, C3 API
// Client): GET/PUT with one-shot retry on connection loss. Grounded
// on original_source/lcu/core/lcu_api.py's LCUAPI class.
type Client struct {
	conn *Connection
}

// NewClient wraps a Connection with the GET/PUT policy.
func NewClient(conn *Connection) *Client { return &Client{conn: conn} }

// Response carries the decoded body (if any) and the HTTP status, so
// mutating-verb callers can check 2xx per spec.md §4.3.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// Get performs a GET. 404/405 and any absence condition return (nil, nil)
// — absence, not error (spec.md §4.3, §7 "Resource-absent").
func (c *Client) Get(ctx context.Context, path string, timeout time.Duration) (json.RawMessage, error) {
	if !c.ensureConnected() {
		return nil, nil
	}

	body, status, err := c.doOnce(ctx, http.MethodGet, path, nil, timeout)
	if err == nil {
		return absentOr404(body, status)
	}

	// Transport exception: force-refresh, retry exactly once (spec.md §4.3).
	c.conn.RefreshIfNeeded(true)
	if !c.conn.OK() {
		return nil, nil
	}
	body, status, err = c.doOnce(ctx, http.MethodGet, path, nil, timeout)
	if err != nil {
		return nil, err
	}
	return absentOr404(body, status)
}

func absentOr404(body []byte, status int) (json.RawMessage, error) {
	if status == http.StatusNotFound || status == 405 {
		return nil, nil
	}
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		log.Printf("[lcu] invalid JSON body, treating as absent")
		return nil, nil
	}
	return json.RawMessage(body), nil
}

// GameflowPhase polls /lol-gameflow/v1/gameflow-phase, the 1Hz fallback
// path used by the Phase Tracker (C5) when the event stream is silent
// (spec.md §4.5). The endpoint's body is a bare JSON string.
func (c *Client) GameflowPhase(ctx context.Context) (string, error) {
	raw, err := c.Get(ctx, "/lol-gameflow/v1/gameflow-phase", 2*time.Second)
	if err != nil || raw == nil {
		return "", err
	}
	var phase string
	if err := json.Unmarshal(raw, &phase); err != nil {
		return "", nil
	}
	return phase, nil
}

// ChampSelectSession fetches /lol-champ-select/v1/session and decodes it,
// used by the Commit Controller's FINALIZATION value-not-ready probe
// (spec.md §4.8, grounded on timer_manager.py's maybe_start_timer probe).
func (c *Client) ChampSelectSession(ctx context.Context) (*ChampSelectSession, error) {
	raw, err := c.Get(ctx, "/lol-champ-select/v1/session", 2*time.Second)
	if err != nil || raw == nil {
		return nil, err
	}
	var session ChampSelectSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, nil
	}
	return &session, nil
}

// MySelection fetches /lol-champ-select/v1/session/my-selection, the
// chroma-panel confirmed skin selection that is tier (a) of the Commit
// Controller's priority order (spec.md §4.8, §6). Grounded on
// original_source/lcu/features/lcu_properties.py's my_selection property.
func (c *Client) MySelection(ctx context.Context) (int, error) {
	raw, err := c.Get(ctx, "/lol-champ-select/v1/session/my-selection", 2*time.Second)
	if err != nil || raw == nil {
		return 0, err
	}
	var sel struct {
		SelectedSkinID int `json:"selectedSkinId"`
	}
	if err := json.Unmarshal(raw, &sel); err != nil {
		return 0, nil
	}
	return sel.SelectedSkinID, nil
}

// OwnedSkinIDs enumerates the local account's owned skin ids via
// /lol-inventory/v2/inventory/CHAMPION_SKIN, the OwnedSkinSet source named
// in spec.md §3/§6. Base skins aren't present in the inventory response;
// callers still treat championId*1000 as always-owned (spec.md §4.6 step
// 4, §4.7).
func (c *Client) OwnedSkinIDs(ctx context.Context) ([]int, error) {
	raw, err := c.Get(ctx, "/lol-inventory/v2/inventory/CHAMPION_SKIN", 5*time.Second)
	if err != nil || raw == nil {
		return nil, err
	}

	var items []struct {
		ItemID int `json:"itemId"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil
	}

	ids := make([]int, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ItemID)
	}
	return ids, nil
}

// Put performs a PUT with a JSON body, same retry policy as Get.
func (c *Client) Put(ctx context.Context, path string, payload interface{}, timeout time.Duration) (*Response, error) {
	return c.mutate(ctx, http.MethodPut, path, payload, timeout)
}

func (c *Client) mutate(ctx context.Context, method, path string, payload interface{}, timeout time.Duration) (*Response, error) {
	if !c.ensureConnected() {
		return nil, nil
	}

	var buf []byte
	var err error
	if payload != nil {
		buf, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	body, status, err := c.doOnce(ctx, method, path, buf, timeout)
	if err == nil {
		return &Response{StatusCode: status, Body: body}, nil
	}

	c.conn.RefreshIfNeeded(true)
	if !c.conn.OK() {
		return nil, nil
	}
	body, status, err = c.doOnce(ctx, method, path, buf, timeout)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: status, Body: body}, nil
}

func (c *Client) ensureConnected() bool {
	if c.conn.OK() {
		return true
	}
	c.conn.RefreshIfNeeded(false)
	return c.conn.OK()
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, timeout time.Duration) ([]byte, int, error) {
	snap, ok := c.conn.snapshot()
	if !ok {
		return nil, 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, snap.base+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", c.conn.AuthHeader())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := snap.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return out, resp.StatusCode, nil
}
