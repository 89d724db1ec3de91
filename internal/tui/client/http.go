package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient makes REST calls to the mixer daemon.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8080").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Sessions fetches /api/sessions.
func (c *HTTPClient) Sessions() ([]Session, error) {
	var out []Session
	if err := c.get("/api/sessions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetVolume sends POST /api/sessions/volume.
func (c *HTTPClient) SetVolume(pid uint32, uid string, level float32) error {
	body := map[string]any{"pid": pid, "uid": uid, "volume": level}
	return c.post("/api/sessions/volume", body)
}

// SetMute sends POST /api/sessions/mute.
func (c *HTTPClient) SetMute(pid uint32, uid string, mute bool) error {
	body := map[string]any{"pid": pid, "uid": uid, "mute": mute}
	return c.post("/api/sessions/mute", body)
}

// Shutdown asks the daemon to exit.
func (c *HTTPClient) Shutdown() error {
	return c.post("/api/shutdown", struct{}{})
}

func (c *HTTPClient) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(http.MethodGet, path, resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) post(path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(http.MethodPost, path, resp)
	}
	return nil
}

// statusError prefers the daemon's {"error": ...} body over the raw text.
func statusError(method, path string, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
	}
	return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, string(body))
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
