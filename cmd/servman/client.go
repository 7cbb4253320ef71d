package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/servman/servman"
	"github.com/servman/servman/internal/config"
	"github.com/servman/servman/internal/portprobe"
)

// APIClient talks to a running servman daemon.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://localhost:9090/api"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// IsReachable reports whether the daemon answers on its status route.
func (c *APIClient) IsReachable() bool {
	resp, err := c.client.Get(c.baseURL + "/server/status")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (c *APIClient) StartServer(port *int) (servman.Status, error) {
	return c.postLifecycle("/server/start", port)
}

func (c *APIClient) StopServer() (servman.Status, error) {
	return c.postLifecycle("/server/stop", nil)
}

func (c *APIClient) RestartServer(port *int) (servman.Status, error) {
	return c.postLifecycle("/server/restart", port)
}

func (c *APIClient) postLifecycle(path string, port *int) (servman.Status, error) {
	var body io.Reader
	if port != nil {
		b, err := json.Marshal(map[string]int{"port": *port})
		if err != nil {
			return servman.Status{}, err
		}
		body = bytes.NewReader(b)
	}
	resp, err := c.client.Post(c.baseURL+path, "application/json", body)
	if err != nil {
		return servman.Status{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	var st servman.Status
	if err := decodeResp(resp, &st); err != nil {
		return servman.Status{}, err
	}
	return st, nil
}

func (c *APIClient) GetStatus() (servman.Status, error) {
	var st servman.Status
	err := c.get("/server/status", &st)
	return st, err
}

func (c *APIClient) GetConfig() (config.Config, error) {
	var cfg config.Config
	err := c.get("/server/config", &cfg)
	return cfg, err
}

func (c *APIClient) SetConfig(cfg config.Config) (config.Config, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return config.Config{}, err
	}
	req, err := http.NewRequest(http.MethodPut, c.baseURL+"/server/config", bytes.NewReader(b))
	if err != nil {
		return config.Config{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return config.Config{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	var saved config.Config
	if err := decodeResp(resp, &saved); err != nil {
		return config.Config{}, err
	}
	return saved, nil
}

type portResult struct {
	Port      int                  `json:"port"`
	Listeners []portprobe.Listener `json:"listeners,omitempty"`
	Evicted   []portprobe.Listener `json:"evicted,omitempty"`
}

func (c *APIClient) CheckPort(port int) (portResult, error) {
	var out portResult
	err := c.get("/ports/"+strconv.Itoa(port), &out)
	return out, err
}

func (c *APIClient) EvictPort(port int) (portResult, error) {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/ports/"+strconv.Itoa(port), nil)
	if err != nil {
		return portResult{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return portResult{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	var out portResult
	if err := decodeResp(resp, &out); err != nil {
		return portResult{}, err
	}
	return out, nil
}

func (c *APIClient) GetEnv() (string, error) {
	resp, err := c.client.Get(c.baseURL + "/server/env")
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp.StatusCode, b)
	}
	return string(b), nil
}

func (c *APIClient) SetEnv(content string) error {
	req, err := http.NewRequest(http.MethodPut, c.baseURL+"/server/env", bytes.NewReader([]byte(content)))
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResp(resp, &map[string]string{})
}

func (c *APIClient) get(path string, out any) error {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResp(resp, out)
}

// decodeResp unmarshals a 200 body into out and turns any other status
// into an error carrying the daemon's message.
func decodeResp(resp *http.Response, out any) error {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return apiError(resp.StatusCode, b)
	}
	return json.Unmarshal(b, out)
}

func apiError(status int, body []byte) error {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return fmt.Errorf("API error: %s", e.Error)
	}
	return fmt.Errorf("API error: status %d", status)
}
