package input_bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 200 * time.Millisecond

type clientImpl struct {
	apiHost    string
	httpClient *http.Client
}

type Config struct {
	ApiHost string
	// Timeout bounds one request; a slow bridge must not stall the audio loop.
	Timeout time.Duration
}

func NewClient(cfg *Config) (InputBridgeAPI, error) {
	if cfg == nil {
		return nil, errors.New("missing parameter: cfg")
	}

	if cfg.ApiHost == "" {
		return nil, errors.New("missing parameter: cfg.ApiHost")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &clientImpl{
		apiHost:    strings.TrimRight(cfg.ApiHost, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (client *clientImpl) SendEvent(ctx context.Context, line, action string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.apiHost+"/input", nil)
	if err != nil {
		return err
	}

	q := req.URL.Query()
	q.Add("line", line)
	q.Add("action", action)
	req.URL.RawQuery = q.Encode()

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("input bridge returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}
