package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/protocol"
)

// ReturnPath is the master endpoint accepting loads.
const ReturnPath = "/v1/return"

// BrokerChannel posts loads to the master over HTTP.
type BrokerChannel struct {
	endpoint string
	client   *http.Client
}

// NewBroker builds a broker channel for the master at m.Address.
func NewBroker(m config.MasterConfig) (*BrokerChannel, error) {
	addr := strings.TrimRight(strings.TrimSpace(m.Address), "/")
	if addr == "" {
		return nil, fmt.Errorf("master address is empty")
	}
	u, err := url.Parse(addr)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid master address %q", m.Address)
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BrokerChannel{
		endpoint: addr + ReturnPath,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Endpoint returns the URL loads are posted to.
func (b *BrokerChannel) Endpoint() string { return b.endpoint }

// Send posts l and expects a 2xx answer.
func (b *BrokerChannel) Send(ctx context.Context, l *protocol.Load) error {
	var body bytes.Buffer
	if err := protocol.EncodeLoad(&body, l); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, &body)
	if err != nil {
		return fmt.Errorf("build return request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("post return: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("master answered %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
