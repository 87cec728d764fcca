package tracker

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"telemetry-tracker/internal/logger"
	"telemetry-tracker/internal/system"
)

type Event string

const (
	EventActivated   Event = "activated"
	EventDeactivated Event = "deactivated"
	EventWeeklyPing  Event = "weekly_ping"
)

const DefaultTimeout = 5 * time.Second

type Ping struct {
	SiteHash     string `json:"site_hash"`
	Plugin       string `json:"plugin"`
	Version      string `json:"version"`
	WPVersion    string `json:"wp_version"`
	PHPVersion   string `json:"php_version"`
	MySQLVersion string `json:"mysql_version"`
	Event        Event  `json:"event"`
}

type SenderConfig struct {
	CollectorURL  string
	PluginSlug    string
	PluginVersion string
	SiteURL       string
	Timeout       time.Duration
}

type Sender struct {
	cfg    SenderConfig
	env    system.Provider
	client *http.Client
	wg     sync.WaitGroup
}

func NewSender(cfg SenderConfig, env system.Provider) *Sender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Sender{
		cfg:    cfg,
		env:    env,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// SiteHash anonymizes a site origin. Trailing slashes and surrounding
// whitespace do not change the hash.
func SiteHash(siteURL string) string {
	origin := strings.TrimRight(strings.TrimSpace(siteURL), "/")
	sum := md5.Sum([]byte(origin))
	return hex.EncodeToString(sum[:])
}

func (s *Sender) Payload(event Event) Ping {
	return Ping{
		SiteHash:     SiteHash(s.cfg.SiteURL),
		Plugin:       s.cfg.PluginSlug,
		Version:      s.cfg.PluginVersion,
		WPVersion:    s.env.PlatformVersion(),
		PHPVersion:   s.env.RuntimeVersion(),
		MySQLVersion: s.env.StorageEngineVersion(),
		Event:        event,
	}
}

// SendPing delivers event in the background. It never blocks on the network
// and never reports failures to the caller.
func (s *Sender) SendPing(event Event) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("telemetry %s panicked: %v", event, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()

		if err := s.Deliver(ctx, event); err != nil {
			logger.Warn("telemetry %s not delivered: %v", event, err)
			return
		}
		logger.Ping(string(event), "delivered to "+s.cfg.CollectorURL)
	}()
}

// Deliver posts one ping and waits for the collector to answer. The response
// status is not inspected.
func (s *Sender) Deliver(ctx context.Context, event Event) error {
	body, err := json.Marshal(s.Payload(event))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.CollectorURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach collector: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Wait blocks until in-flight pings finish or timeout elapses and reports
// whether everything finished.
func (s *Sender) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
