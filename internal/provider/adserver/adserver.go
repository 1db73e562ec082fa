// Package adserver is a Provider backed by an OpenRTB-style ad server. Load
// posts a bid request to /ad; Show fires the impression pixel and simulates
// the full-screen display for the configured duration.
package adserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickwarner/adshell/internal/models"
	"github.com/patrickwarner/adshell/internal/provider"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

var (
	// ErrNoFill is reported when the server returns no bid.
	ErrNoFill = errors.New("ad server returned no fill")
	// ErrAlreadyRequested is returned when Load or Show runs twice on one
	// instance.
	ErrAlreadyRequested = errors.New("ad instance already requested")
)

// Config describes the ad server connection.
type Config struct {
	BaseURL     string
	APIKey      string
	PublisherID int
	UserID      string
	Timeout     time.Duration
	// DisplayTime is how long a shown ad stays open before it closes.
	DisplayTime time.Duration
	// Reward is granted when a rewarded ad runs to completion.
	Reward models.Reward
}

// Provider creates ad instances that load from the ad server.
type Provider struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

var _ provider.Provider = (*Provider)(nil)

// New returns a Provider for cfg.
func New(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// CreateForAdRequest implements provider.Provider.
func (p *Provider) CreateForAdRequest(unit models.AdUnit) (provider.Instance, error) {
	if unit.UnitID == "" {
		return nil, fmt.Errorf("create ad request: empty unit id for %s", unit.Kind)
	}
	return &instance{id: uuid.NewString(), unit: unit, p: p}, nil
}

// HealthCheck checks that the ad server answers /health.
func (p *Provider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request: %w", err)
	}
	defer p.closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

// requestBid posts a bid request for unit and returns the winning bid.
func (p *Provider) requestBid(ctx context.Context, unit models.AdUnit) (Bid, error) {
	body := BidRequest{
		ID:   uuid.NewString(),
		Imp:  []Impression{{ID: "1", TagID: unit.UnitID}},
		User: User{ID: p.cfg.UserID},
		Ext: RequestExt{
			PublisherID: p.cfg.PublisherID,
			KV:          map[string]string{"ad_kind": string(unit.Kind)},
		},
	}
	if unit.Surface != "" {
		body.Ext.KV["surface"] = unit.Surface
	}
	blob, err := json.Marshal(body)
	if err != nil {
		return Bid{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/ad", bytes.NewReader(blob))
	if err != nil {
		return Bid{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Bid{}, fmt.Errorf("http request: %w", err)
	}
	defer p.closeBody(resp)

	if resp.StatusCode == http.StatusNoContent {
		return Bid{}, ErrNoFill
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Bid{}, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out BidResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Bid{}, fmt.Errorf("decode response: %w", err)
	}
	bid, ok := out.first()
	if !ok {
		return Bid{}, fmt.Errorf("%w (nbr=%d)", ErrNoFill, out.Nbr)
	}
	return bid, nil
}

// trackImpression fires the impression pixel. Failures are logged only: the
// ad is already on screen.
func (p *Provider) trackImpression(ctx context.Context, bid Bid) {
	if bid.ImpURL == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bid.ImpURL, nil)
	if err != nil {
		p.logger.Warn("impression request", zap.String("bid_id", bid.ID), zap.Error(err))
		return
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("impression request", zap.String("bid_id", bid.ID), zap.Error(err))
		return
	}
	defer p.closeBody(resp)
	if resp.StatusCode >= 300 {
		p.logger.Warn("impression rejected", zap.String("bid_id", bid.ID), zap.Int("status", resp.StatusCode))
	}
}

func (p *Provider) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		p.logger.Warn("failed to close response body", zap.Error(err))
	}
}

type state int

const (
	stateIdle state = iota
	stateLoading
	stateLoaded
	stateShown
)

// instance is a single ad request. Events are emitted from background
// goroutines.
type instance struct {
	provider.Emitter
	id   string
	unit models.AdUnit
	p    *Provider

	mu    sync.Mutex
	state state
	bid   Bid
}

func (i *instance) ID() string          { return i.id }
func (i *instance) Unit() models.AdUnit { return i.unit }

// Load starts the bid request. The outcome arrives as EventLoaded or
// EventError.
func (i *instance) Load() error {
	i.mu.Lock()
	if i.state != stateIdle {
		i.mu.Unlock()
		return ErrAlreadyRequested
	}
	i.state = stateLoading
	i.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), i.p.cfg.Timeout)
		defer cancel()
		bid, err := i.p.requestBid(ctx, i.unit)

		i.mu.Lock()
		if err != nil {
			i.state = stateIdle
		} else {
			i.state = stateLoaded
			i.bid = bid
		}
		i.mu.Unlock()

		if err != nil {
			i.p.logger.Debug("ad request failed", zap.String("unit_id", i.unit.UnitID), zap.Error(err))
			i.Emit(provider.Event{Type: provider.EventError, Err: err})
			return
		}
		i.p.logger.Debug("ad loaded", zap.String("unit_id", i.unit.UnitID), zap.String("creative_id", bid.CrID), zap.Float64("price", bid.Price))
		i.Emit(provider.Event{Type: provider.EventLoaded})
	}()
	return nil
}

// Show displays a loaded ad. It emits EventOpened, EventEarnedReward for
// rewarded units that run to completion, then EventClosed.
func (i *instance) Show() error {
	i.mu.Lock()
	switch i.state {
	case stateShown:
		i.mu.Unlock()
		return ErrAlreadyRequested
	case stateLoaded:
	default:
		i.mu.Unlock()
		return provider.ErrNotLoaded
	}
	i.state = stateShown
	bid := i.bid
	i.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), i.p.cfg.Timeout)
		i.p.trackImpression(ctx, bid)
		cancel()

		i.Emit(provider.Event{Type: provider.EventOpened})
		time.Sleep(i.p.cfg.DisplayTime)
		if i.unit.Kind == models.AdKindRewarded {
			r := i.p.cfg.Reward
			i.Emit(provider.Event{Type: provider.EventEarnedReward, Reward: &r})
		}
		i.Emit(provider.Event{Type: provider.EventClosed})
	}()
	return nil
}
