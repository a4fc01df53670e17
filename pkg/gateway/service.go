package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mymmrac/telego"
	"golang.org/x/sync/errgroup"

	"tgflow/pkg/api"
	"tgflow/pkg/bot"
	"tgflow/pkg/bus"
	"tgflow/pkg/config"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790

	// A poll failure newer than this and newer than the last dispatch marks
	// the gateway not ready.
	pollErrorWindow = time.Minute
)

// Registrar is the part of the Bot API the gateway needs around a transport.
type Registrar interface {
	GetMe(ctx context.Context) (*telego.User, error)
	SetWebhook(ctx context.Context, url string, opts api.WebhookParams) error
	DeleteWebhook(ctx context.Context, dropPending bool) error
}

// Service runs the configured transport for a Bot next to the status
// endpoints /healthz and /readyz.
type Service struct {
	cfg    *config.Config
	log    *slog.Logger
	bot    *bot.Bot
	api    Registrar
	events *bus.Bus

	mu             sync.RWMutex
	startedAt      time.Time
	botUsername    string
	transport      transportState
	lastDispatchAt time.Time
	lastFailure    string
	lastPollErrAt  time.Time
	lastPollErr    string
	dispatched     int64
	failed         int64
}

type transportState struct {
	Name    string `json:"name,omitempty"`
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status         string         `json:"status"`
	UptimeSeconds  int64          `json:"uptime_seconds"`
	Bot            string         `json:"bot,omitempty"`
	Transport      transportState `json:"transport"`
	Dispatched     int64          `json:"dispatched"`
	Failed         int64          `json:"failed"`
	LastDispatchAt string         `json:"last_dispatch_at,omitempty"`
	LastFailure    string         `json:"last_failure,omitempty"`
	LastPollError  string         `json:"last_poll_error,omitempty"`
}

// NewService wires a gateway around b. events must be the bus b publishes to.
func NewService(cfg *config.Config, b *bot.Bot, registrar Registrar, events *bus.Bus, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if b == nil {
		return nil, errors.New("bot is required")
	}
	if registrar == nil {
		return nil, errors.New("bot API client is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		cfg:    cfg,
		log:    log.With("component", "gateway.service"),
		bot:    b,
		api:    registrar,
		events: events,
	}, nil
}

// Run verifies the token, starts the transport, and blocks until ctx is
// canceled or the transport fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	me, err := s.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("verify bot token: %w", err)
	}
	s.mu.Lock()
	s.botUsername = me.Username
	s.mu.Unlock()
	s.log.Info("Bot identity verified", "username", me.Username, "id", me.ID)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	if s.events != nil {
		events, unsubscribe := s.events.Subscribe(runCtx, 0)
		defer unsubscribe()
		g.Go(func() error {
			for event := range events {
				s.record(event)
			}
			return nil
		})
	}

	switch s.cfg.Transport.Mode {
	case config.ModeWebhook:
		if err := s.registerWebhook(ctx); err != nil {
			return err
		}
		g.Go(func() error {
			defer cancel()
			return s.runTransport(config.ModeWebhook, func() error {
				return s.bot.StartWebhook(runCtx, s.webhookOptions())
			})
		})
	default:
		// getUpdates is refused while a webhook is set.
		if err := s.api.DeleteWebhook(ctx, false); err != nil {
			return fmt.Errorf("delete webhook before polling: %w", err)
		}
		g.Go(func() error {
			defer cancel()
			return s.runStatusServer(runCtx)
		})
		g.Go(func() error {
			defer cancel()
			return s.runTransport(config.ModePolling, func() error {
				return s.bot.StartPolling(runCtx, s.pollingOptions())
			})
		})
	}

	return g.Wait()
}

func (s *Service) runTransport(name string, run func() error) error {
	s.setTransport(transportState{Name: name, Running: true})
	err := run()
	s.setTransport(transportState{Name: name, Error: errorString(err)})
	if err != nil {
		return fmt.Errorf("run %s transport: %w", name, err)
	}
	return nil
}

func (s *Service) registerWebhook(ctx context.Context) error {
	webhook := s.cfg.Transport.Webhook
	if webhook.PublicURL == "" {
		s.log.Info("No public URL configured, leaving webhook registration unchanged")
		return nil
	}

	url := strings.TrimRight(webhook.PublicURL, "/") + webhook.Path
	allowed := webhook.AllowedUpdates
	if len(allowed) == 0 {
		allowed = bot.DefaultAllowedUpdates()
	}
	err := s.api.SetWebhook(ctx, url, api.WebhookParams{
		SecretToken:        webhook.SecretToken,
		AllowedUpdates:     allowed,
		DropPendingUpdates: webhook.DropPendingUpdates,
	})
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	s.log.Info("Webhook registered", "path", webhook.Path)
	return nil
}

func (s *Service) pollingOptions() bot.PollingOptions {
	polling := s.cfg.Transport.Polling
	return bot.PollingOptions{
		Timeout:        polling.TimeoutSeconds,
		Limit:          polling.Limit,
		AllowedUpdates: polling.AllowedUpdates,
		FetchBackoff:   time.Duration(polling.FetchBackoffSeconds) * time.Second,
	}
}

func (s *Service) webhookOptions() bot.WebhookOptions {
	webhook := s.cfg.Transport.Webhook
	return bot.WebhookOptions{
		Host:        webhook.Host,
		Port:        webhook.Port,
		Path:        webhook.Path,
		SecretToken: webhook.SecretToken,
		Fallback:    s.StatusHandler(),
	}
}

// StatusHandler serves /healthz and /readyz. In webhook mode it is mounted
// as the webhook fallback instead of running on its own port.
func (s *Service) StatusHandler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	return r
}

func (s *Service) runStatusServer(ctx context.Context) error {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	server := &http.Server{
		Addr:              addr,
		Handler:           s.StatusHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start status server: %w", err)
	}
	return nil
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady(time.Now().UTC()) {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	lastDispatch := ""
	if !s.lastDispatchAt.IsZero() {
		lastDispatch = s.lastDispatchAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:         status,
		UptimeSeconds:  uptime,
		Bot:            s.botUsername,
		Transport:      s.transport,
		Dispatched:     s.dispatched,
		Failed:         s.failed,
		LastDispatchAt: lastDispatch,
		LastFailure:    s.lastFailure,
		LastPollError:  s.lastPollErr,
	}
}

func (s *Service) isReady(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.transport.Running {
		return false
	}

	if s.botUsername == "" {
		return false
	}

	if !s.lastPollErrAt.IsZero() && s.lastPollErrAt.After(s.lastDispatchAt) && now.Sub(s.lastPollErrAt) < pollErrorWindow {
		return false
	}

	return true
}

func (s *Service) record(event bus.Event) {
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case bus.EventUpdateDispatched:
		s.dispatched++
		s.lastDispatchAt = at
	case bus.EventUpdateFailed:
		s.failed++
		s.lastFailure = event.Error
	case bus.EventPollFailed:
		s.lastPollErrAt = at
		s.lastPollErr = event.Error
	}
}

func (s *Service) setTransport(state transportState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
