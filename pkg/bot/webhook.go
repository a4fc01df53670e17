package bot

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tgflow/pkg/bus"
	"tgflow/pkg/update"
)

const (
	transportWebhook = "webhook"

	secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxWebhookBody    = 10 << 20
)

// WebhookOptions configure the webhook endpoint.
type WebhookOptions struct {
	Host string
	Port int
	Path string
	// SecretToken, when set, must match the X-Telegram-Bot-Api-Secret-Token header.
	SecretToken string
	// Fallback serves every request that is not a POST to Path. Without it
	// those requests get 403.
	Fallback http.Handler
}

// WebhookHandler returns the HTTP handler that accepts updates at opts.Path.
func (b *Bot) WebhookHandler(opts WebhookOptions) http.Handler {
	path := "/" + strings.TrimLeft(strings.TrimSpace(opts.Path), "/")

	deny := opts.Fallback
	if deny == nil {
		deny = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	}

	r := chi.NewRouter()
	r.Post(path, func(w http.ResponseWriter, req *http.Request) {
		if opts.SecretToken != "" && !secretMatches(req.Header.Get(secretTokenHeader), opts.SecretToken) {
			b.log.Warn("Rejected webhook request with invalid secret token", "remote_addr", req.RemoteAddr)
			w.WriteHeader(http.StatusForbidden)
			return
		}
		b.serveWebhook(w, req)
	})
	// The fallback may be a router of its own; it must not inherit this
	// router's match state.
	fallback := func(w http.ResponseWriter, req *http.Request) {
		deny.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, nil)))
	}
	r.NotFound(fallback)
	r.MethodNotAllowed(fallback)
	return r
}

func secretMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (b *Bot) serveWebhook(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxWebhookBody))
	if err == nil {
		var raw update.Raw
		raw, err = update.Parse(body)
		if err == nil {
			b.dispatchWebhook(w, req, raw)
			return
		}
	}

	w.WriteHeader(http.StatusUnsupportedMediaType)
	_ = b.handleError(fmt.Errorf("webhook: %w", err), nil)
}

func (b *Bot) dispatchWebhook(w http.ResponseWriter, req *http.Request, raw update.Raw) {
	sink := NewResponseSink(w)
	if err := b.Dispatch(req.Context(), raw, sink); err != nil {
		if !sink.WriteStatus(http.StatusInternalServerError) {
			b.log.Warn("Dispatch failed after the webhook response was sent", "error", err)
		}
		return
	}
	sink.WriteStatus(http.StatusOK)
}

// StartWebhook serves the webhook endpoint on opts.Host:opts.Port until ctx
// is canceled. It shares the transport lock with StartPolling.
func (b *Bot) StartWebhook(ctx context.Context, opts WebhookOptions) error {
	if err := b.acquireTransport(transportWebhook); err != nil {
		return err
	}
	defer b.releaseTransport(transportWebhook)

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	server := &http.Server{
		Addr:              addr,
		Handler:           b.WebhookHandler(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	b.log.Info("Webhook server started", "transport", transportWebhook, "address", addr, "path", opts.Path)
	b.publish(ctx, bus.Event{Type: bus.EventTransportStarted, Transport: transportWebhook})
	defer b.publish(ctx, bus.Event{Type: bus.EventTransportStopped, Transport: transportWebhook})

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start webhook server: %w", err)
	}
	return nil
}
