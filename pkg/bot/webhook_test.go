package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tgflow/pkg/api"
	"tgflow/pkg/compose"
)

func post(t *testing.T, h http.Handler, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func countingBot(t *testing.T, client *fakeClient, opts Options) (*Bot, *int) {
	t.Helper()
	b := newTestBot(t, client, opts)
	dispatched := 0
	b.Use(func(_ *Context, next compose.Next) error {
		dispatched++
		return next()
	})
	return b, &dispatched
}

func TestWebhookRejectsUnknownPath(t *testing.T) {
	t.Parallel()

	b, dispatched := countingBot(t, &fakeClient{}, Options{})
	h := b.WebhookHandler(WebhookOptions{Path: "/hook"})

	rec := post(t, h, "/other", textUpdate)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Zero(t, *dispatched)

	req := httptest.NewRequest(http.MethodGet, "/hook", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Zero(t, *dispatched)
}

func TestWebhookUsesFallback(t *testing.T) {
	t.Parallel()

	b, dispatched := countingBot(t, &fakeClient{}, Options{})
	fallback := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := b.WebhookHandler(WebhookOptions{Path: "hook", Fallback: fallback})

	rec := post(t, h, "/elsewhere", textUpdate)
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Zero(t, *dispatched)

	rec = post(t, h, "/hook", textUpdate)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, *dispatched)
}

func TestWebhookUnparsableBody(t *testing.T) {
	t.Parallel()

	b, dispatched := countingBot(t, &fakeClient{}, Options{})
	handled := 0
	b.Catch(func(err error, c *Context) error {
		handled++
		require.Nil(t, c)
		return err
	})

	rec := post(t, b.WebhookHandler(WebhookOptions{Path: "/hook"}), "/hook", `{not json`)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	require.Equal(t, 1, handled)
	require.Zero(t, *dispatched)
}

func TestWebhookDispatchOutcomes(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	b := newTestBot(t, client, Options{})
	b.Use(func(c *Context, next compose.Next) error {
		if c.Message() != nil && c.Message().Text == "fail" {
			return errors.New("handler failed")
		}
		return next()
	})
	h := b.WebhookHandler(WebhookOptions{Path: "/hook"})

	rec := post(t, h, "/hook", textUpdate)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())

	failing := strings.Replace(textUpdate, `"hello"`, `"fail"`, 1)
	rec = post(t, h, "/hook", failing)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = post(t, h, "/hook", `{"update_id": 9, "unknown": {}}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	require.Zero(t, b.PollingState().Offset, "webhook deliveries never move the polling cursor")
}

func TestWebhookReplyHijacksFirstCall(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	b := newTestBot(t, client, Options{WebhookReply: true})
	b.Use(func(c *Context, _ compose.Next) error {
		result, err := c.Reply("first", nil)
		if err != nil {
			return err
		}
		if result != nil {
			return errors.New("hijacked call must return an empty result")
		}
		_, err = c.Reply("second", nil)
		return err
	})

	rec := post(t, b.WebhookHandler(WebhookOptions{Path: "/hook"}), "/hook", textUpdate)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "sendMessage", body["method"])
	require.Equal(t, "first", body["text"])
	require.Equal(t, float64(7), body["chat_id"])

	calls := client.calls()
	require.Len(t, calls, 1)
	require.Equal(t, "second", calls[0].params["text"])
	require.NotContains(t, calls[0].params, "method")
}

func TestWebhookReplySkipsAttachments(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	b := newTestBot(t, client, Options{WebhookReply: true})
	b.Use(func(c *Context, _ compose.Next) error {
		if _, err := c.SendPhoto(api.FileFromBytes("a.png", []byte("x")), nil); err != nil {
			return err
		}
		_, err := c.Reply("text goes inline", nil)
		return err
	})

	rec := post(t, b.WebhookHandler(WebhookOptions{Path: "/hook"}), "/hook", textUpdate)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "sendMessage", body["method"])

	calls := client.calls()
	require.Len(t, calls, 1)
	require.Equal(t, "sendPhoto", calls[0].method)
}

func TestWebhookReplyDisabledGoesOverNetwork(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	b := newTestBot(t, client, Options{})
	b.Use(func(c *Context, _ compose.Next) error {
		_, err := c.Reply("hi", nil)
		return err
	})

	rec := post(t, b.WebhookHandler(WebhookOptions{Path: "/hook"}), "/hook", textUpdate)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())
	require.Len(t, client.calls(), 1)
}

func TestWebhookSecretToken(t *testing.T) {
	t.Parallel()

	b, dispatched := countingBot(t, &fakeClient{}, Options{})
	h := b.WebhookHandler(WebhookOptions{Path: "/hook", SecretToken: "s3cret"})

	rec := post(t, h, "/hook", textUpdate)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Zero(t, *dispatched)

	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(textUpdate))
	req.Header.Set(secretTokenHeader, "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, *dispatched)
}

func TestHijackInvokerFallsThroughWhenSinkFinished(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	sink := NewResponseSink(httptest.NewRecorder())
	require.True(t, sink.WriteStatus(http.StatusOK))
	require.False(t, sink.WriteStatus(http.StatusInternalServerError))

	inv := hijackInvoker{sink: sink, next: client}
	_, err := inv.Invoke(context.Background(), "sendMessage", api.Params{"chat_id": 1})
	require.NoError(t, err)
	require.Len(t, client.calls(), 1)
	require.False(t, sink.Hijacked())
}
