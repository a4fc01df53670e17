package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"tgflow/pkg/api"
	"tgflow/pkg/bot"
	"tgflow/pkg/compose"
	"tgflow/pkg/update"
)

type recordingClient struct {
	mu      sync.Mutex
	methods []string
	params  []api.Params
}

func (c *recordingClient) Invoke(_ context.Context, method string, params api.Params) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods = append(c.methods, method)
	c.params = append(c.params, params)
	return json.RawMessage(`true`), nil
}

func (c *recordingClient) GetUpdates(context.Context, int64, int, int, []string) ([]update.Raw, error) {
	return nil, nil
}

func (c *recordingClient) count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.methods {
		if m == method {
			n++
		}
	}
	return n
}

const fromUpdate = `{"update_id": 5, "message": {"message_id": 1, "date": 1, "chat": {"id": 9, "type": "private"}, "from": {"id": 123, "is_bot": false, "first_name": "A"}, "text": "hello"}}`

func newBot(t *testing.T, client *recordingClient, handlers ...bot.Handler) *bot.Bot {
	t.Helper()
	b, err := bot.New(client, bot.Options{}, nil)
	if err != nil {
		t.Fatalf("bot.New error: %v", err)
	}
	b.Use(handlers...)
	return b
}

func TestAllowFromSet(t *testing.T) {
	allowed := allowFromSet([]string{" 123 ", "", "456", "123"})
	if len(allowed) != 2 {
		t.Fatalf("allowFromSet len = %d, want 2", len(allowed))
	}
	if _, ok := allowed["123"]; !ok {
		t.Fatal("allowFromSet missing 123")
	}
	if allowFromSet([]string{" ", ""}) != nil {
		t.Fatal("expected nil set for blank entries")
	}
}

func TestAllowFrom(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		want    bool
	}{
		{name: "listed sender", allowed: []string{"123"}, want: true},
		{name: "unlisted sender", allowed: []string{"456"}, want: false},
		{name: "empty list", allowed: nil, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			b := newBot(t, &recordingClient{}, AllowFrom(tt.allowed), func(_ *bot.Context, next compose.Next) error {
				reached = true
				return next()
			})

			if err := b.Handle(context.Background(), []byte(fromUpdate)); err != nil {
				t.Fatalf("Handle error: %v", err)
			}
			if reached != tt.want {
				t.Fatalf("handler reached = %v, want %v", reached, tt.want)
			}
		})
	}
}

func TestTypingSendsChatAction(t *testing.T) {
	client := &recordingClient{}
	b := newBot(t, client, Typing(10*time.Millisecond), func(_ *bot.Context, next compose.Next) error {
		deadline := time.Now().Add(time.Second)
		for client.count("sendChatAction") < 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		return next()
	})

	if err := b.Handle(context.Background(), []byte(fromUpdate)); err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if got := client.count("sendChatAction"); got < 2 {
		t.Fatalf("sendChatAction calls = %d, want refreshes", got)
	}

	client.mu.Lock()
	first := client.params[0]
	client.mu.Unlock()
	if first["chat_id"] != int64(9) || first["action"] != "typing" {
		t.Fatalf("first chat action params = %v", first)
	}
}

func TestTypingSkipsUpdatesWithoutChat(t *testing.T) {
	client := &recordingClient{}
	b := newBot(t, client, Typing(0))

	if err := b.Handle(context.Background(), []byte(`{"update_id": 6, "poll": {"id": "p"}}`)); err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if got := client.count("sendChatAction"); got != 0 {
		t.Fatalf("sendChatAction calls = %d, want 0", got)
	}
}

func TestPreviewText(t *testing.T) {
	short := " hello "
	if got := previewText(short); got != "hello" {
		t.Fatalf("previewText short = %q, want %q", got, "hello")
	}

	long := strings.Repeat("a", messagePreviewLimit+20)
	got := previewText(long)
	if len(got) != messagePreviewLimit+3 {
		t.Fatalf("previewText long len = %d, want %d", len(got), messagePreviewLimit+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("previewText long = %q, want ellipsis suffix", got)
	}
}

func TestPreviewTextKeepsRunesWhole(t *testing.T) {
	// Two-byte runes with a one-byte prefix put a rune across the byte limit.
	long := "a" + strings.Repeat("é", messagePreviewLimit)
	got := previewText(long)
	if !utf8.ValidString(got) {
		t.Fatalf("previewText produced invalid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("previewText = %q, want ellipsis suffix", got)
	}
	if body := strings.TrimSuffix(got, "..."); len(body) > messagePreviewLimit {
		t.Fatalf("preview body len = %d, want <= %d", len(body), messagePreviewLimit)
	}
}

func TestLoggerPassesErrorsThrough(t *testing.T) {
	b := newBot(t, &recordingClient{}, Logger(), func(*bot.Context, compose.Next) error {
		return errBoom
	})
	b.Catch(func(err error, _ *bot.Context) error { return err })

	if err := b.Handle(context.Background(), []byte(fromUpdate)); !errors.Is(err, errBoom) {
		t.Fatalf("Handle error = %v, want %v", err, errBoom)
	}
}

var errBoom = errors.New("boom")
