package bot

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"tgflow/pkg/api"
	"tgflow/pkg/update"
)

type invocation struct {
	method string
	params api.Params
}

// fakeClient records API calls and serves scripted getUpdates batches.
type fakeClient struct {
	mu sync.Mutex

	invocations []invocation
	invokeErr   error

	fetches []int64
	batches []fetchResult
}

type fetchResult struct {
	updates []update.Raw
	err     error
}

func (f *fakeClient) Invoke(_ context.Context, method string, params api.Params) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invocations = append(f.invocations, invocation{method: method, params: params})
	if f.invokeErr != nil {
		return nil, f.invokeErr
	}
	return json.RawMessage(`true`), nil
}

func (f *fakeClient) GetUpdates(ctx context.Context, offset int64, _ int, _ int, _ []string) ([]update.Raw, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, offset)
	if len(f.batches) == 0 {
		f.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	next := f.batches[0]
	f.batches = f.batches[1:]
	f.mu.Unlock()
	return next.updates, next.err
}

func (f *fakeClient) calls() []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]invocation, len(f.invocations))
	copy(out, f.invocations)
	return out
}

func (f *fakeClient) fetchOffsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.fetches))
	copy(out, f.fetches)
	return out
}

func newTestBot(t *testing.T, client *fakeClient, opts Options) *Bot {
	t.Helper()
	b, err := New(client, opts, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return b
}

func rawUpdate(t *testing.T, doc string) update.Raw {
	t.Helper()
	raw, err := update.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return raw
}

const (
	textUpdate     = `{"update_id": 41, "message": {"message_id": 1, "date": 1, "chat": {"id": 7, "type": "private"}, "from": {"id": 3, "is_bot": false, "first_name": "U"}, "text": "hello"}}`
	callbackUpdate = `{"update_id": 50, "callback_query": {"id": "cb-1", "chat_instance": "ci", "from": {"id": 3, "is_bot": false, "first_name": "U"}, "data": "x", "message": {"message_id": 2, "date": 1, "chat": {"id": 8, "type": "private"}}}}`
	inlineUpdate   = `{"update_id": 60, "inline_query": {"id": "iq-1", "from": {"id": 3, "is_bot": false, "first_name": "U"}, "query": "cats", "offset": ""}}`
)
