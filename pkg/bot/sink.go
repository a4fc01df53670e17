package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"tgflow/pkg/api"
)

// ResponseSink is the still-open HTTP response of one webhook delivery.
// It can be finished exactly once, either by a hijacked API call or by the
// webhook endpoint itself.
type ResponseSink struct {
	w http.ResponseWriter

	mu       sync.Mutex
	finished bool
	hijacked bool
}

func NewResponseSink(w http.ResponseWriter) *ResponseSink {
	return &ResponseSink{w: w}
}

// Finished reports whether a response has been written.
func (s *ResponseSink) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Hijacked reports whether an API call was answered through the response body.
func (s *ResponseSink) Hijacked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hijacked
}

// WriteStatus finishes the response with an empty body. It reports false when
// the sink was already finished.
func (s *ResponseSink) WriteStatus(code int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	s.finished = true
	s.w.WriteHeader(code)
	return true
}

func (s *ResponseSink) hijack(body []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false, nil
	}
	s.finished = true
	s.hijacked = true

	s.w.Header().Set("Content-Type", "application/json")
	s.w.WriteHeader(http.StatusOK)
	_, err := s.w.Write(body)
	return true, err
}

// hijackInvoker answers the first attachment-free call of an update through
// the webhook response and sends every other call over the network.
type hijackInvoker struct {
	sink *ResponseSink
	next api.Invoker
}

func (h hijackInvoker) Invoke(ctx context.Context, method string, params api.Params) (json.RawMessage, error) {
	if h.sink == nil || api.HasAttachment(params) || h.sink.Finished() {
		return h.next.Invoke(ctx, method, params)
	}

	body := params.Clone()
	body["method"] = method
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: encode webhook reply: %w", method, err)
	}

	written, err := h.sink.hijack(data)
	if !written {
		return h.next.Invoke(ctx, method, params)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: write webhook reply: %w", method, err)
	}
	return nil, nil
}
