package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogEntry is one line of JSON output. Attributes that identify the
// component and the update being dispatched get their own columns; the rest
// go to Fields.
type LogEntry struct {
	Level      string         `json:"level"`
	Timestamp  string         `json:"timestamp"`
	Component  string         `json:"component,omitempty"`
	DispatchID string         `json:"dispatch_id,omitempty"`
	UpdateID   int64          `json:"update_id,omitempty"`
	UpdateType string         `json:"update_type,omitempty"`
	Message    string         `json:"message"`
	Fields     map[string]any `json:"fields,omitempty"`
	Caller     string         `json:"caller,omitempty"`
}

// lift moves a top-level attribute into its column. It reports false when
// the attribute stays in Fields.
func (e *LogEntry) lift(key string, value slog.Value) bool {
	switch key {
	case "component":
		return setString(&e.Component, value)
	case "dispatch_id":
		return setString(&e.DispatchID, value)
	case "update_type":
		return setString(&e.UpdateType, value)
	case "update_id":
		if value.Kind() != slog.KindInt64 {
			return false
		}
		e.UpdateID = value.Int64()
		return true
	}
	return false
}

func setString(dst *string, value slog.Value) bool {
	if value.Kind() != slog.KindString {
		return false
	}
	*dst = value.String()
	return true
}

type entryHandler struct {
	level     slog.Level
	addSource bool
	writer    io.Writer
	mu        *sync.Mutex

	attrs  []slog.Attr
	groups []string
}

func newEntryHandler(writer io.Writer, level slog.Level, addSource bool) *entryHandler {
	return &entryHandler{level: level, addSource: addSource, writer: writer, mu: &sync.Mutex{}}
}

func (h *entryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *entryHandler) Handle(_ context.Context, record slog.Record) error {
	at := record.Time
	if at.IsZero() {
		at = time.Now()
	}
	entry := LogEntry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Message:   record.Message,
	}

	fields := make(map[string]any)
	add := func(attr slog.Attr) bool {
		attr.Value = attr.Value.Resolve()
		if attr.Equal(slog.Attr{}) {
			return true
		}
		if len(h.groups) == 0 && entry.lift(attr.Key, attr.Value) {
			return true
		}
		fields[h.qualify(attr.Key)] = attrValue(attr.Value)
		return true
	}
	for _, attr := range h.attrs {
		add(attr)
	}
	record.Attrs(add)

	if len(fields) > 0 {
		entry.Fields = fields
	}
	if h.addSource {
		entry.Caller = caller(record.PC)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(append(line, '\n'))
	return err
}

func (h *entryHandler) qualify(key string) string {
	if len(h.groups) == 0 {
		return key
	}
	return strings.Join(h.groups, ".") + "." + key
}

func (h *entryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *entryHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

func caller(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}

func attrValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := value.Group()
		result := make(map[string]any, len(group))
		for _, item := range group {
			result[item.Key] = attrValue(item.Value.Resolve())
		}
		return result
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return err.Error()
		}
		return value.Any()
	default:
		return value.Any()
	}
}
