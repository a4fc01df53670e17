package update

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
)

// ErrUndefinedType is returned when an update carries none of the known kinds.
var ErrUndefinedType = errors.New("undefined update type")

// UndefinedTypeError reports the keys an unrecognized update did carry.
type UndefinedTypeError struct {
	Keys []string
}

func (e *UndefinedTypeError) Error() string {
	if e == nil || len(e.Keys) == 0 {
		return ErrUndefinedType.Error()
	}
	return fmt.Sprintf("%s (keys: %v)", ErrUndefinedType, e.Keys)
}

func (e *UndefinedTypeError) Is(target error) bool {
	return target == ErrUndefinedType
}

// Raw is one inbound update document as received from either transport.
type Raw map[string]json.RawMessage

// Parse decodes one update document.
func Parse(data []byte) (Raw, error) {
	var raw Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	if raw == nil {
		return nil, errors.New("decode update: document is null")
	}
	return raw, nil
}

// ID returns the update_id sequence number.
func (r Raw) ID() (int64, error) {
	value, ok := r["update_id"]
	if !ok {
		return 0, errors.New("update_id is missing")
	}
	id, err := strconv.ParseInt(string(bytes.TrimSpace(value)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("update_id is not an integer: %w", err)
	}
	return id, nil
}

// Normalized is the typed envelope produced for one update.
type Normalized struct {
	ID      int64
	Type    Type
	SubType SubType
	Payload json.RawMessage
}

// Normalize classifies raw into its kind, subtype and payload.
//
// Both scans keep the last match in catalogue order rather than stopping at
// the first one.
func Normalize(raw Raw) (Normalized, error) {
	var n Normalized
	for _, t := range Types {
		if payload, ok := present(raw, string(t)); ok {
			n.Type = t
			n.Payload = payload
		}
	}
	if n.Type == "" {
		return Normalized{}, &UndefinedTypeError{Keys: sortedKeys(raw)}
	}

	n.ID, _ = raw.ID()

	if n.Type == TypeMessage {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(n.Payload, &fields); err != nil {
			return Normalized{}, fmt.Errorf("decode %s payload: %w", n.Type, err)
		}
		for _, st := range SubTypes {
			if _, ok := present(fields, string(st)); ok {
				n.SubType = st
			}
		}
	}

	return n, nil
}

func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	value, ok := fields[key]
	if !ok {
		return nil, false
	}
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, false
	}
	return value, true
}

func sortedKeys(raw Raw) []string {
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
