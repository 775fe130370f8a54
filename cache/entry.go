package cache

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// Cache key prefixes. A canonical session_data entry holds the full payload
// once; session_token and session_refresh entries are lightweight pointers
// at it, each with a TTL matched to its own token lifetime.
const (
	keySessionData    = "session_data:"
	keySessionToken   = "session_token:"
	keySessionRefresh = "session_refresh:"
	keyTokenMapping   = "token_session_map:"
	keyProviderIndex  = "sessions_provider:"
	keyUserIndex      = "sessions_user:"
	keyUserPerms      = "user_permissions:"
)

type entryKind string

const (
	kindPayload entryKind = "payload"
	kindPointer entryKind = "pointer"
)

// Entry is the tagged envelope written for every session cache value, so a
// reader resolves pointers by tag rather than by sniffing value prefixes.
type Entry struct {
	Kind    entryKind       `json:"kind"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func payloadEntry(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "[payloadEntry] Marshal payload")
	}
	data, err := json.Marshal(Entry{Kind: kindPayload, Payload: raw})
	if err != nil {
		return "", errors.Wrap(err, "[payloadEntry] Marshal entry")
	}
	return string(data), nil
}

func pointerEntry(target string) (string, error) {
	data, err := json.Marshal(Entry{Kind: kindPointer, Target: target})
	if err != nil {
		return "", errors.Wrap(err, "[pointerEntry] Marshal")
	}
	return string(data), nil
}

func decodeEntry(value string) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal([]byte(value), &entry); err != nil {
		return nil, errors.Wrap(err, "[decodeEntry] Unmarshal")
	}
	if entry.Kind != kindPayload && entry.Kind != kindPointer {
		return nil, errors.Errorf("[decodeEntry] unknown entry kind %q", entry.Kind)
	}
	return &entry, nil
}

// resolve follows at most one level of pointer indirection and returns the
// payload bytes of the final entry.
func (m *Manager) resolve(ctx context.Context, key string) (json.RawMessage, error) {
	value, err := m.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	entry, err := decodeEntry(value)
	if err != nil {
		return nil, err
	}
	if entry.Kind == kindPayload {
		return entry.Payload, nil
	}

	value, err = m.kv.Get(ctx, entry.Target)
	if err != nil {
		return nil, err
	}
	entry, err = decodeEntry(value)
	if err != nil {
		return nil, err
	}
	if entry.Kind != kindPayload {
		return nil, errors.New("[Manager.resolve] pointer chain too deep")
	}
	return entry.Payload, nil
}
