// Package localstore persists small JSON documents under a fixed namespace
// prefix. Reads degrade to "absent" and writes never fail the caller: a
// dropped write is logged and forgotten, so callers must not assume
// durability.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const (
	DefaultPrefix = "storefront"
	keySeparator  = ":"
)

// Backend is the raw byte store underneath a Store. Keys handed to a backend
// are already namespaced.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Options configures a Store.
type Options struct {
	Prefix string
	Logger *logger.Logger
}

// Store is the namespaced key/value layer shared by carts, profile and order history.
type Store struct {
	backend Backend
	prefix  string
	logg    *logger.Logger
}

// New builds a store over backend. A nil backend yields a store where every
// read is absent and every write is dropped.
func New(backend Backend, opts Options) *Store {
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Store{backend: backend, prefix: prefix + keySeparator, logg: logg}
}

// Get decodes the document stored under key into T. Missing keys, corrupt
// JSON and a missing backend all report ok=false.
func Get[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var out T
	raw, ok := s.GetRaw(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		s.debug(ctx, key, "stored value is not valid json", err)
		var zero T
		return zero, false
	}
	return out, true
}

// GetRaw returns the stored bytes for key without decoding them.
func (s *Store) GetRaw(ctx context.Context, key string) (json.RawMessage, bool) {
	if s == nil || s.backend == nil {
		return nil, false
	}
	raw, ok, err := s.backend.Get(ctx, s.fullKey(key))
	if err != nil {
		s.debug(ctx, key, "storage read failed", err)
		return nil, false
	}
	if !ok || len(raw) == 0 {
		return nil, false
	}
	return json.RawMessage(raw), true
}

// Set encodes value as JSON and writes it. It reports whether the write
// landed; failures (including quota exhaustion) are logged, never returned.
func (s *Store) Set(ctx context.Context, key string, value any) bool {
	if s == nil || s.backend == nil {
		return false
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.debug(ctx, key, "value is not json encodable", err)
		return false
	}
	return s.SetRaw(ctx, key, raw)
}

// SetRaw writes pre-encoded JSON.
func (s *Store) SetRaw(ctx context.Context, key string, raw json.RawMessage) bool {
	if s == nil || s.backend == nil {
		return false
	}
	if err := s.backend.Set(ctx, s.fullKey(key), raw); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStorageQuota) {
			s.debug(ctx, key, "storage quota exceeded; write dropped", err)
			return false
		}
		s.debug(ctx, key, "storage write failed; write dropped", err)
		return false
	}
	return true
}

// Remove deletes key. Missing keys are not an error.
func (s *Store) Remove(ctx context.Context, key string) {
	if s == nil || s.backend == nil {
		return
	}
	if err := s.backend.Delete(ctx, s.fullKey(key)); err != nil {
		s.debug(ctx, key, "storage delete failed", err)
	}
}

// Has reports whether a value exists for key.
func (s *Store) Has(ctx context.Context, key string) bool {
	_, ok := s.GetRaw(ctx, key)
	return ok
}

// Clear removes every key under this store's namespace and leaves foreign
// keys alone. It returns the number of keys removed.
func (s *Store) Clear(ctx context.Context) int {
	removed := 0
	for _, key := range s.ListKeys(ctx) {
		if err := s.backend.Delete(ctx, s.fullKey(key)); err != nil {
			s.debug(ctx, key, "storage delete failed", err)
			continue
		}
		removed++
	}
	return removed
}

// ListKeys returns the un-prefixed keys in this namespace, sorted.
func (s *Store) ListKeys(ctx context.Context) []string {
	if s == nil || s.backend == nil {
		return nil
	}
	full, err := s.backend.Keys(ctx, s.prefix)
	if err != nil {
		s.debug(ctx, "*", "storage key listing failed", err)
		return nil
	}
	keys := make([]string, 0, len(full))
	for _, key := range full {
		if !strings.HasPrefix(key, s.prefix) {
			continue
		}
		keys = append(keys, strings.TrimPrefix(key, s.prefix))
	}
	sort.Strings(keys)
	return keys
}

// SizeBytes sums key and value lengths for every entry in the namespace.
func (s *Store) SizeBytes(ctx context.Context) int64 {
	var total int64
	for _, key := range s.ListKeys(ctx) {
		raw, ok := s.GetRaw(ctx, key)
		if !ok {
			continue
		}
		total += int64(len(s.fullKey(key)) + len(raw))
	}
	return total
}

// HumanSize renders SizeBytes for display.
func (s *Store) HumanSize(ctx context.Context) string {
	return FormatBytes(s.SizeBytes(ctx))
}

// ExportAll snapshots every document in the namespace keyed by un-prefixed key.
func (s *Store) ExportAll(ctx context.Context) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	for _, key := range s.ListKeys(ctx) {
		if raw, ok := s.GetRaw(ctx, key); ok {
			out[key] = raw
		}
	}
	return out
}

// ImportAll writes every document in data, skipping entries that are not
// valid JSON. It returns the number of documents written.
func (s *Store) ImportAll(ctx context.Context, data map[string]json.RawMessage) int {
	written := 0
	for key, raw := range data {
		if !json.Valid(raw) {
			s.debug(ctx, key, "import skipped invalid json", nil)
			continue
		}
		if s.SetRaw(ctx, key, raw) {
			written++
		}
	}
	return written
}

// Available reports whether a backend is attached.
func (s *Store) Available() bool {
	return s != nil && s.backend != nil
}

func (s *Store) fullKey(key string) string {
	return s.prefix + key
}

func (s *Store) debug(ctx context.Context, key, msg string, err error) {
	if s == nil || s.logg == nil {
		return
	}
	fields := map[string]any{}
	if err != nil {
		fields = pkgerrors.Dump(err).Fields()
	}
	fields["storage_key"] = key
	s.logg.Debug(s.logg.WithFields(ctx, fields), msg)
}

// FormatBytes renders n using binary units.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
