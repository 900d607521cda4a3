package history

import (
	"context"

	"github.com/angelmondragon/storefront/pkg/localstore"
	"github.com/angelmondragon/storefront/pkg/security"
)

const storageKey = "orders:history"

type document struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

const documentVersion = 1

// tokenCodec sits between the cache and the local store and obfuscates the
// tracking token on write and reveals it on read. Nothing above it sees the
// stored form.
type tokenCodec struct {
	store *localstore.Store
	obf   *security.Obfuscator
}

func (c tokenCodec) load(ctx context.Context) []Entry {
	doc, ok := localstore.Get[document](ctx, c.store, storageKey)
	if !ok {
		return nil
	}
	out := make([]Entry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		e.TrackingToken = c.obf.Reveal(e.TrackingToken)
		out = append(out, e)
	}
	return out
}

func (c tokenCodec) save(ctx context.Context, entries []Entry) bool {
	stored := make([]Entry, 0, len(entries))
	for _, e := range entries {
		e.TrackingToken = c.obf.Obfuscate(e.TrackingToken)
		stored = append(stored, e)
	}
	return c.store.Set(ctx, storageKey, document{Version: documentVersion, Entries: stored})
}

func (c tokenCodec) clear(ctx context.Context) {
	c.store.Remove(ctx, storageKey)
}
