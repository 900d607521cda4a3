package profile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront/pkg/localstore"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const (
	storageKey       = "customer:profile"
	legacyStorageKey = "customer_info"

	DefaultRetention       = 30 * 24 * time.Hour
	DefaultLegacyRetention = 7 * 24 * time.Hour
)

// Profile is the decrypted customer record used to prefill checkout.
type Profile struct {
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Fields is a partial update; nil fields keep their stored value.
type Fields struct {
	Name    *string
	Phone   *string
	Email   *string
	Address *string
}

// record is the persisted form. Phone, email and address hold ciphertext.
type record struct {
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// legacyRecord is the pre-encryption plaintext layout.
type legacyRecord struct {
	Name    string    `json:"name"`
	Phone   string    `json:"phone"`
	Email   string    `json:"email"`
	Address string    `json:"address"`
	SavedAt time.Time `json:"saved_at"`
}

type fieldCipher interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// Options configures a Cache.
type Options struct {
	Retention       time.Duration
	LegacyRetention time.Duration
	Logger          *logger.Logger
	Now             func() time.Time
}

// Cache is the encrypted-at-rest customer profile.
type Cache struct {
	mu              sync.Mutex
	store           *localstore.Store
	cipher          fieldCipher
	retention       time.Duration
	legacyRetention time.Duration
	logg            *logger.Logger
	now             func() time.Time
}

// NewCache wires the cache to its store and field cipher.
func NewCache(store *localstore.Store, cipher fieldCipher, opts Options) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("local store required")
	}
	if cipher == nil {
		return nil, fmt.Errorf("field cipher required")
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.LegacyRetention <= 0 {
		opts.LegacyRetention = DefaultLegacyRetention
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		store:           store,
		cipher:          cipher,
		retention:       opts.Retention,
		legacyRetention: opts.LegacyRetention,
		logg:            opts.Logger,
		now:             opts.Now,
	}, nil
}

// Save merges f onto the stored profile (or a new one) and persists it with a
// fresh expiry. Each sensitive field is encrypted independently.
func (c *Cache) Save(ctx context.Context, f Fields) (*Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.loadLocked(ctx)
	if !ok {
		current = &Profile{}
	}
	merged := *current
	applyFields(&merged, f)
	return c.saveLocked(ctx, merged)
}

// Update is Save; it creates the profile when none exists.
func (c *Cache) Update(ctx context.Context, f Fields) (*Profile, error) {
	return c.Save(ctx, f)
}

// Load returns the stored profile. Expired records are purged and reported
// absent before any decryption is attempted.
func (c *Cache) Load(ctx context.Context) (*Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx)
}

// Clear removes the profile and any legacy record.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Remove(ctx, storageKey)
	c.store.Remove(ctx, legacyStorageKey)
}

// IsExpired reports whether a stored profile exists and is past its expiry.
// It does not purge.
func (c *Cache) IsExpired(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := localstore.Get[record](ctx, c.store, storageKey)
	return ok && c.now().After(rec.ExpiresAt)
}

// AgeInDays returns whole days since the profile was last written.
func (c *Cache) AgeInDays(ctx context.Context) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := localstore.Get[record](ctx, c.store, storageKey)
	if !ok {
		return 0, false
	}
	return int(c.now().Sub(rec.UpdatedAt) / (24 * time.Hour)), true
}

// PurgeIfExpired drops an expired profile and reports whether it did.
func (c *Cache) PurgeIfExpired(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := localstore.Get[record](ctx, c.store, storageKey)
	if !ok || !c.now().After(rec.ExpiresAt) {
		return false
	}
	c.store.Remove(ctx, storageKey)
	c.logg.Info(ctx, "expired customer profile purged")
	return true
}

func (c *Cache) loadLocked(ctx context.Context) (*Profile, bool) {
	rec, ok := localstore.Get[record](ctx, c.store, storageKey)
	if !ok {
		return c.migrateLegacyLocked(ctx)
	}
	if c.now().After(rec.ExpiresAt) {
		c.store.Remove(ctx, storageKey)
		c.logg.Debug(ctx, "customer profile expired on read; purged")
		return nil, false
	}
	return &Profile{
		Name:      rec.Name,
		Phone:     c.reveal(ctx, "phone", rec.Phone),
		Email:     c.reveal(ctx, "email", rec.Email),
		Address:   c.reveal(ctx, "address", rec.Address),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, true
}

func (c *Cache) saveLocked(ctx context.Context, p Profile) (*Profile, error) {
	now := c.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.ExpiresAt = now.Add(c.retention)

	rec := record{
		Name:      p.Name,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		ExpiresAt: p.ExpiresAt,
	}
	var err error
	if rec.Phone, err = c.seal(ctx, p.Phone); err != nil {
		return nil, fmt.Errorf("encrypt phone: %w", err)
	}
	if rec.Email, err = c.seal(ctx, p.Email); err != nil {
		return nil, fmt.Errorf("encrypt email: %w", err)
	}
	if rec.Address, err = c.seal(ctx, p.Address); err != nil {
		return nil, fmt.Errorf("encrypt address: %w", err)
	}

	if !c.store.Set(ctx, storageKey, rec) {
		c.logg.Warn(ctx, "customer profile was not persisted")
	}
	return &p, nil
}

func (c *Cache) migrateLegacyLocked(ctx context.Context) (*Profile, bool) {
	legacy, ok := localstore.Get[legacyRecord](ctx, c.store, legacyStorageKey)
	if !ok {
		return nil, false
	}
	defer c.store.Remove(ctx, legacyStorageKey)

	if legacy.SavedAt.IsZero() || c.now().Sub(legacy.SavedAt) > c.legacyRetention {
		c.logg.Debug(ctx, "legacy customer record outside retention; discarded")
		return nil, false
	}
	migrated, err := c.saveLocked(ctx, Profile{
		Name:    legacy.Name,
		Phone:   legacy.Phone,
		Email:   legacy.Email,
		Address: legacy.Address,
	})
	if err != nil {
		c.logg.Debug(c.logg.WithField(ctx, "error", err.Error()), "legacy customer record migration failed")
		return nil, false
	}
	c.logg.Info(ctx, "legacy customer record migrated")
	return migrated, true
}

func (c *Cache) seal(ctx context.Context, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	return c.cipher.Encrypt(ctx, value)
}

// reveal decrypts one field; values that fail to decrypt are returned as
// stored, which covers fields written before encryption existed.
func (c *Cache) reveal(ctx context.Context, field, stored string) string {
	if stored == "" {
		return ""
	}
	plain, err := c.cipher.Decrypt(ctx, stored)
	if err != nil {
		c.logg.Debug(c.logg.WithField(ctx, "field", field), "profile field decrypt failed; using stored value")
		return stored
	}
	return plain
}

func applyFields(p *Profile, f Fields) {
	if f.Name != nil {
		p.Name = strings.TrimSpace(*f.Name)
	}
	if f.Phone != nil {
		p.Phone = strings.TrimSpace(*f.Phone)
	}
	if f.Email != nil {
		p.Email = strings.TrimSpace(*f.Email)
	}
	if f.Address != nil {
		p.Address = strings.TrimSpace(*f.Address)
	}
}
