package repository

import (
	"context"
	"log/slog"
	"sync"

	"bank-records/internal/cipher"
)

// Provider hands out the single Store of a process. The first successful
// call creates the table if needed and loads the mirror; a failed first call
// is retried on the next one.
type Provider struct {
	db      DB
	dialect Dialect
	cipher  cipher.Cipher
	logger  *slog.Logger

	mu    sync.Mutex
	store *Store
}

func NewProvider(db DB, dialect Dialect, c cipher.Cipher, logger *slog.Logger) *Provider {
	return &Provider{
		db:      db,
		dialect: dialect,
		cipher:  c,
		logger:  logger,
	}
}

func (p *Provider) Store(ctx context.Context) (*Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.store != nil {
		return p.store, nil
	}

	store := NewStore(p.db, p.dialect, p.cipher, p.logger)
	if err := store.LoadAll(ctx); err != nil {
		return nil, err
	}
	p.store = store
	return store, nil
}
