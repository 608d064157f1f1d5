package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/credits/internal/db"
	"github.com/kailas-cloud/credits/internal/domain"
	domcredit "github.com/kailas-cloud/credits/internal/domain/credit"
)

// store is the consumer interface for credit records (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetNX(ctx context.Context, key string, value []byte) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo persists one JSON document per user under <prefix>credit:<name>.
type Repo struct {
	store  store
	prefix string
}

// New creates a credit record repository. An empty prefix uses domain.DefaultKeyPrefix.
func New(s store, prefix string) *Repo {
	if prefix == "" {
		prefix = domain.DefaultKeyPrefix
	}
	return &Repo{store: s, prefix: prefix}
}

// Get loads the record of one user.
func (r *Repo) Get(ctx context.Context, name string) (domcredit.Record, error) {
	key := r.key(name)
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domcredit.Record{}, domain.ErrNotFound
		}
		return domcredit.Record{}, &domain.StoreError{Op: "get", Key: key, Err: err}
	}
	rec, err := recordFromJSON(data)
	if err != nil {
		return domcredit.Record{}, &domain.StoreError{Op: "decode", Key: key, Err: err}
	}
	return rec, nil
}

// Create stores a new record. Fails with domain.ErrAlreadyExists if one is present.
func (r *Repo) Create(ctx context.Context, rec *domcredit.Record) error {
	key := r.key(rec.Name())
	data, err := recordToJSON(rec)
	if err != nil {
		return &domain.StoreError{Op: "encode", Key: key, Err: err}
	}
	if err := r.store.SetNX(ctx, key, data); err != nil {
		if errors.Is(err, db.ErrKeyExists) {
			return domain.ErrAlreadyExists
		}
		return &domain.StoreError{Op: "create", Key: key, Err: err}
	}
	return nil
}

// Commit persists every field of the record in a single write.
func (r *Repo) Commit(ctx context.Context, rec *domcredit.Record) error {
	key := r.key(rec.Name())
	data, err := recordToJSON(rec)
	if err != nil {
		return &domain.StoreError{Op: "encode", Key: key, Err: err}
	}
	if err := r.store.Set(ctx, key, data); err != nil {
		return &domain.StoreError{Op: "commit", Key: key, Err: err}
	}
	return nil
}

// List loads every stored record. Records deleted between SCAN and GET are skipped;
// undecodable records are reported in the returned error alongside the rest.
func (r *Repo) List(ctx context.Context) ([]domcredit.Record, error) {
	pattern := r.key("*")
	keys, err := r.store.Scan(ctx, pattern)
	if err != nil {
		return nil, &domain.StoreError{Op: "scan", Key: pattern, Err: err}
	}

	records := make([]domcredit.Record, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	var errs []error
	for _, key := range keys {
		// SCAN may return a key more than once.
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		data, err := r.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, db.ErrKeyNotFound) {
				continue
			}
			errs = append(errs, &domain.StoreError{Op: "get", Key: key, Err: err})
			continue
		}
		rec, err := recordFromJSON(data)
		if err != nil {
			errs = append(errs, &domain.StoreError{Op: "decode", Key: key, Err: err})
			continue
		}
		records = append(records, rec)
	}

	return records, errors.Join(errs...)
}

// Key pattern: credits:credit:{name}
func (r *Repo) key(name string) string {
	return fmt.Sprintf("%scredit:%s", r.prefix, name)
}
