/*
Package registry persists small JSON documents in postgres, together with the
time they were written.

The JWT middleware uses it to cache downloaded certificates across restarts:

	reg, err := registry.New(db, "_jwt_")
	fresh, err := reg.Fresh(ctx, url, &certificates, 6*time.Hour)
*/
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/campus/core/csql"
)

const registryTable = "_registry_"

// Registry is a persistent key value store. All keys are prefixed with "{prefix}:"
// unless the prefix is empty.
type Registry struct {
	db     *csql.DB
	table  string
	prefix string
}

// New returns a registry with the given key prefix. The registry table is created if
// it does not exist yet.
func New(db *csql.DB, prefix string) (*Registry, error) {
	r := &Registry{db: db, table: db.Table(registryTable), prefix: prefix}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + r.table + ` (
key VARCHAR PRIMARY KEY,
value JSONB NOT NULL,
written_at TIMESTAMP NOT NULL
);`)
	if err != nil {
		return nil, fmt.Errorf("cannot create registry table: %w", err)
	}
	return r, nil
}

func (r *Registry) key(key string) string {
	if len(r.prefix) > 0 {
		return r.prefix + ":" + key
	}
	return key
}

// Get reads the value for key. It returns the time the value was written, or a zero
// time if there is no value.
func (r *Registry) Get(ctx context.Context, key string, value interface{}) (time.Time, error) {
	var (
		raw       []byte
		writtenAt time.Time
	)
	key = r.key(key)
	err := r.db.QueryRowContext(ctx, `SELECT value, written_at FROM `+r.table+` WHERE key = $1;`, key).
		Scan(&raw, &writtenAt)
	if errors.Is(err, csql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot read %s: %w", key, err)
	}
	if err = json.Unmarshal(raw, value); err != nil {
		return time.Time{}, fmt.Errorf("cannot decode %s: %w", key, err)
	}
	return writtenAt, nil
}

// Fresh reads the value for key like Get, but only reports true if the value
// was written less than maxAge ago.
func (r *Registry) Fresh(ctx context.Context, key string, value interface{}, maxAge time.Duration) (bool, error) {
	writtenAt, err := r.Get(ctx, key, value)
	if err != nil {
		return false, err
	}
	return !writtenAt.IsZero() && time.Since(writtenAt) < maxAge, nil
}

// Put writes value for key, replacing any previous value
func (r *Registry) Put(ctx context.Context, key string, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cannot encode %s: %w", key, err)
	}
	key = r.key(key)
	_, err = r.db.ExecContext(ctx, `INSERT INTO `+r.table+` (key, value, written_at) VALUES($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, written_at = EXCLUDED.written_at;`,
		key, string(body), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cannot write %s: %w", key, err)
	}
	return nil
}

// Remove deletes the value for key. Removing a missing key is not an error.
func (r *Registry) Remove(ctx context.Context, key string) error {
	key = r.key(key)
	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+r.table+` WHERE key = $1;`, key); err != nil {
		return fmt.Errorf("cannot remove %s: %w", key, err)
	}
	return nil
}
