package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// CredentialModel is the Bun model for stored tokens.
type CredentialModel struct {
	bun.BaseModel `bun:"table:credentials"`

	Key       string    `bun:"key,pk"`
	Token     string    `bun:"token,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// Bun stores the token as one row of the credentials table.
type Bun struct {
	db  *bun.DB
	key string
	now func() time.Time
}

// NewBun creates a store on db. An empty key uses DefaultKey.
func NewBun(db *bun.DB, key string) *Bun {
	if key == "" {
		key = DefaultKey
	}
	return &Bun{db: db, key: key, now: time.Now}
}

// OpenSQLite opens a sqlite database through the bun sqlite shim.
// Use "file::memory:?cache=shared" for an in-memory database.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// Migrate creates the credentials table when missing.
func (b *Bun) Migrate(ctx context.Context) error {
	_, err := b.db.NewCreateTable().
		Model((*CredentialModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create credentials table: %w", err)
	}
	return nil
}

// Get implements authclient.CredentialStore.
func (b *Bun) Get(ctx context.Context) (string, error) {
	var model CredentialModel
	err := b.db.NewSelect().
		Model(&model).
		Where("key = ?", b.key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select credential: %w", err)
	}
	return model.Token, nil
}

// Set implements authclient.CredentialStore.
func (b *Bun) Set(ctx context.Context, token string) error {
	model := &CredentialModel{
		Key:       b.key,
		Token:     token,
		UpdatedAt: b.now(),
	}

	_, err := b.db.NewInsert().
		Model(model).
		On("CONFLICT (key) DO UPDATE").
		Set("token = EXCLUDED.token").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// Clear implements authclient.CredentialStore.
func (b *Bun) Clear(ctx context.Context) error {
	_, err := b.db.NewDelete().
		Model((*CredentialModel)(nil)).
		Where("key = ?", b.key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
