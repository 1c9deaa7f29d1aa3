package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

// SettingRepository reads and writes the jsonb documents in app_settings.
type SettingRepository struct {
	pool *pgxpool.Pool
}

// NewSettingRepository creates a new SettingRepository.
func NewSettingRepository(pool *pgxpool.Pool) *SettingRepository {
	return &SettingRepository{pool: pool}
}

// List returns every setting as raw JSON, ordered by key.
func (r *SettingRepository) List(ctx context.Context) ([]model.AppSetting, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value, updated_at FROM app_settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[model.AppSetting])
}

// GetJSON decodes the document stored under key into dst.
// It returns ErrNotFound when the key was never written.
func (r *SettingRepository) GetJSON(ctx context.Context, key string, dst any) error {
	err := r.pool.QueryRow(ctx, `SELECT value FROM app_settings WHERE key = $1`, key).Scan(dst)
	return notFound(err)
}

// PutJSON encodes v as the document for key, replacing any previous value.
func (r *SettingRepository) PutJSON(ctx context.Context, key string, v any) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO app_settings (key, value, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, v)
	return err
}
