package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/tastybites/storefront/internal/domain"
	"github.com/tastybites/storefront/internal/repository"
	"github.com/tastybites/storefront/pkg/database"
	apperrors "github.com/tastybites/storefront/pkg/errors"
)

// CartRecordRepository implements repository.CartRecordRepository on the
// carts table.
type CartRecordRepository struct {
	db database.DBTX
}

var _ repository.CartRecordRepository = (*CartRecordRepository)(nil)

// NewCartRecordRepository creates a new PostgreSQL-backed cart record repository.
func NewCartRecordRepository(db database.DBTX) *CartRecordRepository {
	return &CartRecordRepository{db: db}
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db database.DBTX, logger *slog.Logger) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	return database.RunMigrations(ctx, db, sub, logger)
}

// Get retrieves the cart record for a user.
func (r *CartRecordRepository) Get(ctx context.Context, userID string) (rec *domain.CartRecord, err error) {
	const query = `SELECT user_id, items, updated_at FROM carts WHERE user_id = $1`

	ctx, end := database.TraceQuery(ctx, "GetCart", query)
	defer func() { end(err) }()

	var (
		raw    []byte
		record domain.CartRecord
	)
	err = r.db.QueryRow(ctx, query, userID).Scan(&record.UserID, &raw, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("cart", userID)
		}
		return nil, fmt.Errorf("get cart %s: %w", userID, err)
	}

	if err = json.Unmarshal(raw, &record.Items); err != nil {
		return nil, fmt.Errorf("decode cart items for %s: %w", userID, err)
	}
	if record.Items == nil {
		record.Items = []domain.CartItem{}
	}

	return &record, nil
}

// Upsert inserts the record or replaces the user's existing one.
func (r *CartRecordRepository) Upsert(ctx context.Context, record *domain.CartRecord) (err error) {
	const query = `
		INSERT INTO carts (user_id, items, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at`

	ctx, end := database.TraceQuery(ctx, "UpsertCart", query)
	defer func() { end(err) }()

	items := record.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart items for %s: %w", record.UserID, err)
	}

	if _, err = r.db.Exec(ctx, query, record.UserID, raw, record.UpdatedAt); err != nil {
		return fmt.Errorf("upsert cart %s: %w", record.UserID, err)
	}

	return nil
}
