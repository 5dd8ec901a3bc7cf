package tag

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound also covers tags owned by someone else, so foreign tag
	// ids are indistinguishable from missing ones.
	ErrNotFound = errors.New("tag not found")
	ErrExists   = errors.New("tag already exists")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, ownerID, name string) (Tag, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM tags WHERE owner_id = $1 AND name = $2)
	`, ownerID, name).Scan(&exists); err != nil {
		return Tag{}, fmt.Errorf("check tag name: %w", err)
	}
	if exists {
		return Tag{}, ErrExists
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Tag{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	t := Tag{ID: id.String(), OwnerID: ownerID, Name: name}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO tags (id, owner_id, name)
		VALUES ($1, $2, $3)
	`, t.ID, t.OwnerID, t.Name); err != nil {
		return Tag{}, mapInsertError(err)
	}

	return t, nil
}

const pgUniqueViolation = "23505"

// mapInsertError backstops the check-then-insert race: a concurrent create
// of the same (owner, name) surfaces as ErrExists, not a server error.
func mapInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrExists
	}
	return fmt.Errorf("insert tag: %w", err)
}

func (r *Repository) List(ctx context.Context, ownerID string) ([]Tag, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, name
		FROM tags
		WHERE owner_id = $1
		ORDER BY name ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	tags := make([]Tag, 0)
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}

	return tags, nil
}

func (r *Repository) Delete(ctx context.Context, ownerID, tagID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM tags
		WHERE id = $1 AND owner_id = $2
	`, tagID, ownerID)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete tag rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}
