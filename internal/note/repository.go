package note

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"notes-server/internal/tag"
)

var (
	// ErrNotFound also covers notes owned by someone else; foreign note
	// ids must be indistinguishable from missing ones.
	ErrNotFound = errors.New("note not found")
	ErrTrashed  = errors.New("cannot tag trashed note")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const noteColumns = "id, owner_id, title, content, pinned, archived, trashed, created_at, updated_at"

func scanNote(row interface{ Scan(...any) error }) (Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &n.Pinned, &n.Archived, &n.Trashed, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

func (r *Repository) Create(ctx context.Context, ownerID, title, content string) (Note, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Note{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	n := Note{
		ID:        id.String(),
		OwnerID:   ownerID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
		Tags:      []tag.Tag{},
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO notes (id, owner_id, title, content, pinned, archived, trashed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, FALSE, FALSE, $5, $5)
	`, n.ID, n.OwnerID, n.Title, n.Content, now); err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}

	return n, nil
}

func (r *Repository) Get(ctx context.Context, ownerID, noteID string) (Note, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		WHERE id = $1 AND owner_id = $2
	`, noteID, ownerID)

	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Note{}, ErrNotFound
		}
		return Note{}, fmt.Errorf("query note: %w", err)
	}

	if err := r.attachTags(ctx, []*Note{&n}); err != nil {
		return Note{}, err
	}
	return n, nil
}

func (r *Repository) Update(ctx context.Context, ownerID, noteID string, patch Patch) (Note, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE notes
		SET title = COALESCE($3, title),
			content = COALESCE($4, content),
			pinned = COALESCE($5, pinned),
			archived = COALESCE($6, archived),
			trashed = COALESCE($7, trashed),
			updated_at = $8
		WHERE id = $1 AND owner_id = $2
		RETURNING `+noteColumns+`
	`, noteID, ownerID, patch.Title, patch.Content, patch.Pinned, patch.Archived, patch.Trashed, time.Now().UTC())

	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Note{}, ErrNotFound
		}
		return Note{}, fmt.Errorf("update note: %w", err)
	}

	if err := r.attachTags(ctx, []*Note{&n}); err != nil {
		return Note{}, err
	}
	return n, nil
}

func (r *Repository) Delete(ctx context.Context, ownerID, noteID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM notes
		WHERE id = $1 AND owner_id = $2
	`, noteID, ownerID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete note rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// List pages through the owner's notes. Filters apply in priority order:
// archived, trashed, pinned, tags (notes carrying every requested tag),
// then free-text search over title and content.
func (r *Repository) List(ctx context.Context, ownerID string, filter ListFilter) (Page, error) {
	page := filter.Page
	if page < 0 {
		page = 0
	}
	size := filter.Size
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	where := "owner_id = $1"
	args := []any{ownerID}

	switch {
	case filter.Archived != nil:
		where += " AND archived = $2"
		args = append(args, *filter.Archived)
	case filter.Trashed != nil:
		where += " AND trashed = $2"
		args = append(args, *filter.Trashed)
	case filter.Pinned != nil:
		where += " AND pinned = $2"
		args = append(args, *filter.Pinned)
	case len(filter.TagIDs) > 0:
		placeholders := make([]string, 0, len(filter.TagIDs))
		for _, tagID := range filter.TagIDs {
			args = append(args, tagID)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		args = append(args, len(filter.TagIDs))
		where += fmt.Sprintf(` AND id IN (
			SELECT note_id FROM note_tags
			WHERE tag_id IN (%s)
			GROUP BY note_id
			HAVING COUNT(DISTINCT tag_id) = $%d
		)`, strings.Join(placeholders, ", "), len(args))
	case strings.TrimSpace(filter.Query) != "":
		args = append(args, "%"+strings.TrimSpace(filter.Query)+"%")
		where += " AND (title ILIKE $2 OR content ILIKE $2)"
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes WHERE `+where, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count notes: %w", err)
	}

	args = append(args, size, page*size)
	query := fmt.Sprintf(`
		SELECT %s
		FROM notes
		WHERE %s
		ORDER BY pinned DESC, updated_at DESC
		LIMIT $%d OFFSET $%d
	`, noteColumns, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	notes := make([]Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return Page{}, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate notes: %w", err)
	}

	refs := make([]*Note, len(notes))
	for i := range notes {
		refs[i] = &notes[i]
	}
	if err := r.attachTags(ctx, refs); err != nil {
		return Page{}, err
	}

	totalPages := int((total + int64(size) - 1) / int64(size))
	return Page{
		Items:      notes,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

func (r *Repository) attachTags(ctx context.Context, notes []*Note) error {
	if len(notes) == 0 {
		return nil
	}

	byID := make(map[string]*Note, len(notes))
	placeholders := make([]string, 0, len(notes))
	args := make([]any, 0, len(notes))
	for i, n := range notes {
		n.Tags = []tag.Tag{}
		byID[n.ID] = n
		args = append(args, n.ID)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT nt.note_id, t.id, t.owner_id, t.name
		FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		WHERE nt.note_id IN (%s)
		ORDER BY t.name ASC
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return fmt.Errorf("query note tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var noteID string
		var t tag.Tag
		if err := rows.Scan(&noteID, &t.ID, &t.OwnerID, &t.Name); err != nil {
			return fmt.Errorf("scan note tag: %w", err)
		}
		if n, ok := byID[noteID]; ok {
			n.Tags = append(n.Tags, t)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate note tags: %w", err)
	}
	return nil
}

// BatchUpdate applies the same patch to every listed note inside one
// transaction. A missing or foreign id fails the whole batch with
// ErrNotFound and nothing is applied.
func (r *Repository) BatchUpdate(ctx context.Context, ownerID string, noteIDs []string, patch Patch) ([]Note, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch update tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	notes := make([]Note, 0, len(noteIDs))
	for _, noteID := range noteIDs {
		row := tx.QueryRowContext(ctx, `
			UPDATE notes
			SET title = COALESCE($3, title),
				content = COALESCE($4, content),
				pinned = COALESCE($5, pinned),
				archived = COALESCE($6, archived),
				trashed = COALESCE($7, trashed),
				updated_at = $8
			WHERE id = $1 AND owner_id = $2
			RETURNING `+noteColumns+`
		`, noteID, ownerID, patch.Title, patch.Content, patch.Pinned, patch.Archived, patch.Trashed, now)

		n, err := scanNote(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("batch update note: %w", err)
		}
		notes = append(notes, n)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch update: %w", err)
	}

	refs := make([]*Note, len(notes))
	for i := range notes {
		refs[i] = &notes[i]
	}
	if err := r.attachTags(ctx, refs); err != nil {
		return nil, err
	}
	return notes, nil
}

// BatchDelete permanently removes every listed note inside one transaction,
// with the same all-or-nothing rule as BatchUpdate.
func (r *Repository) BatchDelete(ctx context.Context, ownerID string, noteIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch delete tx: %w", err)
	}
	defer tx.Rollback()

	for _, noteID := range noteIDs {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM notes
			WHERE id = $1 AND owner_id = $2
		`, noteID, ownerID)
		if err != nil {
			return fmt.Errorf("batch delete note: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("batch delete rows affected: %w", err)
		}
		if affected == 0 {
			return ErrNotFound
		}
	}

	return tx.Commit()
}

func (r *Repository) AddTag(ctx context.Context, ownerID, noteID, tagID string) (Note, error) {
	if err := r.mutateTags(ctx, ownerID, noteID, []string{tagID}, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO note_tags (note_id, tag_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, noteID, tagID)
		return err
	}, true); err != nil {
		return Note{}, err
	}
	return r.Get(ctx, ownerID, noteID)
}

func (r *Repository) RemoveTag(ctx context.Context, ownerID, noteID, tagID string) (Note, error) {
	if err := r.mutateTags(ctx, ownerID, noteID, []string{tagID}, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM note_tags
			WHERE note_id = $1 AND tag_id = $2
		`, noteID, tagID)
		return err
	}, false); err != nil {
		return Note{}, err
	}
	return r.Get(ctx, ownerID, noteID)
}

// SetTags replaces the note's tag set wholesale.
func (r *Repository) SetTags(ctx context.Context, ownerID, noteID string, tagIDs []string) (Note, error) {
	if err := r.mutateTags(ctx, ownerID, noteID, tagIDs, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM note_tags WHERE note_id = $1`, noteID); err != nil {
			return err
		}
		for _, tagID := range tagIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO note_tags (note_id, tag_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, noteID, tagID); err != nil {
				return err
			}
		}
		return nil
	}, true); err != nil {
		return Note{}, err
	}
	return r.Get(ctx, ownerID, noteID)
}

// mutateTags checks note ownership, the trashed rule and tag ownership
// inside one transaction, then applies the assignment mutation and stamps
// the note.
func (r *Repository) mutateTags(ctx context.Context, ownerID, noteID string, tagIDs []string, mutate func(tx *sql.Tx) error, rejectTrashed bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin note tags tx: %w", err)
	}
	defer tx.Rollback()

	var trashed bool
	err = tx.QueryRowContext(ctx, `
		SELECT trashed FROM notes WHERE id = $1 AND owner_id = $2
	`, noteID, ownerID).Scan(&trashed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("query note for tagging: %w", err)
	}
	if rejectTrashed && trashed {
		return ErrTrashed
	}

	for _, tagID := range tagIDs {
		var owned bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM tags WHERE id = $1 AND owner_id = $2)
		`, tagID, ownerID).Scan(&owned); err != nil {
			return fmt.Errorf("check tag ownership: %w", err)
		}
		if !owned {
			return tag.ErrNotFound
		}
	}

	if err := mutate(tx); err != nil {
		return fmt.Errorf("mutate note tags: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE notes SET updated_at = $2 WHERE id = $1
	`, noteID, time.Now().UTC()); err != nil {
		return fmt.Errorf("stamp note: %w", err)
	}

	return tx.Commit()
}
