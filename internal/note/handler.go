package note

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"

	"notes-server/internal/auth"
	"notes-server/internal/tag"
	"notes-server/internal/user"
)

const maxJSONBodyBytes = 1 << 20

// Store is what the HTTP layer needs from note persistence. *Repository is
// the production implementation.
type Store interface {
	Create(ctx context.Context, ownerID, title, content string) (Note, error)
	Get(ctx context.Context, ownerID, noteID string) (Note, error)
	Update(ctx context.Context, ownerID, noteID string, patch Patch) (Note, error)
	Delete(ctx context.Context, ownerID, noteID string) error
	List(ctx context.Context, ownerID string, filter ListFilter) (Page, error)
	BatchUpdate(ctx context.Context, ownerID string, noteIDs []string, patch Patch) ([]Note, error)
	BatchDelete(ctx context.Context, ownerID string, noteIDs []string) error
	AddTag(ctx context.Context, ownerID, noteID, tagID string) (Note, error)
	RemoveTag(ctx context.Context, ownerID, noteID, tagID string) (Note, error)
	SetTags(ctx context.Context, ownerID, noteID string, tagIDs []string) (Note, error)
}

type Handler struct {
	repo Store
}

func NewHandler(repo Store) *Handler {
	return &Handler{repo: repo}
}

type createRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type setTagsRequest struct {
	TagIDs []string `json:"tag_ids"`
}

type batchRequest struct {
	NoteIDs []string `json:"note_ids"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var body createRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if len(body.Title) > 500 {
		writeError(w, http.StatusBadRequest, "title too long")
		return
	}

	created, err := h.repo.Create(r.Context(), principal.ID, body.Title, body.Content)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create note")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	filter := ListFilter{
		Archived: boolQuery(r, "archived"),
		Trashed:  boolQuery(r, "trashed"),
		Pinned:   boolQuery(r, "pinned"),
		Query:    r.URL.Query().Get("q"),
		Page:     intQuery(r, "page", 0),
		Size:     intQuery(r, "size", defaultPageSize),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("tags")); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				filter.TagIDs = append(filter.TagIDs, id)
			}
		}
	}

	page, err := h.repo.List(r.Context(), principal.ID, filter)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list notes")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	found, err := h.repo.Get(r.Context(), principal.ID, r.PathValue("id"))
	if err != nil {
		respondNoteError(w, err, "failed to load note")
		return
	}

	writeJSON(w, http.StatusOK, found)
}

func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var patch Patch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if patch.Title != nil && len(*patch.Title) > 500 {
		writeError(w, http.StatusBadRequest, "title too long")
		return
	}

	updated, err := h.repo.Update(r.Context(), principal.ID, r.PathValue("id"), patch)
	if err != nil {
		respondNoteError(w, err, "failed to update note")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), principal.ID, r.PathValue("id")); err != nil {
		respondNoteError(w, err, "failed to delete note")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetTags(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var body setTagsRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	updated, err := h.repo.SetTags(r.Context(), principal.ID, r.PathValue("id"), body.TagIDs)
	if err != nil {
		respondNoteError(w, err, "failed to set note tags")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) AddTag(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	updated, err := h.repo.AddTag(r.Context(), principal.ID, r.PathValue("id"), r.PathValue("tagID"))
	if err != nil {
		respondNoteError(w, err, "failed to tag note")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	updated, err := h.repo.RemoveTag(r.Context(), principal.ID, r.PathValue("id"), r.PathValue("tagID"))
	if err != nil {
		respondNoteError(w, err, "failed to untag note")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// BatchArchive archives every listed note, all-or-nothing.
func (h *Handler) BatchArchive(w http.ResponseWriter, r *http.Request) {
	h.batchFlag(w, r, func(v *bool) Patch { return Patch{Archived: v} }, true)
}

// BatchRestoreArchive moves the listed notes back out of the archive.
func (h *Handler) BatchRestoreArchive(w http.ResponseWriter, r *http.Request) {
	h.batchFlag(w, r, func(v *bool) Patch { return Patch{Archived: v} }, false)
}

// BatchTrash moves every listed note to the trash, all-or-nothing.
func (h *Handler) BatchTrash(w http.ResponseWriter, r *http.Request) {
	h.batchFlag(w, r, func(v *bool) Patch { return Patch{Trashed: v} }, true)
}

// BatchRestoreTrash restores the listed notes from the trash.
func (h *Handler) BatchRestoreTrash(w http.ResponseWriter, r *http.Request) {
	h.batchFlag(w, r, func(v *bool) Patch { return Patch{Trashed: v} }, false)
}

func (h *Handler) batchFlag(w http.ResponseWriter, r *http.Request, patchFor func(*bool) Patch, value bool) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	ids, ok := decodeBatchIDs(w, r)
	if !ok {
		return
	}

	updated, err := h.repo.BatchUpdate(r.Context(), principal.ID, ids, patchFor(&value))
	if err != nil {
		respondNoteError(w, err, "failed to update notes")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// BatchDelete permanently removes the listed notes, all-or-nothing.
func (h *Handler) BatchDelete(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	ids, ok := decodeBatchIDs(w, r)
	if !ok {
		return
	}

	if err := h.repo.BatchDelete(r.Context(), principal.ID, ids); err != nil {
		respondNoteError(w, err, "failed to delete notes")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func decodeBatchIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var body batchRequest
	if !decodeJSON(w, r, &body) {
		return nil, false
	}
	if len(body.NoteIDs) == 0 {
		writeError(w, http.StatusBadRequest, "note_ids must not be empty")
		return nil, false
	}
	return body.NoteIDs, true
}

func respondNoteError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "note not found")
	case errors.Is(err, tag.ErrNotFound):
		writeError(w, http.StatusNotFound, "tag not found")
	case errors.Is(err, ErrTrashed):
		writeError(w, http.StatusBadRequest, "cannot tag trashed note")
	default:
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (user.User, bool) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
	}
	return principal, ok
}

func boolQuery(r *http.Request, name string) *bool {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &value
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
