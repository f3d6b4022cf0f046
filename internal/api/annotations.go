package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/serroba/doc-annotations/internal/acl"
	"github.com/serroba/doc-annotations/internal/anchor"
	"github.com/serroba/doc-annotations/internal/session"
	"github.com/serroba/doc-annotations/internal/storage"
)

// CreateAnnotationRequest is the request body for creating an annotation.
// The anchor is optional: clients that encoded the selection themselves
// send it; others send only the selected text and let the service derive
// the anchor.
type CreateAnnotationRequest struct {
	Kind         storage.Kind   `json:"kind"`
	Content      string         `json:"content"`
	SelectedText string         `json:"selectedText"`
	Anchor       *anchor.Anchor `json:"anchor,omitempty"`
}

// handleListAnnotations handles GET /documents/{docID}/annotations.
func (s *Server) handleListAnnotations(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	userID := UserIDFromContext(r.Context())

	sess, ok := s.getSession(w, docID)
	if !ok {
		return
	}

	annotations, err := sess.Annotations(userID)
	if err != nil {
		s.sessionError(w, "list annotations", err)

		return
	}

	if annotations == nil {
		annotations = []storage.Annotation{}
	}

	s.writeJSON(w, http.StatusOK, annotations)
}

// handleCreateAnnotation handles POST /documents/{docID}/annotations.
func (s *Server) handleCreateAnnotation(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	userID := UserIDFromContext(r.Context())

	var req CreateAnnotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	sess, ok := s.getSession(w, docID)
	if !ok {
		return
	}

	a, err := sess.CreateAnnotation(userID, session.CreateInput{
		Kind:         req.Kind,
		Content:      req.Content,
		SelectedText: req.SelectedText,
		Anchor:       req.Anchor,
	})
	if err != nil {
		s.sessionError(w, "create annotation", err)

		return
	}

	s.writeJSON(w, http.StatusCreated, a)
}

// UpdateAnnotationRequest is the request body for editing an annotation.
type UpdateAnnotationRequest struct {
	Content string `json:"content"`
}

// handleUpdateAnnotation handles PATCH /annotations/{annotationID}.
func (s *Server) handleUpdateAnnotation(w http.ResponseWriter, r *http.Request) {
	annotationID := chi.URLParam(r, "annotationID")
	userID := UserIDFromContext(r.Context())

	var req UpdateAnnotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	sess, ok := s.sessionForAnnotation(w, annotationID)
	if !ok {
		return
	}

	a, err := sess.UpdateAnnotationContent(userID, annotationID, req.Content)
	if err != nil {
		s.sessionError(w, "update annotation", err)

		return
	}

	s.writeJSON(w, http.StatusOK, a)
}

// handleDeleteAnnotation handles DELETE /annotations/{annotationID}.
func (s *Server) handleDeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	annotationID := chi.URLParam(r, "annotationID")
	userID := UserIDFromContext(r.Context())

	sess, ok := s.sessionForAnnotation(w, annotationID)
	if !ok {
		return
	}

	if err := sess.RemoveAnnotation(userID, annotationID); err != nil {
		s.sessionError(w, "delete annotation", err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// getSession fetches (or loads) the session for a document, writing the
// error response itself when that fails.
func (s *Server) getSession(w http.ResponseWriter, docID string) (*session.Session, bool) {
	sess, err := s.manager.GetOrCreateSession(docID)
	if err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			http.Error(w, "document not found", http.StatusNotFound)

			return nil, false
		}

		s.internalError(w, "load session", err)

		return nil, false
	}

	return sess, true
}

// sessionForAnnotation resolves an annotation's owning document session.
func (s *Server) sessionForAnnotation(w http.ResponseWriter, annotationID string) (*session.Session, bool) {
	a, err := s.store.GetAnnotation(annotationID)
	if err != nil {
		if errors.Is(err, storage.ErrAnnotationNotFound) {
			http.Error(w, "annotation not found", http.StatusNotFound)

			return nil, false
		}

		s.internalError(w, "get annotation", err)

		return nil, false
	}

	return s.getSession(w, a.DocumentID)
}

// sessionError maps session-level errors onto HTTP status codes.
func (s *Server) sessionError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, acl.ErrAccessDenied), errors.Is(err, session.ErrNotAuthor):
		http.Error(w, "access denied", http.StatusForbidden)
	case errors.Is(err, storage.ErrDocumentNotFound):
		http.Error(w, "document not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrAnnotationNotFound):
		http.Error(w, "annotation not found", http.StatusNotFound)
	case errors.Is(err, session.ErrInvalidKind),
		errors.Is(err, session.ErrEmptyContent),
		errors.Is(err, session.ErrEmptySelected),
		errors.Is(err, storage.ErrInvalidAnnotation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.internalError(w, op, err)
	}
}

// internalError logs and reports a 500.
func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", "op", op, "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// writeJSON encodes a JSON response body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
