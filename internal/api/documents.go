package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/serroba/doc-annotations/internal/acl"
	"github.com/serroba/doc-annotations/internal/export"
	"github.com/serroba/doc-annotations/internal/storage"
)

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// handleCreateDocument handles POST /documents.
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	if req.ID == "" {
		http.Error(w, "document ID is required", http.StatusBadRequest)

		return
	}

	doc := storage.Document{
		ID:    req.ID,
		Title: req.Title,
		HTML:  req.HTML,
	}

	if err := s.store.CreateDocument(doc); err != nil {
		if errors.Is(err, storage.ErrDocumentExists) {
			http.Error(w, "document already exists", http.StatusConflict)

			return
		}

		s.internalError(w, "create document", err)

		return
	}

	// Grant the creator Owner role if ACL store is configured
	userID := UserIDFromContext(r.Context())
	if s.permStore != nil && userID != "" {
		_ = s.permStore.Grant(req.ID, userID, acl.Owner)
	}

	s.writeJSON(w, http.StatusCreated, doc)
}

// handleGetDocument handles GET /documents/{docID}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")

	doc, err := s.store.GetDocument(docID)
	if err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			http.Error(w, "document not found", http.StatusNotFound)

			return
		}

		s.internalError(w, "get document", err)

		return
	}

	s.writeJSON(w, http.StatusOK, doc)
}

// RenderedDocumentResponse is the response body for the rendered document.
type RenderedDocumentResponse struct {
	ID       string `json:"id"`
	HTML     string `json:"html"`
	Applied  int    `json:"applied"`
	Fallback int    `json:"fallback"`
	Skipped  int    `json:"skipped"`
}

// handleRenderedDocument handles GET /documents/{docID}/rendered. The
// response carries the document HTML with annotation markers painted in.
func (s *Server) handleRenderedDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	userID := UserIDFromContext(r.Context())

	sess, ok := s.getSession(w, docID)
	if !ok {
		return
	}

	rendered, err := sess.RenderedHTML(userID)
	if err != nil {
		s.sessionError(w, "render document", err)

		return
	}

	result := sess.LastResult()

	s.writeJSON(w, http.StatusOK, RenderedDocumentResponse{
		ID:       docID,
		HTML:     rendered,
		Applied:  len(result.Applied),
		Fallback: len(result.Fallback),
		Skipped:  len(result.Skipped),
	})
}

// handleReplaceContent handles PUT /documents/{docID}/content. The body is
// the raw replacement HTML.
func (s *Server) handleReplaceContent(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	userID := UserIDFromContext(r.Context())

	rawHTML, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	sess, ok := s.getSession(w, docID)
	if !ok {
		return
	}

	if err := sess.ReplaceContent(userID, string(rawHTML)); err != nil {
		s.sessionError(w, "replace content", err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleExportDocument handles GET /documents/{docID}/export.
func (s *Server) handleExportDocument(w http.ResponseWriter, r *http.Request) {
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

	doc, err := s.store.GetDocument(docID)
	if err != nil {
		s.internalError(w, "get document", err)

		return
	}

	markdown, err := export.Markdown(doc, annotations)
	if err != nil {
		s.internalError(w, "export document", err)

		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(markdown))
}

// handleDeleteDocument handles DELETE /documents/{docID}.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	userID := UserIDFromContext(r.Context())

	// Check manage permission if ACL is configured
	if s.permStore != nil {
		checker := acl.NewChecker(s.permStore)
		if err := checker.RequirePermission(docID, userID, acl.ActionManage); err != nil {
			if errors.Is(err, acl.ErrAccessDenied) {
				http.Error(w, "access denied", http.StatusForbidden)

				return
			}

			s.internalError(w, "check permission", err)

			return
		}
	}

	// Close any active session first
	if err := s.manager.CloseSession(docID); err != nil {
		s.internalError(w, "close session", err)

		return
	}

	if err := s.store.DeleteDocument(docID); err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			http.Error(w, "document not found", http.StatusNotFound)

			return
		}

		s.internalError(w, "delete document", err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
