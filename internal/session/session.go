// Package session coordinates annotation work for a single document: it
// owns the parsed content tree, schedules debounced reconciliation passes,
// and wires the store, permission checker, and WebSocket hub together.
package session

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/serroba/doc-annotations/internal/acl"
	"github.com/serroba/doc-annotations/internal/anchor"
	"github.com/serroba/doc-annotations/internal/dom"
	"github.com/serroba/doc-annotations/internal/marker"
	"github.com/serroba/doc-annotations/internal/selection"
	"github.com/serroba/doc-annotations/internal/storage"
	"github.com/serroba/doc-annotations/internal/ws"
)

// Common errors.
var (
	ErrSessionClosed = errors.New("session is closed")
	ErrEmptyContent  = errors.New("annotation content is empty")
	ErrEmptySelected = errors.New("selected text is empty")
	ErrInvalidKind   = errors.New("invalid annotation kind")
	ErrNotAuthor     = errors.New("not the annotation author")
)

// DefaultDebounce coalesces reconciliation triggers fired in quick
// succession into a single pass.
const DefaultDebounce = 100 * time.Millisecond

// Config holds configuration for creating a session.
type Config struct {
	DocID       string
	Store       storage.Store
	PermChecker *acl.Checker
	Hub         *ws.Hub
	Debounce    time.Duration
	Logger      *slog.Logger
}

// Session coordinates annotations for a single document.
// It is safe for concurrent use; reconciliation passes are serialized and
// each pass works against an immutable snapshot of the annotation set.
type Session struct {
	docID string

	// Dependencies
	store       storage.Store
	permChecker *acl.Checker
	hub         *ws.Hub
	codec       *anchor.Codec
	reconciler  *marker.Reconciler
	sanitizer   *bluemonday.Policy
	debounce    time.Duration
	logger      *slog.Logger

	mu         sync.Mutex
	doc        *dom.Document
	closed     bool
	timer      *time.Timer
	pending    bool
	lastResult marker.Result
}

// NewSession creates a new annotation session.
func NewSession(cfg Config) *Session {
	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = DefaultDebounce
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	codec := anchor.NewCodec()

	return &Session{
		docID:       cfg.DocID,
		store:       cfg.Store,
		permChecker: cfg.PermChecker,
		hub:         cfg.Hub,
		codec:       codec,
		reconciler:  marker.NewReconciler(codec, logger),
		sanitizer:   bluemonday.UGCPolicy(),
		debounce:    debounce,
		logger:      logger,
	}
}

// Load initializes the session by loading and parsing the document, then
// runs an initial reconciliation so rendered output is immediately correct.
func (s *Session) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	record, err := s.store.GetDocument(s.docID)
	if err != nil {
		return err
	}

	doc, err := dom.ParseString(record.HTML)
	if err != nil {
		return err
	}

	s.doc = doc

	return s.reconcileLocked()
}

// CreateInput describes an annotation to create.
type CreateInput struct {
	Kind         storage.Kind
	Content      string
	SelectedText string
	// Anchor is optional: when the client already encoded one it is
	// verified and used; otherwise the session derives an anchor from
	// the first occurrence of SelectedText in the document.
	Anchor *anchor.Anchor
}

// CreateAnnotation validates, anchors, persists, and broadcasts a new
// annotation, then schedules a reconciliation pass. Persistence is the one
// step whose failure reaches the caller: it risks data loss, unlike a
// failed resolution which costs at most a missing highlight.
func (s *Session) CreateAnnotation(userID string, in CreateInput) (storage.Annotation, error) {
	if err := s.requirePermission(userID, acl.ActionAnnotate); err != nil {
		return storage.Annotation{}, err
	}

	a, err := s.buildAnnotation(userID, in)
	if err != nil {
		return storage.Annotation{}, err
	}

	if err := s.store.CreateAnnotation(a); err != nil {
		return storage.Annotation{}, err
	}

	if s.hub != nil {
		s.hub.BroadcastAnnotationEvent(ws.MessageTypeAnnotationCreated,
			s.docID, a.ID, string(a.Kind), a.Author, "")
	}

	s.ScheduleReconcile()

	return a, nil
}

// CreateFromSnapshot creates an anchored annotation directly from a
// selection snapshot captured against this session's content tree.
func (s *Session) CreateFromSnapshot(userID string, kind storage.Kind, content string, snap *selection.Snapshot) (storage.Annotation, error) {
	if snap == nil {
		return storage.Annotation{}, ErrEmptySelected
	}

	in := CreateInput{
		Kind:         kind,
		Content:      content,
		SelectedText: snap.Text,
	}

	s.mu.Lock()

	if s.doc != nil {
		if anc, err := s.codec.Encode(snap.Range, s.doc.Body()); err == nil {
			in.Anchor = &anc
		} else {
			s.logger.Debug("selection could not be anchored, relying on content search",
				"document", s.docID, "error", err)
		}
	}

	s.mu.Unlock()

	return s.CreateAnnotation(userID, in)
}

// buildAnnotation normalizes the input into a persistable record.
func (s *Session) buildAnnotation(userID string, in CreateInput) (storage.Annotation, error) {
	if !in.Kind.Valid() {
		return storage.Annotation{}, ErrInvalidKind
	}

	a := storage.Annotation{
		ID:         uuid.New().String(),
		DocumentID: s.docID,
		Kind:       in.Kind,
		Author:     userID,
		CreatedAt:  time.Now(),
	}

	switch in.Kind {
	case storage.KindMark:
		a.Content = storage.MarkContent
	case storage.KindComment, storage.KindReply:
		content := strings.TrimSpace(s.sanitizer.Sanitize(in.Content))
		if content == "" {
			return storage.Annotation{}, ErrEmptyContent
		}

		a.Content = content
	}

	if in.Kind.Anchored() {
		selected := strings.TrimSpace(in.SelectedText)
		if selected == "" {
			return storage.Annotation{}, ErrEmptySelected
		}

		a.SelectedText = selected
		a.Anchor = s.anchorFor(in.Anchor, selected)
	}

	return a, nil
}

// anchorFor verifies a client-supplied anchor or derives one from the
// selected text. A nil result is acceptable: the annotation then relies on
// the reconciler's content-search fallback.
func (s *Session) anchorFor(supplied *anchor.Anchor, selected string) *anchor.Anchor {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		if supplied != nil && supplied.Valid() {
			return supplied
		}

		return nil
	}

	body := s.doc.Body()

	if supplied != nil && supplied.Valid() {
		if _, err := s.codec.Resolve(*supplied, body, selected); err != nil {
			s.logger.Warn("supplied anchor does not resolve, storing anyway",
				"document", s.docID, "section", supplied.SectionID, "error", err)
		}

		return supplied
	}

	return s.deriveAnchorLocked(body, selected)
}

// deriveAnchorLocked anchors the first occurrence of the selected text in
// the document body. Callers must hold the lock.
func (s *Session) deriveAnchorLocked(body *html.Node, selected string) *anchor.Anchor {
	text := dom.Text(body)

	idx := strings.Index(text, selected)
	if idx < 0 {
		s.logger.Debug("selected text not found in document, storing without anchor",
			"document", s.docID)

		return nil
	}

	start := utf8.RuneCountInString(text[:idx])
	end := start + utf8.RuneCountInString(selected)

	rng, err := dom.RangeAt(body, start, end)
	if err != nil {
		return nil
	}

	anc, err := s.codec.Encode(rng, body)
	if err != nil {
		return nil
	}

	return &anc
}

// UpdateAnnotationContent replaces an annotation's content body. Only the
// author may edit; the anchor is never touched.
func (s *Session) UpdateAnnotationContent(userID, id, content string) (storage.Annotation, error) {
	a, err := s.store.GetAnnotation(id)
	if err != nil {
		return storage.Annotation{}, err
	}

	if a.Author != userID {
		return storage.Annotation{}, ErrNotAuthor
	}

	if a.Kind != storage.KindMark {
		content = strings.TrimSpace(s.sanitizer.Sanitize(content))
		if content == "" {
			return storage.Annotation{}, ErrEmptyContent
		}
	}

	if err := s.store.UpdateAnnotationContent(id, content); err != nil {
		return storage.Annotation{}, err
	}

	a.Content = content

	if s.hub != nil {
		s.hub.BroadcastAnnotationEvent(ws.MessageTypeAnnotationUpdated,
			s.docID, a.ID, string(a.Kind), a.Author, "")
	}

	return a, nil
}

// RemoveAnnotation deletes an annotation. The author may always remove
// their own; anyone with manage permission may remove any.
func (s *Session) RemoveAnnotation(userID, id string) error {
	a, err := s.store.GetAnnotation(id)
	if err != nil {
		return err
	}

	if a.Author != userID {
		if err := s.requirePermission(userID, acl.ActionManage); err != nil {
			return err
		}
	}

	if err := s.store.RemoveAnnotation(id); err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastAnnotationEvent(ws.MessageTypeAnnotationRemoved,
			s.docID, a.ID, string(a.Kind), a.Author, "")
	}

	s.ScheduleReconcile()

	return nil
}

// Annotations returns the document's annotations.
func (s *Session) Annotations(userID string) ([]storage.Annotation, error) {
	if err := s.requirePermission(userID, acl.ActionRead); err != nil {
		return nil, err
	}

	return s.store.ListAnnotations(s.docID)
}

// RenderedHTML returns the document with markers painted. A pending
// debounced pass is flushed first so the output reflects the current
// annotation set.
func (s *Session) RenderedHTML(userID string) (string, error) {
	if err := s.requirePermission(userID, acl.ActionRead); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrSessionClosed
	}

	if s.pending {
		s.cancelTimerLocked()
		s.pending = false

		if err := s.reconcileLocked(); err != nil {
			return "", err
		}
	}

	return s.doc.Render(), nil
}

// ReplaceContent swaps the document's HTML. Existing annotations keep
// their anchors; the next reconciliation re-resolves them against the new
// tree (falling back to content search where the structure changed).
func (s *Session) ReplaceContent(userID, rawHTML string) error {
	if err := s.requirePermission(userID, acl.ActionManage); err != nil {
		return err
	}

	doc, err := dom.ParseString(rawHTML)
	if err != nil {
		return err
	}

	if err := s.store.UpdateDocumentHTML(s.docID, rawHTML); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	s.doc = doc
	s.scheduleLocked()

	return nil
}

// ScheduleReconcile arms (or re-arms) the debounced reconciliation timer.
// Triggers fired in quick succession coalesce into a single pass.
func (s *Session) ScheduleReconcile() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.scheduleLocked()
}

// scheduleLocked arms the timer. Callers must hold the lock.
func (s *Session) scheduleLocked() {
	s.pending = true

	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.runScheduled)

		return
	}

	s.timer.Reset(s.debounce)
}

// runScheduled executes a debounced pass.
func (s *Session) runScheduled() {
	s.mu.Lock()

	if s.closed || !s.pending {
		s.mu.Unlock()

		return
	}

	s.pending = false

	err := s.reconcileLocked()
	result := s.lastResult

	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("scheduled reconciliation failed", "document", s.docID, "error", err)

		return
	}

	if s.hub != nil {
		s.hub.BroadcastReconciled(s.docID, len(result.Applied), len(result.Fallback), len(result.Skipped))
	}
}

// Reconcile forces an immediate pass, bypassing the debounce.
func (s *Session) Reconcile() (marker.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return marker.Result{}, ErrSessionClosed
	}

	s.cancelTimerLocked()
	s.pending = false

	if err := s.reconcileLocked(); err != nil {
		return marker.Result{}, err
	}

	return s.lastResult, nil
}

// reconcileLocked runs one pass against a point-in-time snapshot of the
// annotation set. Callers must hold the lock; the lock serializes passes
// so no pass ever observes a partially mutated tree.
func (s *Session) reconcileLocked() error {
	annotations, err := s.store.ListAnnotations(s.docID)
	if err != nil {
		return err
	}

	s.lastResult = s.reconciler.Reconcile(s.doc.Body(), annotations)

	return nil
}

// LastResult returns the outcome of the most recent reconciliation pass.
func (s *Session) LastResult() marker.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastResult
}

// DocID returns the document ID for this session.
func (s *Session) DocID() string {
	return s.docID
}

// requirePermission checks the user's permission when a checker is
// configured; an unconfigured session allows everything.
func (s *Session) requirePermission(userID string, action acl.Action) error {
	if s.permChecker == nil {
		return nil
	}

	return s.permChecker.RequirePermission(s.docID, userID, action)
}

// cancelTimerLocked stops the debounce timer. Callers must hold the lock.
func (s *Session) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

// Close cancels pending work and stops the session. No reconciliation
// fires after Close returns.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.pending = false
	s.cancelTimerLocked()

	return nil
}
