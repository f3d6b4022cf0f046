package storage

import (
	"errors"
	"time"
)

// Common errors.
var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrDocumentExists     = errors.New("document already exists")
	ErrAnnotationNotFound = errors.New("annotation not found")
	ErrInvalidAnnotation  = errors.New("invalid annotation")
)

// Store defines the interface for persisting documents and annotations.
// Implementations can use in-memory storage, databases, or other backends.
//
// The anchor embedded in an annotation must round-trip unchanged: the two
// numeric offsets and the section id are the only bit-exact contract this
// service owns.
type Store interface {
	// CreateDocument stores a new document.
	// Returns ErrDocumentExists if the ID is already taken.
	CreateDocument(doc Document) error

	// GetDocument retrieves a document by ID.
	// Returns ErrDocumentNotFound if it doesn't exist.
	GetDocument(docID string) (Document, error)

	// DocumentExists checks if a document exists.
	DocumentExists(docID string) (bool, error)

	// UpdateDocumentHTML replaces a document's content. Annotations are
	// untouched; their anchors are re-resolved on the next reconciliation.
	// Returns ErrDocumentNotFound if the document doesn't exist.
	UpdateDocumentHTML(docID, rawHTML string) error

	// DeleteDocument removes a document and all of its annotations.
	// Returns ErrDocumentNotFound if the document doesn't exist.
	DeleteDocument(docID string) error

	// ListAnnotations returns a document's annotations in creation order.
	// Returns ErrDocumentNotFound if the document doesn't exist.
	ListAnnotations(docID string) ([]Annotation, error)

	// GetAnnotation retrieves an annotation by ID.
	// Returns ErrAnnotationNotFound if it doesn't exist.
	GetAnnotation(id string) (Annotation, error)

	// CreateAnnotation stores a new annotation.
	// Returns ErrInvalidAnnotation if required fields are missing and
	// ErrDocumentNotFound if the owning document doesn't exist.
	CreateAnnotation(a Annotation) error

	// UpdateAnnotationContent replaces an annotation's content body.
	// The anchor is never touched.
	// Returns ErrAnnotationNotFound if the annotation doesn't exist.
	UpdateAnnotationContent(id, content string) error

	// RemoveAnnotation deletes an annotation.
	// Returns ErrAnnotationNotFound if it doesn't exist.
	RemoveAnnotation(id string) error

	// DeleteAnnotationsBefore removes annotations created before the
	// cutoff, across all documents, and reports how many were removed.
	// Used by dev-mode retention cleanup.
	DeleteAnnotationsBefore(cutoff time.Time) (int, error)
}

// validate checks the structural invariants of an annotation record.
func validate(a Annotation) error {
	if a.ID == "" || a.DocumentID == "" || !a.Kind.Valid() {
		return ErrInvalidAnnotation
	}

	if a.Kind.Anchored() && a.SelectedText == "" {
		return ErrInvalidAnnotation
	}

	if a.Anchor != nil && !a.Anchor.Valid() {
		return ErrInvalidAnnotation
	}

	return nil
}
