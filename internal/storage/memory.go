package storage

import (
	"sync"
	"time"
)

// documentData holds all persisted data for a single document.
type documentData struct {
	doc         Document
	annotations []Annotation // creation order
}

// MemoryStore is an in-memory implementation of the Store interface.
// Useful for testing and development.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]*documentData
	index map[string]string // annotation ID -> document ID
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string]*documentData),
		index: make(map[string]string),
	}
}

// CreateDocument stores a new document.
func (m *MemoryStore) CreateDocument(doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.docs[doc.ID]; exists {
		return ErrDocumentExists
	}

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	m.docs[doc.ID] = &documentData{doc: doc}

	return nil
}

// GetDocument retrieves a document by ID.
func (m *MemoryStore) GetDocument(docID string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.docs[docID]
	if !exists {
		return Document{}, ErrDocumentNotFound
	}

	return data.doc, nil
}

// DocumentExists checks if a document exists.
func (m *MemoryStore) DocumentExists(docID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.docs[docID]

	return exists, nil
}

// UpdateDocumentHTML replaces a document's content.
func (m *MemoryStore) UpdateDocumentHTML(docID, rawHTML string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, exists := m.docs[docID]
	if !exists {
		return ErrDocumentNotFound
	}

	data.doc.HTML = rawHTML

	return nil
}

// DeleteDocument removes a document and all of its annotations.
func (m *MemoryStore) DeleteDocument(docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, exists := m.docs[docID]
	if !exists {
		return ErrDocumentNotFound
	}

	for _, a := range data.annotations {
		delete(m.index, a.ID)
	}

	delete(m.docs, docID)

	return nil
}

// ListAnnotations returns a document's annotations in creation order.
func (m *MemoryStore) ListAnnotations(docID string) ([]Annotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.docs[docID]
	if !exists {
		return nil, ErrDocumentNotFound
	}

	out := make([]Annotation, len(data.annotations))
	copy(out, data.annotations)

	return out, nil
}

// GetAnnotation retrieves an annotation by ID.
func (m *MemoryStore) GetAnnotation(id string) (Annotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, _, _, ok := m.findLocked(id)
	if !ok {
		return Annotation{}, ErrAnnotationNotFound
	}

	return a, nil
}

// CreateAnnotation stores a new annotation.
func (m *MemoryStore) CreateAnnotation(a Annotation) error {
	if err := validate(a); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, exists := m.docs[a.DocumentID]
	if !exists {
		return ErrDocumentNotFound
	}

	if _, taken := m.index[a.ID]; taken {
		return ErrInvalidAnnotation
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	data.annotations = append(data.annotations, a)
	m.index[a.ID] = a.DocumentID

	return nil
}

// UpdateAnnotationContent replaces an annotation's content body.
func (m *MemoryStore) UpdateAnnotationContent(id, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, data, i, ok := m.findLocked(id)
	if !ok {
		return ErrAnnotationNotFound
	}

	data.annotations[i].Content = content

	return nil
}

// RemoveAnnotation deletes an annotation.
func (m *MemoryStore) RemoveAnnotation(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, data, i, ok := m.findLocked(id)
	if !ok {
		return ErrAnnotationNotFound
	}

	data.annotations = append(data.annotations[:i], data.annotations[i+1:]...)
	delete(m.index, id)

	return nil
}

// DeleteAnnotationsBefore removes annotations created before the cutoff.
func (m *MemoryStore) DeleteAnnotationsBefore(cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0

	for _, data := range m.docs {
		kept := data.annotations[:0]

		for _, a := range data.annotations {
			if a.CreatedAt.Before(cutoff) {
				delete(m.index, a.ID)
				removed++

				continue
			}

			kept = append(kept, a)
		}

		data.annotations = kept
	}

	return removed, nil
}

// findLocked locates an annotation by ID. Callers must hold the lock.
func (m *MemoryStore) findLocked(id string) (Annotation, *documentData, int, bool) {
	docID, ok := m.index[id]
	if !ok {
		return Annotation{}, nil, 0, false
	}

	data := m.docs[docID]

	for i, a := range data.annotations {
		if a.ID == id {
			return a, data, i, true
		}
	}

	return Annotation{}, nil, 0, false
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
