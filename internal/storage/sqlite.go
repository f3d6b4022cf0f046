package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/serroba/doc-annotations/internal/anchor"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// schema contains the complete DDL for the annotation tables.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL DEFAULT '',
    html       TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS annotations (
    id            TEXT PRIMARY KEY,
    document_id   TEXT NOT NULL,
    kind          TEXT NOT NULL,
    content       TEXT NOT NULL DEFAULT '',
    selected_text TEXT NOT NULL DEFAULT '',
    section_id    TEXT,
    start_offset  INTEGER,
    end_offset    INTEGER,
    author        TEXT NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL,
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_annotations_document ON annotations(document_id, created_at);
`

// SQLiteStore is a Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the annotation database at path and
// applies the schema. Pragmas go through the DSN so every pooled
// connection gets them.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateDocument stores a new document.
func (s *SQLiteStore) CreateDocument(doc Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	res, err := s.db.Exec(
		`INSERT INTO documents (id, title, html, created_at)
		 SELECT ?, ?, ?, ?
		 WHERE NOT EXISTS (SELECT 1 FROM documents WHERE id = ?)`,
		doc.ID, doc.Title, doc.HTML, doc.CreatedAt.Unix(), doc.ID)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}

	if n == 0 {
		return ErrDocumentExists
	}

	return nil
}

// GetDocument retrieves a document by ID.
func (s *SQLiteStore) GetDocument(docID string) (Document, error) {
	var (
		doc     Document
		created int64
	)

	err := s.db.QueryRow(
		`SELECT id, title, html, created_at FROM documents WHERE id = ?`, docID).
		Scan(&doc.ID, &doc.Title, &doc.HTML, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrDocumentNotFound
	}

	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}

	doc.CreatedAt = time.Unix(created, 0)

	return doc, nil
}

// DocumentExists checks if a document exists.
func (s *SQLiteStore) DocumentExists(docID string) (bool, error) {
	var one int

	err := s.db.QueryRow(`SELECT 1 FROM documents WHERE id = ?`, docID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("document exists: %w", err)
	}

	return true, nil
}

// UpdateDocumentHTML replaces a document's content.
func (s *SQLiteStore) UpdateDocumentHTML(docID, rawHTML string) error {
	res, err := s.db.Exec(`UPDATE documents SET html = ? WHERE id = ?`, rawHTML, docID)
	if err != nil {
		return fmt.Errorf("update document html: %w", err)
	}

	return requireRow(res, ErrDocumentNotFound)
}

// DeleteDocument removes a document and all of its annotations.
func (s *SQLiteStore) DeleteDocument(docID string) error {
	res, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, docID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	return requireRow(res, ErrDocumentNotFound)
}

// ListAnnotations returns a document's annotations in creation order.
func (s *SQLiteStore) ListAnnotations(docID string) ([]Annotation, error) {
	exists, err := s.DocumentExists(docID)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, ErrDocumentNotFound
	}

	rows, err := s.db.Query(
		`SELECT id, document_id, kind, content, selected_text,
		        section_id, start_offset, end_offset, author, created_at
		 FROM annotations WHERE document_id = ?
		 ORDER BY created_at, id`, docID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()

	var out []Annotation

	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}

	return out, nil
}

// GetAnnotation retrieves an annotation by ID.
func (s *SQLiteStore) GetAnnotation(id string) (Annotation, error) {
	row := s.db.QueryRow(
		`SELECT id, document_id, kind, content, selected_text,
		        section_id, start_offset, end_offset, author, created_at
		 FROM annotations WHERE id = ?`, id)

	a, err := scanAnnotation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Annotation{}, ErrAnnotationNotFound
	}

	if err != nil {
		return Annotation{}, err
	}

	return a, nil
}

// CreateAnnotation stores a new annotation.
func (s *SQLiteStore) CreateAnnotation(a Annotation) error {
	if err := validate(a); err != nil {
		return err
	}

	exists, err := s.DocumentExists(a.DocumentID)
	if err != nil {
		return err
	}

	if !exists {
		return ErrDocumentNotFound
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	var sectionID sql.NullString

	var startOff, endOff sql.NullInt64

	if a.Anchor != nil {
		sectionID = sql.NullString{String: a.Anchor.SectionID, Valid: true}
		startOff = sql.NullInt64{Int64: int64(a.Anchor.Start), Valid: true}
		endOff = sql.NullInt64{Int64: int64(a.Anchor.End), Valid: true}
	}

	_, err = s.db.Exec(
		`INSERT INTO annotations (
		    id, document_id, kind, content, selected_text,
		    section_id, start_offset, end_offset, author, created_at
		 ) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.DocumentID, string(a.Kind), a.Content, a.SelectedText,
		sectionID, startOff, endOff, a.Author, a.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create annotation: %w", err)
	}

	return nil
}

// UpdateAnnotationContent replaces an annotation's content body.
func (s *SQLiteStore) UpdateAnnotationContent(id, content string) error {
	res, err := s.db.Exec(`UPDATE annotations SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return fmt.Errorf("update annotation content: %w", err)
	}

	return requireRow(res, ErrAnnotationNotFound)
}

// RemoveAnnotation deletes an annotation.
func (s *SQLiteStore) RemoveAnnotation(id string) error {
	res, err := s.db.Exec(`DELETE FROM annotations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove annotation: %w", err)
	}

	return requireRow(res, ErrAnnotationNotFound)
}

// DeleteAnnotationsBefore removes annotations created before the cutoff.
func (s *SQLiteStore) DeleteAnnotationsBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM annotations WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete annotations before: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete annotations before: %w", err)
	}

	return int(n), nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanAnnotation reads one annotation row.
func scanAnnotation(row scanner) (Annotation, error) {
	var (
		a         Annotation
		kind      string
		sectionID sql.NullString
		startOff  sql.NullInt64
		endOff    sql.NullInt64
		created   int64
	)

	err := row.Scan(&a.ID, &a.DocumentID, &kind, &a.Content, &a.SelectedText,
		&sectionID, &startOff, &endOff, &a.Author, &created)
	if err != nil {
		return Annotation{}, err
	}

	a.Kind = Kind(kind)
	a.CreatedAt = time.Unix(created, 0)

	if sectionID.Valid {
		a.Anchor = &anchor.Anchor{
			SectionID: sectionID.String,
			Start:     int(startOff.Int64),
			End:       int(endOff.Int64),
		}
	}

	return a, nil
}

// requireRow converts a zero-row result into the given sentinel error.
func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return missing
	}

	return nil
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
