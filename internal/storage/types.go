package storage

import (
	"time"

	"github.com/serroba/doc-annotations/internal/anchor"
)

// Kind classifies an annotation record.
type Kind string

// Annotation kinds.
const (
	// KindMark is a pure highlight with no authored body.
	KindMark Kind = "mark"
	// KindComment is an authored note attached to a text span.
	KindComment Kind = "comment"
	// KindReply is an authored note attached to the document as a whole.
	KindReply Kind = "reply"
)

// MarkContent is the fixed content body stored for every mark. Marks carry
// no authored text; the constant keeps the record shape uniform.
const MarkContent = "highlight"

// Valid reports whether the kind is one of the known annotation kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindMark, KindComment, KindReply:
		return true
	}

	return false
}

// Anchored reports whether the kind attaches to a text span. Replies attach
// to the document as a whole and carry no anchor.
func (k Kind) Anchored() bool {
	return k == KindMark || k == KindComment
}

// Annotation is one persisted annotation record. The anchor may be nil for
// replies, and for anchored annotations created before an anchor could be
// derived; those place by content search only.
type Annotation struct {
	ID           string         `json:"id"`
	DocumentID   string         `json:"documentId"`
	Kind         Kind           `json:"kind"`
	Content      string         `json:"content"`
	SelectedText string         `json:"selectedText,omitempty"`
	Anchor       *anchor.Anchor `json:"anchor,omitempty"`
	Author       string         `json:"author"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Document is a stored document: the raw HTML plus identity metadata.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	HTML      string    `json:"html"`
	CreatedAt time.Time `json:"createdAt"`
}
