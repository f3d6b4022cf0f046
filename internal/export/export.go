// Package export renders a document together with its annotations as a
// Markdown report: the converted document body followed by the highlights,
// comments, and replies, each quoting the text they were attached to.
package export

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/serroba/doc-annotations/internal/storage"
)

// Markdown converts the document and its annotation set to Markdown.
// Annotations appear in creation order, grouped by kind.
func Markdown(doc storage.Document, annotations []storage.Annotation) (string, error) {
	body, err := htmltomarkdown.ConvertString(doc.HTML)
	if err != nil {
		return "", fmt.Errorf("convert document: %w", err)
	}

	var sb strings.Builder

	title := doc.Title
	if title == "" {
		title = doc.ID
	}

	fmt.Fprintf(&sb, "# %s\n\n", title)
	sb.WriteString(strings.TrimSpace(body))
	sb.WriteString("\n")

	writeKind(&sb, "Highlights", storage.KindMark, annotations)
	writeKind(&sb, "Comments", storage.KindComment, annotations)
	writeKind(&sb, "Replies", storage.KindReply, annotations)

	return sb.String(), nil
}

// writeKind appends one annotation group, or nothing when the group is
// empty.
func writeKind(sb *strings.Builder, heading string, kind storage.Kind, annotations []storage.Annotation) {
	var group []storage.Annotation

	for _, a := range annotations {
		if a.Kind == kind {
			group = append(group, a)
		}
	}

	if len(group) == 0 {
		return
	}

	fmt.Fprintf(sb, "\n## %s\n", heading)

	for _, a := range group {
		sb.WriteString("\n")

		if a.SelectedText != "" {
			fmt.Fprintf(sb, "> %s\n", a.SelectedText)
		}

		switch kind {
		case storage.KindMark:
			// The quote is the highlight; no body to add.
		default:
			fmt.Fprintf(sb, "%s\n", a.Content)
		}

		if a.Author != "" {
			fmt.Fprintf(sb, "by %s\n", a.Author)
		}
	}
}
