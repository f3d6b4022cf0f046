package dom

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Range identifies a contiguous span of text between two text-node
// boundaries, in the style of a DOM range restricted to text nodes.
// Offsets are rune offsets within the boundary nodes.
//
// A Range aliases live tree nodes: it is only valid until the next tree
// mutation and must never be retained across a reconciliation pass.
type Range struct {
	StartNode   *html.Node
	StartOffset int
	EndNode     *html.Node
	EndOffset   int
}

// Collapsed reports whether the range covers no text.
func (r *Range) Collapsed() bool {
	if r == nil || r.StartNode == nil || r.EndNode == nil {
		return true
	}

	return r.StartNode == r.EndNode && r.StartOffset >= r.EndOffset
}

// Clone returns an independent copy of the range. The copy still references
// the same tree nodes; cloning protects against later mutation of the
// source range value, not of the tree.
func (r *Range) Clone() *Range {
	if r == nil {
		return nil
	}

	c := *r

	return &c
}

// Text returns the text covered by the range.
func (r *Range) Text() string {
	if r.Collapsed() {
		return ""
	}

	startRunes := []rune(r.StartNode.Data)

	if r.StartNode == r.EndNode {
		start, end := boundOffsets(len(startRunes), r.StartOffset, r.EndOffset)

		return string(startRunes[start:end])
	}

	var sb strings.Builder

	start, _ := boundOffsets(len(startRunes), r.StartOffset, len(startRunes))
	sb.WriteString(string(startRunes[start:]))

	for n := nextNode(r.StartNode); n != nil && n != r.EndNode; n = nextNode(n) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
	}

	endRunes := []rune(r.EndNode.Data)

	end := r.EndOffset
	if end > len(endRunes) {
		end = len(endRunes)
	}

	if end > 0 {
		sb.WriteString(string(endRunes[:end]))
	}

	return sb.String()
}

// boundOffsets clamps a [start, end) pair into [0, n].
func boundOffsets(n, start, end int) (int, int) {
	if start < 0 {
		start = 0
	}

	if start > n {
		start = n
	}

	if end < start {
		end = start
	}

	if end > n {
		end = n
	}

	return start, end
}

// TrimWhitespace moves the range boundaries inward past leading and
// trailing whitespace. It returns false when the range contains only
// whitespace (or nothing), in which case the range is left untouched.
func (r *Range) TrimWhitespace() bool {
	text := r.Text()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	lead := utf8.RuneCountInString(text) - utf8.RuneCountInString(strings.TrimLeft(text, " \t\n\r\f\v"))
	trail := utf8.RuneCountInString(text) - utf8.RuneCountInString(strings.TrimRight(text, " \t\n\r\f\v"))

	r.advanceStart(lead)
	r.retreatEnd(trail)

	return true
}

// advanceStart moves the start boundary forward by n runes, walking into
// following text nodes as needed.
func (r *Range) advanceStart(n int) {
	for n > 0 {
		avail := utf8.RuneCountInString(r.StartNode.Data) - r.StartOffset
		if avail > n {
			r.StartOffset += n

			return
		}

		next := nextTextNode(r.StartNode)
		if next == nil {
			r.StartOffset += avail

			return
		}

		n -= avail
		r.StartNode = next
		r.StartOffset = 0
	}
}

// retreatEnd moves the end boundary backward by n runes, walking into
// preceding text nodes as needed.
func (r *Range) retreatEnd(n int) {
	for n > 0 {
		if r.EndOffset > n {
			r.EndOffset -= n

			return
		}

		prev := prevTextNode(r.EndNode)
		if prev == nil {
			r.EndOffset = 0

			return
		}

		n -= r.EndOffset
		r.EndNode = prev
		r.EndOffset = utf8.RuneCountInString(prev.Data)
	}
}

// nextTextNode returns the next text node in document order after n.
func nextTextNode(n *html.Node) *html.Node {
	for c := nextNode(n); c != nil; c = nextNode(c) {
		if c.Type == html.TextNode {
			return c
		}
	}

	return nil
}

// prevTextNode returns the previous text node in document order before n.
func prevTextNode(n *html.Node) *html.Node {
	var prev *html.Node

	root := n
	for root.Parent != nil {
		root = root.Parent
	}

	for c := root; c != nil && c != n; c = nextNode(c) {
		if c.Type == html.TextNode {
			prev = c
		}
	}

	return prev
}
