package dom

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// ErrOffsetOutOfRange is returned when a requested offset lies beyond the
// text content of the subtree.
var ErrOffsetOutOfRange = errors.New("offset out of range")

// TextNodes returns the text nodes under root in document order, skipping
// invisible subtrees (script, style, noscript, template).
func TextNodes(root *html.Node) []*html.Node {
	var nodes []*html.Node

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if skippable(n) {
			return
		}

		if n.Type == html.TextNode {
			nodes = append(nodes, n)

			return
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return nodes
}

// Text returns the concatenated raw text of the subtree. Unlike display
// text extraction, nothing is trimmed or joined: the result is offset-exact.
func Text(root *html.Node) string {
	var sb strings.Builder

	for _, n := range TextNodes(root) {
		sb.WriteString(n.Data)
	}

	return sb.String()
}

// TextLen returns the rune length of the subtree's concatenated text.
func TextLen(root *html.Node) int {
	total := 0

	for _, n := range TextNodes(root) {
		total += utf8.RuneCountInString(n.Data)
	}

	return total
}

// Contains reports whether n is root or a descendant of root.
func Contains(root, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}

	return false
}

// OffsetWithin converts a (text node, rune offset inside that node) boundary
// into a rune offset within root's concatenated text. The second return
// value is false when node is not a text node under root.
func OffsetWithin(root, node *html.Node, offsetInNode int) (int, bool) {
	total := 0

	for _, n := range TextNodes(root) {
		if n == node {
			nodeLen := utf8.RuneCountInString(n.Data)
			if offsetInNode < 0 || offsetInNode > nodeLen {
				return 0, false
			}

			return total + offsetInNode, true
		}

		total += utf8.RuneCountInString(n.Data)
	}

	return 0, false
}

// RangeAt maps [start, end) rune offsets within root's concatenated text to
// a Range whose boundaries land in the covering text nodes. A boundary that
// falls exactly between two text nodes lands at the start of the later node
// for start offsets and at the end of the earlier node for end offsets, so
// the range never includes empty leading or trailing nodes.
func RangeAt(root *html.Node, start, end int) (*Range, error) {
	if start < 0 || end <= start {
		return nil, ErrOffsetOutOfRange
	}

	var r Range

	total := 0

	for _, n := range TextNodes(root) {
		nodeLen := utf8.RuneCountInString(n.Data)
		if nodeLen == 0 {
			continue
		}

		// Start boundary: first node whose span reaches past start.
		if r.StartNode == nil && total+nodeLen > start {
			r.StartNode = n
			r.StartOffset = start - total
		}

		// End boundary: first node whose span reaches end.
		if r.StartNode != nil && total+nodeLen >= end {
			r.EndNode = n
			r.EndOffset = end - total

			return &r, nil
		}

		total += nodeLen
	}

	return nil, ErrOffsetOutOfRange
}

// nextNode returns the node following n in document order.
func nextNode(n *html.Node) *html.Node {
	if n.FirstChild != nil {
		return n.FirstChild
	}

	for ; n != nil; n = n.Parent {
		if n.NextSibling != nil {
			return n.NextSibling
		}
	}

	return nil
}
