// Package dom provides the document-tree primitives the anchoring engine
// works on: parsing, rune-exact text offsets, ranges between text-node
// boundaries, and the tree mutations needed to paint and remove markers.
//
// All offsets in this package are rune offsets. Text is concatenated raw
// from text nodes (no trimming or whitespace collapsing), so offsets stay
// byte-for-byte stable across marker insertion and removal.
package dom

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document wraps a parsed HTML tree.
type Document struct {
	root *html.Node
}

// Parse reads and parses an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	return &Document{root: root}, nil
}

// ParseString parses an HTML document from a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document root node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Body returns the <body> element, or the root if none exists.
func (d *Document) Body() *html.Node {
	if body := FindBody(d.root); body != nil {
		return body
	}

	return d.root
}

// Render serializes the document back to HTML.
func (d *Document) Render() string {
	return Render(d.root)
}

// Render serializes a node subtree to HTML.
func Render(n *html.Node) string {
	var buf bytes.Buffer

	_ = html.Render(&buf, n)

	return buf.String()
}

// FindBody locates the <body> element under the given node.
func FindBody(root *html.Node) *html.Node {
	var body *html.Node

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if body != nil {
			return
		}

		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n

			return
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return body
}

// AttrVal returns the value of the named attribute, or "" if absent.
func AttrVal(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}

	return ""
}

// IsBlock reports whether the element is a block-level content tag usable
// as a section (the coarse addressing unit for anchors).
func IsBlock(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}

	switch n.DataAtom {
	case atom.P, atom.Div, atom.Section, atom.Article,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Li, atom.Blockquote, atom.Pre, atom.Td, atom.Th,
		atom.Figcaption, atom.Dd, atom.Dt:
		return true
	}

	return false
}

// skippable reports whether a subtree carries no visible text.
func skippable(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template:
		return true
	}

	return false
}
