// Package anchor converts transient text selections into durable,
// serializable anchors and reprojects them back onto a live document tree.
//
// An anchor stores only keys: a content-addressed section id and rune
// offsets within that section's text. Resolution performs a fresh lookup
// every time; nothing in this package holds on to tree nodes between calls
// except the codec's side table of synthesized ids, which is keyed by node
// identity and becomes irrelevant when the tree is re-parsed.
package anchor

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/serroba/doc-annotations/internal/dom"
)

// Common errors.
var (
	ErrNoSection       = errors.New("no qualifying section ancestor")
	ErrSectionNotFound = errors.New("section not found")
	ErrTextMismatch    = errors.New("anchored text mismatch")
)

// Anchor is a durable reference to a span of text inside a section.
// Offsets are rune offsets relative to the section's own concatenated text.
type Anchor struct {
	SectionID string `json:"sectionId"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
}

// Valid reports whether the anchor satisfies its structural invariants.
func (a Anchor) Valid() bool {
	return a.SectionID != "" && a.Start >= 0 && a.Start < a.End
}

// slugLeadRunes is how much of a section's leading text feeds its id.
const slugLeadRunes = 40

// Codec derives section ids and converts between ranges and anchors.
// It is safe for concurrent use.
type Codec struct {
	mu  sync.Mutex
	ids map[*html.Node]string // side table of synthesized section ids
}

// NewCodec creates a codec with an empty side table.
func NewCodec() *Codec {
	return &Codec{ids: make(map[*html.Node]string)}
}

// SectionID returns the durable id for a section element. An explicit id
// attribute wins; otherwise the id is synthesized from the element's tag
// and leading text, and memoized so repeated derivations within one tree
// are free. The element itself is never mutated.
func (c *Codec) SectionID(el *html.Node) string {
	if id := dom.AttrVal(el, "id"); id != "" {
		return id
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.ids[el]; ok {
		return id
	}

	id := fmt.Sprintf("section-%s-%s", leadingSlug(dom.Text(el)), el.Data)
	c.ids[el] = id

	return id
}

// leadingSlug reduces the leading runes of text to the lowercase
// alphanumeric characters that identify a section. The same logical
// paragraph keeps the same slug across re-renders while its leading text
// is unchanged.
func leadingSlug(text string) string {
	var sb strings.Builder

	seen := 0

	for _, r := range strings.TrimSpace(text) {
		if seen >= slugLeadRunes {
			break
		}

		seen++

		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToLower(r))
		}
	}

	return sb.String()
}

// Encode converts a selection range into an anchor. The section is the
// nearest ancestor of the selection start that carries an id attribute or
// is a block-level tag; the container root itself is the fallback sentinel
// when no such ancestor exists. ErrNoSection is returned when the selection
// lies outside the root entirely.
func (c *Codec) Encode(r *dom.Range, root *html.Node) (Anchor, error) {
	if r.Collapsed() || !dom.Contains(root, r.StartNode) {
		return Anchor{}, ErrNoSection
	}

	section := c.sectionFor(r.StartNode, root)
	if section == nil {
		return Anchor{}, ErrNoSection
	}

	start, ok := dom.OffsetWithin(section, r.StartNode, r.StartOffset)
	if !ok {
		return Anchor{}, ErrNoSection
	}

	end, ok := dom.OffsetWithin(section, r.EndNode, r.EndOffset)
	if !ok {
		// Selection crosses out of the section: clamp to the section's
		// own text so the anchor still covers the in-section part.
		end = dom.TextLen(section)
	}

	if start >= end {
		return Anchor{}, ErrNoSection
	}

	return Anchor{
		SectionID: c.SectionID(section),
		Start:     start,
		End:       end,
	}, nil
}

// sectionFor walks upward from a node to the nearest qualifying section
// element, stopping at root. Root acts as the sentinel section when nothing
// closer qualifies.
func (c *Codec) sectionFor(n, root *html.Node) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode {
			if dom.AttrVal(cur, "id") != "" || dom.IsBlock(cur) {
				return cur
			}
		}

		if cur == root {
			if cur.Type == html.ElementNode {
				return cur
			}

			return dom.FindBody(cur)
		}
	}

	return nil
}

// FindSection locates the element under root whose section id matches.
// It is a fresh lookup by key on every call, never a cached reference.
func (c *Codec) FindSection(root *html.Node, sectionID string) *html.Node {
	var found *html.Node

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}

		if n.Type == html.ElementNode {
			if dom.AttrVal(n, "id") == sectionID {
				found = n

				return
			}

			if (dom.IsBlock(n) || n.DataAtom == atom.Body) && c.SectionID(n) == sectionID {
				found = n

				return
			}
		}

		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	return found
}

// Resolve reprojects an anchor onto the live tree and validates that the
// recovered text still matches the text captured at annotation time.
// The returned range aliases tree nodes and must not outlive the current
// reconciliation pass.
func (c *Codec) Resolve(a Anchor, root *html.Node, selectedText string) (*dom.Range, error) {
	if !a.Valid() {
		return nil, ErrSectionNotFound
	}

	section := c.FindSection(root, a.SectionID)
	if section == nil {
		return nil, ErrSectionNotFound
	}

	r, err := dom.RangeAt(section, a.Start, a.End)
	if err != nil {
		return nil, fmt.Errorf("resolve %s[%d:%d]: %w", a.SectionID, a.Start, a.End, err)
	}

	if strings.TrimSpace(r.Text()) != strings.TrimSpace(selectedText) {
		return nil, ErrTextMismatch
	}

	return r, nil
}
