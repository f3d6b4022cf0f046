package dom

import (
	"golang.org/x/net/html"
)

// SplitText splits a text node at the given rune offset. The node keeps the
// text before the offset; a new sibling text node holding the rest is
// inserted directly after it and returned. Offsets at or beyond either end
// perform no split: the node itself is returned for offset <= 0, nil for
// offset >= length.
func SplitText(n *html.Node, offset int) *html.Node {
	runes := []rune(n.Data)

	if offset <= 0 {
		return n
	}

	if offset >= len(runes) {
		return nil
	}

	tail := &html.Node{
		Type: html.TextNode,
		Data: string(runes[offset:]),
	}
	n.Data = string(runes[:offset])

	n.Parent.InsertBefore(tail, n.NextSibling)

	return tail
}

// SliceTextNodes splits the boundary text nodes of the range so that the
// covered text is held by whole text nodes, and returns those nodes in
// document order. The range's text content is unchanged; only node
// boundaries move.
func SliceTextNodes(r *Range) []*html.Node {
	if r.Collapsed() {
		return nil
	}

	if r.StartNode == r.EndNode {
		node := r.StartNode
		end := r.EndOffset

		if tail := SplitText(node, r.StartOffset); tail != node && tail != nil {
			node = tail
			end -= r.StartOffset
		}

		SplitText(node, end)

		return []*html.Node{node}
	}

	first := r.StartNode
	if tail := SplitText(first, r.StartOffset); tail != nil {
		first = tail
	} else {
		// Start boundary sits at the very end of its node; the node
		// contributes nothing.
		first = nextTextNode(first)
	}

	last := r.EndNode

	if r.EndOffset <= 0 {
		// End boundary sits before the first rune of its node.
		last = prevTextNode(last)
	} else {
		SplitText(last, r.EndOffset)
	}

	if first == nil || last == nil {
		return nil
	}

	var covered []*html.Node

	for n := first; n != nil; n = nextNode(n) {
		if n.Type == html.TextNode && n.Data != "" {
			covered = append(covered, n)
		}

		if n == last {
			break
		}
	}

	return covered
}

// WrapNode moves a node inside a new wrapper element placed at the node's
// position in the tree.
func WrapNode(n *html.Node, wrapper *html.Node) {
	parent := n.Parent

	parent.InsertBefore(wrapper, n)
	parent.RemoveChild(n)
	wrapper.AppendChild(n)
}

// Unwrap replaces an element with its own children, splicing them into the
// parent at the element's position.
func Unwrap(el *html.Node) {
	parent := el.Parent
	if parent == nil {
		return
	}

	for el.FirstChild != nil {
		child := el.FirstChild
		el.RemoveChild(child)
		parent.InsertBefore(child, el)
	}

	parent.RemoveChild(el)
}

// Remove detaches a node from its parent.
func Remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Normalize merges adjacent sibling text nodes and drops empty ones,
// recursively, restoring the canonical text-node layout after markers are
// removed.
func Normalize(root *html.Node) {
	for c := root.FirstChild; c != nil; {
		next := c.NextSibling

		if c.Type == html.TextNode {
			if c.Data == "" {
				root.RemoveChild(c)
				c = next

				continue
			}

			for next != nil && next.Type == html.TextNode {
				c.Data += next.Data
				following := next.NextSibling
				root.RemoveChild(next)
				next = following
			}

			c = next

			continue
		}

		Normalize(c)

		c = next
	}
}
