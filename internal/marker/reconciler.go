// Package marker keeps the visual state of a content tree consistent with
// the current annotation set. Every pass tears down all previously painted
// markers (restoring the text byte-identically) and reapplies them from the
// annotation records, so the tree never accumulates stale markers across
// content changes.
//
// Annotations are best-effort overlays, never a correctness-critical source
// of truth: one annotation failing to place must not disturb the others,
// and the worst outcome of any failure is a missing highlight.
package marker

import (
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/serroba/doc-annotations/internal/anchor"
	"github.com/serroba/doc-annotations/internal/dom"
	"github.com/serroba/doc-annotations/internal/storage"
)

// Marker element vocabulary. Markers are <mark> wrappers carrying the
// annotation id; the combined per-section comment affordance is an empty
// <sup> carrying the section id and the comment ids it surfaces.
const (
	AttrAnnotationID     = "data-annotation-id"
	AttrAnnotationKind   = "data-annotation-kind"
	AttrIndicatorSection = "data-comment-indicator"
	AttrIndicatorIDs     = "data-annotation-ids"

	ClassMark      = "annotation-mark"
	ClassComment   = "annotation-comment"
	ClassIndicator = "comment-indicator"
)

// Result summarizes one reconciliation pass.
type Result struct {
	Applied  []string // ids painted at their anchored offsets
	Fallback []string // ids painted via content search
	Skipped  []string // ids that could not be placed this pass
}

// Reconciler paints annotation markers into a content tree.
type Reconciler struct {
	codec  *anchor.Codec
	logger *slog.Logger
}

// NewReconciler creates a reconciler using the given codec for anchor
// resolution. A nil logger falls back to slog's default.
func NewReconciler(codec *anchor.Codec, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{codec: codec, logger: logger}
}

// Reconcile tears down existing markers and reapplies the given annotation
// set. Two consecutive calls with the same inputs yield an identical tree.
// Only mark and comment annotations are painted; replies attach to the
// document as a whole and have no in-text representation.
func (r *Reconciler) Reconcile(root *html.Node, annotations []storage.Annotation) Result {
	Teardown(root)

	var result Result

	ordered := orderForPaint(annotations)

	// Track which sections carry comments so a single combined affordance
	// can be appended per section after all markers are placed.
	sectionComments := make(map[string][]string)

	var sectionOrder []string

	for _, a := range ordered {
		placed, viaFallback := r.place(root, a)
		if !placed {
			result.Skipped = append(result.Skipped, a.ID)

			continue
		}

		if viaFallback {
			result.Fallback = append(result.Fallback, a.ID)
		} else {
			result.Applied = append(result.Applied, a.ID)
		}

		if a.Kind == storage.KindComment && a.Anchor != nil {
			if _, seen := sectionComments[a.Anchor.SectionID]; !seen {
				sectionOrder = append(sectionOrder, a.Anchor.SectionID)
			}

			sectionComments[a.Anchor.SectionID] = append(sectionComments[a.Anchor.SectionID], a.ID)
		}
	}

	for _, sectionID := range sectionOrder {
		r.appendIndicator(root, sectionID, sectionComments[sectionID])
	}

	return result
}

// orderForPaint returns the anchored annotations in deterministic paint
// order: grouped by section, then ascending (start, end). Overlapping
// spans within a section always paint in the same relative order, so
// repeated passes nest their markers identically.
func orderForPaint(annotations []storage.Annotation) []storage.Annotation {
	var out []storage.Annotation

	for _, a := range annotations {
		if a.Kind.Anchored() {
			out = append(out, a)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].Anchor, out[j].Anchor

		// Anchorless records sort last; they can only be placed by
		// content search anyway.
		switch {
		case ai == nil && aj == nil:
			return false
		case ai == nil:
			return false
		case aj == nil:
			return true
		}

		if ai.SectionID != aj.SectionID {
			return ai.SectionID < aj.SectionID
		}

		if ai.Start != aj.Start {
			return ai.Start < aj.Start
		}

		return ai.End < aj.End
	})

	return out
}

// place paints one annotation, falling back to content search when anchor
// resolution fails. It reports whether the annotation was painted and
// whether the fallback path was used.
func (r *Reconciler) place(root *html.Node, a storage.Annotation) (bool, bool) {
	if a.Anchor != nil {
		rng, err := r.codec.Resolve(*a.Anchor, root, a.SelectedText)
		if err == nil {
			r.wrap(rng, a)

			return true, false
		}

		r.logger.Debug("anchor resolution failed, trying content search",
			"annotation", a.ID, "section", a.Anchor.SectionID, "error", err)
	}

	rng := r.searchFallback(root, a)
	if rng == nil {
		r.logger.Warn("annotation could not be placed this pass",
			"annotation", a.ID, "kind", string(a.Kind))

		return false, false
	}

	r.wrap(rng, a)

	return true, true
}

// searchFallback scans the annotation's section (then the whole container)
// for the first exact occurrence of the selected text.
func (r *Reconciler) searchFallback(root *html.Node, a storage.Annotation) *dom.Range {
	needle := a.SelectedText
	if needle == "" {
		return nil
	}

	if a.Anchor != nil {
		if section := r.codec.FindSection(root, a.Anchor.SectionID); section != nil {
			if rng := searchIn(section, needle); rng != nil {
				return rng
			}
		}
	}

	return searchIn(root, needle)
}

// searchIn finds the first exact occurrence of needle in the subtree's
// text and maps it to a range.
func searchIn(scope *html.Node, needle string) *dom.Range {
	haystack := []rune(dom.Text(scope))

	start := runeIndex(haystack, []rune(needle))
	if start < 0 {
		return nil
	}

	rng, err := dom.RangeAt(scope, start, start+len([]rune(needle)))
	if err != nil {
		return nil
	}

	return rng
}

// runeIndex returns the rune offset of the first occurrence of needle in
// haystack, or -1.
func runeIndex(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}

	idx := strings.Index(string(haystack), string(needle))
	if idx < 0 {
		return -1
	}

	// Convert the byte index back to a rune index.
	return len([]rune(string(haystack)[:idx]))
}

// wrap paints marker elements over the range. The range may cross element
// boundaries; each covered text node gets its own wrapper, all carrying the
// same annotation id. Text content is never altered, so offsets computed
// against the section stay valid for later annotations in the same pass.
func (r *Reconciler) wrap(rng *dom.Range, a storage.Annotation) {
	class := ClassMark
	if a.Kind == storage.KindComment {
		class = ClassComment
	}

	for _, textNode := range dom.SliceTextNodes(rng) {
		wrapper := &html.Node{
			Type: html.ElementNode,
			Data: "mark",
			Attr: []html.Attribute{
				{Key: "class", Val: class},
				{Key: AttrAnnotationID, Val: a.ID},
				{Key: AttrAnnotationKind, Val: string(a.Kind)},
			},
		}

		dom.WrapNode(textNode, wrapper)
	}
}

// appendIndicator adds the combined trailing comment affordance to a
// section. The element is intentionally empty: it contributes no text, so
// section offsets and section ids are unaffected by its presence.
func (r *Reconciler) appendIndicator(root *html.Node, sectionID string, annotationIDs []string) {
	section := r.codec.FindSection(root, sectionID)
	if section == nil {
		return
	}

	indicator := &html.Node{
		Type: html.ElementNode,
		Data: "sup",
		Attr: []html.Attribute{
			{Key: "class", Val: ClassIndicator},
			{Key: AttrIndicatorSection, Val: sectionID},
			{Key: AttrIndicatorIDs, Val: strings.Join(annotationIDs, ",")},
		},
	}

	section.AppendChild(indicator)
}

// Teardown removes every previously painted marker and affordance,
// splicing marker text back into plain text nodes and normalizing adjacent
// text nodes. It is idempotent and leaves the text content byte-identical
// to the pre-annotation state.
func Teardown(root *html.Node) {
	var markers, indicators []*html.Node

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if dom.AttrVal(n, AttrAnnotationID) != "" {
				markers = append(markers, n)
			} else if dom.AttrVal(n, AttrIndicatorSection) != "" {
				indicators = append(indicators, n)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	// Unwrap innermost-first so nested markers splice cleanly.
	for i := len(markers) - 1; i >= 0; i-- {
		dom.Unwrap(markers[i])
	}

	for _, n := range indicators {
		dom.Remove(n)
	}

	dom.Normalize(root)
}
