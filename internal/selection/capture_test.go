package selection_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/serroba/doc-annotations/internal/dom"
	"github.com/serroba/doc-annotations/internal/geometry"
	"github.com/serroba/doc-annotations/internal/selection"
)

const testDebounce = 10 * time.Millisecond

func mustParse(t *testing.T, raw string) *dom.Document {
	t.Helper()

	doc, err := dom.ParseString(raw)
	require.NoError(t, err)

	return doc
}

func mustRange(t *testing.T, root *dom.Document, start, end int) *dom.Range {
	t.Helper()

	r, err := dom.RangeAt(root.Body(), start, end)
	require.NoError(t, err)

	return r
}

// collect subscribes a channel-backed callback to the capture.
func collect(c *selection.Capture) (<-chan *selection.Snapshot, func()) {
	ch := make(chan *selection.Snapshot, 8)
	unsub := c.Subscribe(func(s *selection.Snapshot) { ch <- s })

	return ch, unsub
}

func waitSnapshot(t *testing.T, ch <-chan *selection.Snapshot) *selection.Snapshot {
	t.Helper()

	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")

		return nil
	}
}

func assertNoSnapshot(t *testing.T, ch <-chan *selection.Snapshot) {
	t.Helper()

	select {
	case s := <-ch:
		t.Fatalf("unexpected emission: %+v", s)
	case <-time.After(5 * testDebounce):
	}
}

func TestNotify_EmitsAfterDebounce(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<p>hello world</p>`)
	c := selection.NewCapture(doc.Body(), selection.WithDebounce(testDebounce))
	defer c.Close()

	ch, unsub := collect(c)
	defer unsub()

	c.Notify(selection.Event{Range: mustRange(t, doc, 0, 5)})

	snap := waitSnapshot(t, ch)
	require.NotNil(t, snap)

	if snap.Text != "hello" {
		t.Errorf("expected 'hello', got %q", snap.Text)
	}
}

func TestNotify_CoalescesBursts(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<p>hello world</p>`)
	c := selection.NewCapture(doc.Body(), selection.WithDebounce(30*time.Millisecond))
	defer c.Close()

	ch, unsub := collect(c)
	defer unsub()

	// A drag produces a burst; only the final extent matters.
	c.Notify(selection.Event{Range: mustRange(t, doc, 0, 2)})
	c.Notify(selection.Event{Range: mustRange(t, doc, 0, 5)})
	c.Notify(selection.Event{Range: mustRange(t, doc, 0, 11)})

	snap := waitSnapshot(t, ch)
	require.NotNil(t, snap)

	if snap.Text != "hello world" {
		t.Errorf("expected final extent, got %q", snap.Text)
	}

	assertNoSnapshot(t, ch)
}

func TestNotify_ClearedSelectionEmitsNil(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<p>hello world</p>`)
	c := selection.NewCapture(doc.Body(), selection.WithDebounce(testDebounce))
	defer c.Close()

	ch, unsub := collect(c)
	defer unsub()

	c.Notify(selection.Event{Range: nil})

	if snap := waitSnapshot(t, ch); snap != nil {
		t.Errorf("expected nil snapshot for cleared selection, got %+v", snap)
	}
}

func TestNotify_OutsideRootEmitsNil(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<div id="content"><p>inside</p></div><p>outside text</p>`)

	content := doc.Body().FirstChild
	c := selection.NewCapture(content, selection.WithDebounce(testDebounce))
	defer c.Close()

	ch, unsub := collect(c)
	defer unsub()

	outside := content.NextSibling
	r, err := dom.RangeAt(outside, 0, 7)
	require.NoError(t, err)

	c.Notify(selection.Event{Range: r})

	if snap := waitSnapshot(t, ch); snap != nil {
		t.Errorf("expected nil snapshot outside root, got %+v", snap)
	}
}

func TestNotify_WhitespaceOnlyEmitsNil(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<p>a   b</p>`)
	c := selection.NewCapture(doc.Body(), selection.WithDebounce(testDebounce))
	defer c.Close()

	ch, unsub := collect(c)
	defer unsub()

	c.Notify(selection.Event{Range: mustRange(t, doc, 1, 4)})

	if snap := waitSnapshot(t, ch); snap != nil {
		t.Errorf("expected nil snapshot for whitespace selection, got %+v", snap)
	}
}

func TestNotify_TrimsBoundaryWhitespace(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<p>say  hello  now</p>`)
	c := selection.NewCapture(doc.Body(), selection.WithDebounce(testDebounce))
	defer c.Close()

	ch, unsub := collect(c)
	defer unsub()

	// "  hello  " with sloppy boundaries.
	c.Notify(selection.Event{Range: mustRange(t, doc, 3, 12)})

	snap := waitSnapshot(t, ch)
	require.NotNil(t, snap)

	if snap.Text != "hello" {
		t.Errorf("expected trimmed 'hello', got %q", snap.Text)
	}

	if got := snap.Range.Text(); got != "hello" {
		t.Errorf("expected trimmed range, got %q", got)
	}
}

func TestNotify_MinLength(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<p>ab cdef</p>`)
	c := selection.NewCapture(doc.Body(),
		selection.WithDebounce(testDebounce),
		selection.WithMinLength(3),
	)
	defer c.Close()

	ch, unsub := collect(c)
	defer unsub()

	c.Notify(selection.Event{Range: mustRange(t, doc, 0, 2)})

	if snap := waitSnapshot(t, ch); snap != nil {
		t.Errorf("expected nil snapshot under min length, got %+v", snap)
	}

	c.Notify(selection.Event{Range: mustRange(t, doc, 3, 7)})

	snap := waitSnapshot(t, ch)
	require.NotNil(t, snap)
	require.Equal(t, "cdef", snap.Text)
}

func TestNotify_DropsZeroWidthRects(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<p>hello world</p>`)
	c := selection.NewCapture(doc.Body(), selection.WithDebounce(testDebounce))
	defer c.Close()

	ch, unsub := collect(c)
	defer unsub()

	c.Notify(selection.Event{
		Range: mustRange(t, doc, 0, 5),
		Rects: []geometry.Rect{
			{Left: 0, Top: 0, Width: 0, Height: 18},
			{Left: 10, Top: 10, Width: 40, Height: 18},
		},
	})

	snap := waitSnapshot(t, ch)
	require.NotNil(t, snap)
	require.Len(t, snap.Rects, 1)

	if snap.Rects[0].Left != 10 {
		t.Errorf("kept the wrong rect: %+v", snap.Rects[0])
	}
}

func TestUnsubscribe_CancelsPendingEmission(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<p>hello world</p>`)
	c := selection.NewCapture(doc.Body(), selection.WithDebounce(50*time.Millisecond))
	defer c.Close()

	ch, unsub := collect(c)

	c.Notify(selection.Event{Range: mustRange(t, doc, 0, 5)})
	unsub()

	select {
	case s := <-ch:
		t.Fatalf("emission after unsubscribe: %+v", s)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestClose_StopsEmissions(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<p>hello world</p>`)
	c := selection.NewCapture(doc.Body(), selection.WithDebounce(50*time.Millisecond))

	ch, unsub := collect(c)
	defer unsub()

	c.Notify(selection.Event{Range: mustRange(t, doc, 0, 5)})
	c.Close()

	select {
	case s := <-ch:
		t.Fatalf("emission after close: %+v", s)
	case <-time.After(150 * time.Millisecond):
	}

	// Notify after close is a no-op.
	c.Notify(selection.Event{Range: mustRange(t, doc, 0, 5)})
}

func TestFlush_BypassesDebounce(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<p>hello world</p>`)
	c := selection.NewCapture(doc.Body(), selection.WithDebounce(time.Hour))
	defer c.Close()

	ch, unsub := collect(c)
	defer unsub()

	c.Notify(selection.Event{Range: mustRange(t, doc, 6, 11)})
	c.Flush()

	snap := waitSnapshot(t, ch)
	require.NotNil(t, snap)
	require.Equal(t, "world", snap.Text)
}
