// Package selection normalizes raw selection-change events into immutable
// snapshots. The host embedding the reader pushes every native
// selection-change signal via Notify; the capture debounces them, discards
// selections that fall outside the content root or carry no usable text,
// trims boundary whitespace, and emits the resulting snapshot to
// subscribers. It performs no tree mutation of its own.
package selection

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/serroba/doc-annotations/internal/dom"
	"github.com/serroba/doc-annotations/internal/geometry"
)

// DefaultDebounce coalesces the burst of selection-change signals produced
// while the user drags.
const DefaultDebounce = 75 * time.Millisecond

// Snapshot is an immutable, point-in-time capture of the user's selection.
type Snapshot struct {
	// Text is the trimmed selected text; always at least one rune.
	Text string

	// Range is an exclusively-owned clone of the selection range. It
	// aliases live tree nodes and is only valid until the next render.
	Range *dom.Range

	// Rects are the viewport rectangles covering the selection, with
	// zero-width line-wrap artifacts already removed.
	Rects []geometry.Rect
}

// Event is a raw selection-change notification from the host.
type Event struct {
	Range *dom.Range // nil or collapsed means the selection was cleared
	Rects []geometry.Rect
}

// Option configures a Capture.
type Option func(*Capture)

// WithDebounce overrides the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(c *Capture) { c.debounce = d }
}

// WithMinLength requires at least n runes of trimmed text before a
// snapshot is emitted. The default is 1.
func WithMinLength(n int) Option {
	return func(c *Capture) { c.minLen = n }
}

// Capture observes selection-change events for one content root.
// It is safe for concurrent use.
type Capture struct {
	root     *html.Node
	debounce time.Duration
	minLen   int

	mu      sync.Mutex
	subs    map[int]func(*Snapshot)
	nextSub int
	timer   *time.Timer
	pending Event
	armed   bool
	closed  bool
}

// NewCapture creates a capture scoped to the given content root.
func NewCapture(root *html.Node, opts ...Option) *Capture {
	c := &Capture{
		root:     root,
		debounce: DefaultDebounce,
		minLen:   1,
		subs:     make(map[int]func(*Snapshot)),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Subscribe registers a snapshot callback and returns its unsubscribe
// function. Unsubscribing stops further emissions to that callback
// immediately; a pending debounced emission does not survive the last
// unsubscribe.
func (c *Capture) Subscribe(fn func(*Snapshot)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		delete(c.subs, id)

		if len(c.subs) == 0 {
			c.cancelLocked()
		}
	}
}

// Notify records a raw selection-change event and re-arms the debounce
// timer. Only the most recent event in a debounce window is acted on.
func (c *Capture) Notify(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || len(c.subs) == 0 {
		return
	}

	c.pending = ev
	c.armed = true

	if c.timer == nil {
		c.timer = time.AfterFunc(c.debounce, c.fire)

		return
	}

	c.timer.Reset(c.debounce)
}

// Flush processes a pending event immediately, bypassing the debounce.
func (c *Capture) Flush() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()

	c.fire()
}

// Close cancels all pending work and stops further emissions.
func (c *Capture) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.cancelLocked()
}

// cancelLocked stops the debounce timer and drops the pending event.
func (c *Capture) cancelLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	c.armed = false
}

// fire normalizes the pending event and delivers the snapshot.
func (c *Capture) fire() {
	c.mu.Lock()

	if c.closed || !c.armed {
		c.mu.Unlock()

		return
	}

	ev := c.pending
	c.armed = false

	subs := make([]func(*Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}

	c.mu.Unlock()

	snap := c.normalize(ev)

	for _, fn := range subs {
		fn(snap)
	}
}

// normalize applies the capture rules from the event to a snapshot.
// It returns nil when the event carries no qualifying selection.
func (c *Capture) normalize(ev Event) *Snapshot {
	if ev.Range.Collapsed() {
		return nil
	}

	// Chrome selections outside the content root must not be captured.
	if !dom.Contains(c.root, ev.Range.StartNode) || !dom.Contains(c.root, ev.Range.EndNode) {
		return nil
	}

	// Clone before mutating boundaries: the host's range value keeps
	// changing as the native selection does.
	r := ev.Range.Clone()

	if !r.TrimWhitespace() {
		return nil
	}

	text := strings.TrimSpace(r.Text())
	if utf8.RuneCountInString(text) < c.minLen {
		return nil
	}

	rects := make([]geometry.Rect, 0, len(ev.Rects))

	for _, rect := range ev.Rects {
		if !rect.ZeroWidth() {
			rects = append(rects, rect)
		}
	}

	return &Snapshot{
		Text:  text,
		Range: r,
		Rects: rects,
	}
}
