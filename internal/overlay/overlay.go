// Package overlay implements the per-viewer selection state machine: hover
// preview, click or long-press confirm, and commit into the selection list.
package overlay

import (
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pagepick/backend/internal/dom"
	"github.com/pagepick/backend/internal/model"
	"github.com/pagepick/backend/internal/selector"
)

// DefaultHoldDelay is how long a touch must be held before it counts as a click.
const DefaultHoldDelay = 500 * time.Millisecond

// State is the overlay's interaction state.
type State int

const (
	// Idle means selection mode is off.
	Idle State = iota
	// Armed means selection mode is on with no candidate.
	Armed
	// Previewing means a candidate is hovered or held but not confirmed.
	Previewing
	// Committed is entered on commit and immediately left for Armed.
	Committed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Previewing:
		return "previewing"
	case Committed:
		return "committed"
	}
	return "unknown"
}

// Config configures an Overlay.
type Config struct {
	HoldDelay time.Duration
	Deriver   selector.Deriver
	Clock     Clock
}

func (c *Config) defaults() {
	if c.HoldDelay <= 0 {
		c.HoldDelay = DefaultHoldDelay
	}
	if c.Clock == nil {
		c.Clock = RealClock()
	}
}

// RemoteSelection is a selection received from another viewer.
type RemoteSelection struct {
	Selector   string
	Attributes []string
	Data       map[string]string
}

type hold struct {
	seq        uint64
	target     *html.Node
	generation uint64
	timer      Timer
}

// Overlay is safe for concurrent use; every entry point is serialized, which
// stands in for the single UI event loop of a browser viewer.
type Overlay struct {
	cfg Config

	mu         sync.Mutex
	doc        *dom.Document
	state      State
	hovered    *html.Node
	remoteHov  *html.Node
	hold       *hold
	holdSeq    uint64
	selections *model.SelectionList

	// Subscribers, called in registration order outside the lock.
	onCommit []func(model.SelectionRecord)
	onHover  []func(selector string)
	onRemote []func(model.SelectionRecord)
}

// New creates an Overlay with no document loaded.
func New(cfg Config) *Overlay {
	cfg.defaults()
	return &Overlay{
		cfg:        cfg,
		selections: model.NewSelectionList(),
	}
}

// OnCommit registers a handler for local commits of new selectors.
func (o *Overlay) OnCommit(fn func(model.SelectionRecord)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onCommit = append(o.onCommit, fn)
}

// OnHover registers a handler called with the selector of each newly hovered element.
func (o *Overlay) OnHover(fn func(selector string)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onHover = append(o.onHover, fn)
}

// OnRemoteSelect registers a handler for remote selections that were applied locally.
func (o *Overlay) OnRemoteSelect(fn func(model.SelectionRecord)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onRemote = append(o.onRemote, fn)
}

// Load resets the overlay to Idle and installs doc. A nil doc leaves the
// overlay without a document. The selection list belongs to the previous page
// and is cleared.
func (o *Overlay) Load(doc *dom.Document) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.resetLocked()
	o.selections.Clear()
	o.doc = doc
}

// Document returns the loaded document, or nil. Its nodes are mutated under
// the overlay lock; read them through Query, Title or Render instead.
func (o *Overlay) Document() *dom.Document {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.doc
}

// Query returns the first element of the loaded document matching css, or nil.
func (o *Overlay) Query(css string) (*html.Node, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.doc == nil {
		return nil, model.ErrNoDocument
	}
	return o.doc.QueryFirst(css)
}

// Title returns the loaded document's title, or "" with no document.
func (o *Overlay) Title() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.doc == nil {
		return ""
	}
	return o.doc.Title()
}

// Render serializes the loaded document with its current markers.
func (o *Overlay) Render() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.doc == nil {
		return "", model.ErrNoDocument
	}
	return o.doc.Render()
}

// State returns the current state.
func (o *Overlay) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Hovered returns the element carrying the local hover marker, or nil.
func (o *Overlay) Hovered() *html.Node {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hovered
}

// Holding reports whether a touch hold is pending.
func (o *Overlay) Holding() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hold != nil
}

// Selections returns the selection list in insertion order.
func (o *Overlay) Selections() []model.SelectionRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.selections.Records()
}

// Snapshot returns the selectors and the union of their attributes.
func (o *Overlay) Snapshot() (selectors, attributes []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.selections.Selectors(), o.selections.Attributes()
}

// ToggleOn enters selection mode.
func (o *Overlay) ToggleOn() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.doc == nil {
		return model.ErrNoDocument
	}
	if o.state == Idle {
		o.state = Armed
		dom.AddClass(o.doc.Body(), dom.SelectableClass)
	}
	return nil
}

// ToggleOff leaves selection mode, cancelling any hold and clearing hover and
// highlight markers. Committed selections keep their marker.
func (o *Overlay) ToggleOff() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked()
}

func (o *Overlay) resetLocked() {
	o.cancelHoldLocked()
	if o.doc != nil {
		o.doc.ClearMarker(dom.HoverClass)
		o.doc.ClearMarker(dom.RemoteHoverClass)
		o.doc.ClearMarker(dom.SelectableClass)
	}
	o.hovered = nil
	o.remoteHov = nil
	o.state = Idle
}

func (o *Overlay) activeLocked() bool {
	return o.state != Idle
}

// SuppressDefault reports whether the default action of n (link navigation,
// form submission) must be blocked: n sits inside a link or form control and
// selection mode is on or a hold is pending.
func (o *Overlay) SuppressDefault(n *html.Node) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.activeLocked() && o.hold == nil {
		return false
	}
	return dom.InInteractive(n)
}

// Hover moves the hover marker to n while selection mode is on.
func (o *Overlay) Hover(n *html.Node) {
	o.mu.Lock()
	if !o.activeLocked() {
		o.mu.Unlock()
		return
	}
	ev := o.hoverLocked(n)
	o.mu.Unlock()
	o.emit(ev)
}

func (o *Overlay) hoverLocked(n *html.Node) *event {
	n = o.element(n)
	if n == nil || n == o.hovered {
		return nil
	}
	if o.hovered != nil {
		dom.RemoveClass(o.hovered, dom.HoverClass)
	}
	dom.AddClass(n, dom.HoverClass)
	o.hovered = n
	o.state = Previewing
	return &event{hover: o.cfg.Deriver.Derive(n), hoverFns: o.onHover}
}

// Click commits n when selection mode is on. It returns true when the click
// was consumed and its default action must not run.
func (o *Overlay) Click(n *html.Node) bool {
	o.mu.Lock()
	if !o.activeLocked() {
		o.mu.Unlock()
		return false
	}
	o.cancelHoldLocked()
	ev := o.commitLocked(n)
	o.mu.Unlock()
	o.emit(ev)
	return true
}

// TouchStart begins a long-press on n. It returns true when the touch was consumed.
func (o *Overlay) TouchStart(n *html.Node) bool {
	o.mu.Lock()
	if !o.activeLocked() {
		o.mu.Unlock()
		return false
	}
	n = o.element(n)
	if n == nil {
		o.mu.Unlock()
		return true
	}
	o.cancelHoldLocked()
	ev := o.hoverLocked(n)

	o.holdSeq++
	h := &hold{seq: o.holdSeq, target: n, generation: o.doc.Generation()}
	h.timer = o.cfg.Clock.AfterFunc(o.cfg.HoldDelay, func() { o.fireHold(h.seq) })
	o.hold = h
	o.state = Previewing
	o.mu.Unlock()
	o.emit(ev)
	return true
}

// TouchMove cancels a pending hold and re-targets the hover marker to n.
func (o *Overlay) TouchMove(n *html.Node) {
	o.mu.Lock()
	if !o.activeLocked() {
		o.mu.Unlock()
		return
	}
	o.cancelHoldLocked()
	ev := o.hoverLocked(n)
	o.mu.Unlock()
	o.emit(ev)
}

// TouchEnd releases the touch. A release before the hold fired and without
// movement is a tap and commits the held element. It returns true when the
// release was consumed by selection mode.
func (o *Overlay) TouchEnd() bool {
	o.mu.Lock()
	h := o.hold
	if h == nil || !o.activeLocked() {
		active := o.activeLocked()
		o.cancelHoldLocked()
		o.mu.Unlock()
		return active
	}
	o.cancelHoldLocked()
	var ev *event
	if o.doc != nil && h.generation == o.doc.Generation() {
		ev = o.commitLocked(h.target)
	}
	o.mu.Unlock()
	o.emit(ev)
	return true
}

func (o *Overlay) fireHold(seq uint64) {
	o.mu.Lock()
	h := o.hold
	if h == nil || h.seq != seq || !o.activeLocked() {
		o.mu.Unlock()
		return
	}
	o.hold = nil
	var ev *event
	if o.doc != nil && h.generation == o.doc.Generation() {
		ev = o.commitLocked(h.target)
	}
	o.mu.Unlock()
	o.emit(ev)
}

func (o *Overlay) cancelHoldLocked() {
	if o.hold == nil {
		return
	}
	o.hold.timer.Stop()
	o.hold = nil
}

// element returns the element for n inside the loaded document, or nil.
func (o *Overlay) element(n *html.Node) *html.Node {
	for n != nil && n.Type != html.ElementNode {
		n = n.Parent
	}
	if n == nil || o.doc == nil || !o.doc.Contains(n) {
		return nil
	}
	return n
}

func (o *Overlay) commitLocked(n *html.Node) *event {
	n = o.element(n)
	if n == nil {
		return nil
	}

	if o.hovered != nil {
		dom.RemoveClass(o.hovered, dom.HoverClass)
		o.hovered = nil
	}

	kind := dom.Classify(n)
	attrs, values := extract(n)
	rec := model.SelectionRecord{
		Selector:   o.cfg.Deriver.Derive(n),
		Attributes: attrs,
		Values:     values,
		Kind:       kind,
	}
	dom.AddClass(n, dom.SelectedClass)

	added := o.selections.Add(rec)
	// Committed is transient: multi-select returns to Armed before the lock is released.
	o.state = Armed

	if !added {
		return nil
	}
	return &event{commit: &rec, commitFns: o.onCommit}
}

// relevant lists the DOM attributes captured for each element, besides text.
var relevant = map[atom.Atom][]string{
	atom.A:     {"href"},
	atom.Img:   {"src", "alt"},
	atom.Video: {"src", "poster"},
	atom.Audio: {"src"},
}

// extract reads the attribute set and values at commit time. Only attributes
// present on n are included, plus text when the element has text content.
func extract(n *html.Node) ([]string, map[string]string) {
	attrs := []string{}
	values := map[string]string{}

	if text := dom.Text(n); text != "" {
		attrs = append(attrs, model.TextAttribute)
		values[model.TextAttribute] = text
	}
	for _, name := range relevant[n.DataAtom] {
		if v, ok := dom.Attr(n, name); ok && v != "" {
			attrs = append(attrs, name)
			values[name] = v
		}
	}
	return attrs, values
}

// ApplyRemoteSelect marks the element matching sel.Selector as selected and
// appends it to the list. The sender's selector is kept as is. It returns
// false when the selector does not resolve against the local document.
func (o *Overlay) ApplyRemoteSelect(sel RemoteSelection) bool {
	o.mu.Lock()
	if o.doc == nil || sel.Selector == "" {
		o.mu.Unlock()
		return false
	}
	n, err := o.doc.QueryFirst(sel.Selector)
	if err != nil || n == nil {
		o.mu.Unlock()
		return false
	}

	dom.AddClass(n, dom.SelectedClass)
	rec := model.SelectionRecord{
		Selector:   sel.Selector,
		Attributes: append([]string{}, sel.Attributes...),
		Values:     copyMap(sel.Data),
		Kind:       dom.Classify(n),
		Remote:     true,
	}
	var ev *event
	if o.selections.Add(rec) {
		ev = &event{remote: &rec, remoteFns: o.onRemote}
	}
	o.mu.Unlock()
	o.emit(ev)
	return true
}

// ApplyRemoteHighlight moves the remote hover marker to the element matching
// selector. It never commits.
func (o *Overlay) ApplyRemoteHighlight(selector string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.doc == nil || selector == "" {
		return false
	}
	n, err := o.doc.QueryFirst(selector)
	if err != nil || n == nil {
		return false
	}
	if o.remoteHov != nil {
		dom.RemoveClass(o.remoteHov, dom.RemoteHoverClass)
	}
	dom.AddClass(n, dom.RemoteHoverClass)
	o.remoteHov = n
	return true
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// event carries subscriber calls out of the critical section.
type event struct {
	commit    *model.SelectionRecord
	commitFns []func(model.SelectionRecord)
	hover     string
	hoverFns  []func(string)
	remote    *model.SelectionRecord
	remoteFns []func(model.SelectionRecord)
}

func (o *Overlay) emit(ev *event) {
	if ev == nil {
		return
	}
	if ev.commit != nil {
		for _, fn := range ev.commitFns {
			fn(*ev.commit)
		}
	}
	if ev.hover != "" {
		for _, fn := range ev.hoverFns {
			fn(ev.hover)
		}
	}
	if ev.remote != nil {
		for _, fn := range ev.remoteFns {
			fn(*ev.remote)
		}
	}
}
