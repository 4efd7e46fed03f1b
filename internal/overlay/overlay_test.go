package overlay

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"golang.org/x/net/html"

	"github.com/pagepick/backend/internal/dom"
	"github.com/pagepick/backend/internal/model"
	"github.com/pagepick/backend/internal/selector"
)

const appPage = `<html><head><title>t</title></head><body>
<div id="app"><p class="lead">Hi</p><p class="lead">Bye</p></div>
<nav><a href="/next"><span class="label">Next</span></a></nav>
<figure><img src="/cat.png" alt="cat"><video poster="/p.png"><source src="/v.mp4"></video></figure>
<ul><li>one</li><li>two</li><li>three</li><li></li></ul>
</body></html>`

func setup(t *testing.T) (*Overlay, *ManualClock, *dom.Document) {
	t.Helper()
	clock := NewManualClock()
	ov := New(Config{Clock: clock})
	doc, err := dom.Parse("https://example.test/", appPage)
	if err != nil {
		t.Fatalf("failed to parse page: %v", err)
	}
	ov.Load(doc)
	return ov, clock, doc
}

func first(t *testing.T, doc *dom.Document, sel string) *html.Node {
	t.Helper()
	n, err := doc.QueryFirst(sel)
	if err != nil || n == nil {
		t.Fatalf("query %q failed: %v", sel, err)
	}
	return n
}

func armed(t *testing.T, ov *Overlay) {
	t.Helper()
	if err := ov.ToggleOn(); err != nil {
		t.Fatalf("failed to toggle on: %v", err)
	}
}

func TestOverlay_Toggle(t *testing.T) {
	t.Run("requires a document", func(t *testing.T) {
		ov := New(Config{Clock: NewManualClock()})
		if err := ov.ToggleOn(); !errors.Is(err, model.ErrNoDocument) {
			t.Fatalf("expected ErrNoDocument, got %v", err)
		}
		if ov.State() != Idle {
			t.Errorf("expected idle, got %s", ov.State())
		}
	})

	t.Run("on and off", func(t *testing.T) {
		ov, _, doc := setup(t)
		armed(t, ov)
		if ov.State() != Armed {
			t.Fatalf("expected armed, got %s", ov.State())
		}
		if !dom.HasClass(doc.Body(), dom.SelectableClass) {
			t.Error("expected selection mode marker on body")
		}

		ov.Hover(first(t, doc, "p"))
		ov.ApplyRemoteHighlight("nav a")
		ov.ToggleOff()

		if ov.State() != Idle {
			t.Errorf("expected idle, got %s", ov.State())
		}
		for _, class := range []string{dom.HoverClass, dom.RemoteHoverClass, dom.SelectableClass} {
			if n := len(doc.MarkedWith(class)); n != 0 {
				t.Errorf("expected %s cleared, %d left", class, n)
			}
		}
	})
}

func TestOverlay_Hover(t *testing.T) {
	ov, _, doc := setup(t)
	var hovered []string
	ov.OnHover(func(sel string) { hovered = append(hovered, sel) })

	p := first(t, doc, "p")
	ov.Hover(p)
	if len(doc.MarkedWith(dom.HoverClass)) != 0 {
		t.Fatal("hover must not mark anything while idle")
	}

	armed(t, ov)
	ov.Hover(p)
	ov.Hover(p)
	li := first(t, doc, "li")
	ov.Hover(li)

	marked := doc.MarkedWith(dom.HoverClass)
	if len(marked) != 1 || marked[0] != li {
		t.Fatalf("expected only the last hovered node to be marked, got %d", len(marked))
	}
	if ov.State() != Previewing {
		t.Errorf("expected previewing, got %s", ov.State())
	}
	if len(hovered) != 2 || hovered[0] != "#app > p.lead" || hovered[1] != "body > ul > li" {
		t.Errorf("unexpected hover notifications %v", hovered)
	}
	if len(ov.Selections()) != 0 {
		t.Error("hover must not commit")
	}
}

func TestOverlay_ClickCommit(t *testing.T) {
	ov, _, doc := setup(t)
	var commits []model.SelectionRecord
	ov.OnCommit(func(rec model.SelectionRecord) { commits = append(commits, rec) })

	p := first(t, doc, "p")
	if ov.Click(p) {
		t.Fatal("click while idle must not be consumed")
	}
	if len(ov.Selections()) != 0 {
		t.Fatal("click while idle must not commit")
	}

	armed(t, ov)
	ov.Hover(p)
	if !ov.Click(p.FirstChild) {
		t.Fatal("click in selection mode must be consumed")
	}

	records := ov.Selections()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Selector != "#app > p.lead" {
		t.Errorf("expected selector '#app > p.lead', got %q", rec.Selector)
	}
	if len(rec.Attributes) != 1 || rec.Attributes[0] != model.TextAttribute {
		t.Errorf("expected attributes [text], got %v", rec.Attributes)
	}
	if rec.Values[model.TextAttribute] != "Hi" {
		t.Errorf("expected text 'Hi', got %q", rec.Values[model.TextAttribute])
	}
	if rec.Kind != model.ElementKindPlain {
		t.Errorf("expected plain kind, got %s", rec.Kind)
	}
	if ov.State() != Armed {
		t.Errorf("expected armed after commit, got %s", ov.State())
	}
	if dom.HasClass(p, dom.HoverClass) || !dom.HasClass(p, dom.SelectedClass) {
		t.Error("expected hover marker replaced by selected marker")
	}
	if len(commits) != 1 {
		t.Errorf("expected 1 commit notification, got %d", len(commits))
	}

	// double click
	ov.Click(p)
	if len(ov.Selections()) != 1 || len(commits) != 1 {
		t.Errorf("duplicate commit must be a no-op, got %d records", len(ov.Selections()))
	}

	// multi-select stays on
	ov.Click(first(t, doc, "li"))
	if len(ov.Selections()) != 2 {
		t.Errorf("expected 2 records, got %d", len(ov.Selections()))
	}
}

func TestOverlay_PositionalPolicy(t *testing.T) {
	clock := NewManualClock()
	ov := New(Config{Clock: clock, Deriver: selector.Deriver{Positional: true}})
	doc, _ := dom.Parse("", appPage)
	ov.Load(doc)
	armed(t, ov)

	ov.Click(first(t, doc, "p"))
	if got := ov.Selections()[0].Selector; got != "#app > p.lead:nth-child(1)" {
		t.Errorf("unexpected positional selector %q", got)
	}
}

func TestOverlay_CommitAttributes(t *testing.T) {
	ov, _, doc := setup(t)
	armed(t, ov)

	ov.Click(first(t, doc, "img"))
	ov.Click(first(t, doc, "video"))
	ov.Click(first(t, doc, "nav a"))
	ov.Click(first(t, doc, "li:empty"))

	records := ov.Selections()
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}

	tests := []struct {
		kind   model.ElementKind
		attrs  []string
		values map[string]string
	}{
		{model.ElementKindImage, []string{"src", "alt"}, map[string]string{"src": "/cat.png", "alt": "cat"}},
		// the child <source> src is not an attribute of the video itself
		{model.ElementKindVideo, []string{"poster"}, map[string]string{"poster": "/p.png"}},
		{model.ElementKindPlain, []string{"text", "href"}, map[string]string{"text": "Next", "href": "/next"}},
		{model.ElementKindPlain, []string{}, map[string]string{}},
	}
	for i, tt := range tests {
		rec := records[i]
		if rec.Kind != tt.kind {
			t.Errorf("record %d: expected kind %s, got %s", i, tt.kind, rec.Kind)
		}
		if len(rec.Attributes) != len(tt.attrs) {
			t.Errorf("record %d: expected attrs %v, got %v", i, tt.attrs, rec.Attributes)
			continue
		}
		for j, a := range tt.attrs {
			if rec.Attributes[j] != a {
				t.Errorf("record %d: expected attrs %v, got %v", i, tt.attrs, rec.Attributes)
			}
			if rec.Values[a] != tt.values[a] {
				t.Errorf("record %d: expected %s=%q, got %q", i, a, tt.values[a], rec.Values[a])
			}
		}
	}
}

func TestOverlay_CommitMediaSourceChildren(t *testing.T) {
	ov := New(Config{Clock: NewManualClock()})
	doc, err := dom.Parse("https://example.test/", `<html><body>
<video id="v"><source src="a.mp4"></video>
<audio id="a" src="b.mp3"><source src="c.ogg"></audio>
</body></html>`)
	if err != nil {
		t.Fatalf("failed to parse page: %v", err)
	}
	ov.Load(doc)
	armed(t, ov)

	ov.Click(first(t, doc, "#v"))
	ov.Click(first(t, doc, "#a"))

	records := ov.Selections()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if len(records[0].Attributes) != 0 || len(records[0].Values) != 0 {
		t.Errorf("video without src: expected no attributes, got %v %v", records[0].Attributes, records[0].Values)
	}
	if len(records[1].Attributes) != 1 || records[1].Values["src"] != "b.mp3" {
		t.Errorf("audio: expected its own src, got %v %v", records[1].Attributes, records[1].Values)
	}
}

func TestOverlay_SuppressDefault(t *testing.T) {
	ov, clock, doc := setup(t)
	link := first(t, doc, "nav a span")

	if ov.SuppressDefault(link) {
		t.Error("links work normally while idle")
	}
	armed(t, ov)
	if !ov.SuppressDefault(link) {
		t.Error("links must be suppressed while armed")
	}
	if ov.SuppressDefault(first(t, doc, "li")) {
		t.Error("plain elements have no default action to suppress")
	}
	ov.TouchStart(link)
	if !ov.SuppressDefault(link) {
		t.Error("links must be suppressed mid-hold")
	}
	clock.Advance(DefaultHoldDelay)
	if !ov.SuppressDefault(link) {
		t.Error("links must stay suppressed after a commit")
	}
}

func TestOverlay_TouchHold(t *testing.T) {
	t.Run("hold fires after the delay", func(t *testing.T) {
		ov, clock, doc := setup(t)
		armed(t, ov)
		li := first(t, doc, "li")

		if !ov.TouchStart(li) {
			t.Fatal("touch must be consumed in selection mode")
		}
		if ov.State() != Previewing || !dom.HasClass(li, dom.HoverClass) {
			t.Fatal("expected held element to be previewed")
		}
		clock.Advance(DefaultHoldDelay - time.Millisecond)
		if len(ov.Selections()) != 0 {
			t.Fatal("committed before the hold delay")
		}
		clock.Advance(time.Millisecond)
		if len(ov.Selections()) != 1 {
			t.Fatal("expected commit when the hold fires")
		}
		if ov.Holding() {
			t.Error("hold should be cleared after firing")
		}

		// release after the hold already fired does not commit again
		ov.TouchEnd()
		if len(ov.Selections()) != 1 {
			t.Error("release after hold must not commit again")
		}
	})

	t.Run("quick release is a tap", func(t *testing.T) {
		ov, clock, doc := setup(t)
		armed(t, ov)
		ov.TouchStart(first(t, doc, "p"))
		if !ov.TouchEnd() {
			t.Error("release must be consumed")
		}
		if len(ov.Selections()) != 1 {
			t.Fatal("expected tap to commit")
		}
		if clock.Pending() != 0 {
			t.Error("tap must cancel the hold timer")
		}
		clock.Advance(time.Second)
		if len(ov.Selections()) != 1 {
			t.Error("cancelled timer committed")
		}
	})

	t.Run("moving cancels and re-targets", func(t *testing.T) {
		ov, clock, doc := setup(t)
		armed(t, ov)
		p := first(t, doc, "p")
		li := first(t, doc, "li")

		ov.TouchStart(p)
		ov.TouchMove(li)
		if ov.Hovered() != li || dom.HasClass(p, dom.HoverClass) {
			t.Error("expected hover to move to the new target")
		}
		clock.Advance(time.Second)
		ov.TouchEnd()
		if len(ov.Selections()) != 0 {
			t.Errorf("moved touch must not commit, got %d records", len(ov.Selections()))
		}
	})

	t.Run("toggle off cancels the hold", func(t *testing.T) {
		ov, clock, doc := setup(t)
		armed(t, ov)
		ov.TouchStart(first(t, doc, "p"))
		ov.ToggleOff()

		if clock.Pending() != 0 {
			t.Error("toggle off must cancel the hold timer")
		}
		if ov.TouchEnd() {
			t.Error("release after toggle off must not be consumed")
		}
		clock.Advance(time.Second)
		if len(ov.Selections()) != 0 {
			t.Error("no commit may happen after toggle off")
		}
		if len(doc.MarkedWith(dom.HoverClass)) != 0 {
			t.Error("hover marker left behind")
		}
	})

	t.Run("touch while idle is ignored", func(t *testing.T) {
		ov, clock, doc := setup(t)
		if ov.TouchStart(first(t, doc, "p")) {
			t.Error("touch while idle must not be consumed")
		}
		if clock.Pending() != 0 {
			t.Error("no timer expected while idle")
		}
	})
}

func TestOverlay_Load(t *testing.T) {
	ov, clock, doc := setup(t)
	armed(t, ov)
	stale := first(t, doc, "p")
	ov.Click(first(t, doc, "li"))
	ov.TouchStart(stale)

	next, _ := dom.Parse("https://example.test/2", appPage)
	ov.Load(next)

	if ov.State() != Idle {
		t.Fatalf("expected idle after load, got %s", ov.State())
	}
	if len(ov.Selections()) != 0 {
		t.Error("selection list belongs to the previous page")
	}
	clock.Advance(time.Second)
	if len(ov.Selections()) != 0 {
		t.Error("hold from the previous document committed")
	}

	armed(t, ov)
	ov.Click(stale)
	if len(ov.Selections()) != 0 {
		t.Error("commit against a node of the replaced document must be impossible")
	}

	ov.Load(nil)
	if err := ov.ToggleOn(); !errors.Is(err, model.ErrNoDocument) {
		t.Errorf("expected ErrNoDocument after unloading, got %v", err)
	}
}

func TestOverlay_QueryConcurrentWithRemote(t *testing.T) {
	ov, _, _ := setup(t)
	armed(t, ov)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if n, err := ov.Query("p.lead"); err != nil || n == nil {
				t.Errorf("query failed: %v", err)
				return
			}
			_ = ov.Title()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			ov.ApplyRemoteHighlight("#app > p.lead")
			ov.ToggleOff()
			ov.ToggleOn()
		}
	}()
	wg.Wait()
}

func TestOverlay_QueryAndRender(t *testing.T) {
	ov := New(Config{Clock: NewManualClock()})
	if _, err := ov.Query("p"); !errors.Is(err, model.ErrNoDocument) {
		t.Errorf("expected ErrNoDocument, got %v", err)
	}
	if _, err := ov.Render(); !errors.Is(err, model.ErrNoDocument) {
		t.Errorf("expected ErrNoDocument, got %v", err)
	}

	doc, err := dom.Parse("https://example.test/", appPage)
	if err != nil {
		t.Fatalf("failed to parse page: %v", err)
	}
	ov.Load(doc)
	armed(t, ov)

	n, err := ov.Query("#app > p.lead")
	if err != nil || n == nil {
		t.Fatalf("query failed: %v", err)
	}
	ov.Click(n)
	if ov.Title() != "t" {
		t.Errorf("expected title %q, got %q", "t", ov.Title())
	}
	page, err := ov.Render()
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(page, dom.SelectedClass) {
		t.Errorf("expected rendered page to carry the selected marker")
	}
}

func TestOverlay_Remote(t *testing.T) {
	ov, _, doc := setup(t)
	var remote []model.SelectionRecord
	ov.OnRemoteSelect(func(rec model.SelectionRecord) { remote = append(remote, rec) })

	ok := ov.ApplyRemoteSelect(RemoteSelection{
		Selector:   "#app > p.lead",
		Attributes: []string{"text"},
		Data:       map[string]string{"text": "Hi"},
	})
	if !ok {
		t.Fatal("expected remote selector to resolve")
	}
	p := first(t, doc, "p")
	if !dom.HasClass(p, dom.SelectedClass) {
		t.Error("expected selected marker on the resolved element")
	}
	records := ov.Selections()
	if len(records) != 1 || !records[0].Remote || records[0].Selector != "#app > p.lead" {
		t.Fatalf("unexpected records %+v", records)
	}
	if len(remote) != 1 {
		t.Errorf("expected 1 remote notification, got %d", len(remote))
	}

	// a local commit of the same element is a duplicate
	armed(t, ov)
	ov.Click(p)
	if len(ov.Selections()) != 1 {
		t.Error("local commit of a remotely selected selector must be a no-op")
	}

	if ov.ApplyRemoteSelect(RemoteSelection{Selector: "#missing > p"}) {
		t.Error("unresolvable selector must report a miss")
	}
	if ov.ApplyRemoteSelect(RemoteSelection{Selector: "p[["}) {
		t.Error("invalid selector must report a miss")
	}
	if len(ov.Selections()) != 1 {
		t.Error("misses must not change the list")
	}

	if !ov.ApplyRemoteHighlight("nav a") {
		t.Fatal("expected highlight to resolve")
	}
	ov.ApplyRemoteHighlight("li")
	marked := doc.MarkedWith(dom.RemoteHoverClass)
	if len(marked) != 1 || dom.Tag(marked[0]) != "li" {
		t.Error("expected the remote highlight to move")
	}
	if len(ov.Selections()) != 1 {
		t.Error("highlight must not commit")
	}
}

func TestOverlay_SubscriberOrder(t *testing.T) {
	ov, _, doc := setup(t)
	var calls []string
	ov.OnCommit(func(model.SelectionRecord) { calls = append(calls, "first") })
	ov.OnCommit(func(model.SelectionRecord) { calls = append(calls, "second") })

	armed(t, ov)
	ov.Click(first(t, doc, "p"))

	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("expected both subscribers in order, got %v", calls)
	}
}

// **Property: committed attributes exist on the element**
// For any committed element, every recorded attribute is either the synthetic
// text attribute or an attribute present on that element, and has a value.
func TestCommitAttributeSubsetProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	tags := []string{"div", "a", "img", "video", "audio", "span", "p"}
	attrs := []string{"src", "alt", "href", "poster", "title", "data-x"}

	properties.Property("attributes are text or present on the element", prop.ForAll(
		func(tag int, present []int, withText bool, withSource bool) bool {
			name := tags[tag%len(tags)]
			src := "<" + name
			for _, i := range present {
				a := attrs[i%len(attrs)]
				src += " " + a + `="v-` + a + `"`
			}
			src += ` class="target">`
			if withText {
				src += "words"
			}
			if withSource {
				src += `<source src="child.mp4">`
			}
			if name != "img" {
				src += "</" + name + ">"
			}

			doc, err := dom.Parse("", "<html><body>"+src+"</body></html>")
			if err != nil {
				return false
			}
			n, err := doc.QueryFirst(".target")
			if err != nil || n == nil {
				return false
			}

			ov := New(Config{Clock: NewManualClock()})
			ov.Load(doc)
			if ov.ToggleOn() != nil {
				return false
			}
			ov.Click(n)

			records := ov.Selections()
			if len(records) != 1 {
				return false
			}
			own := map[string]bool{}
			for _, a := range dom.AttrNames(n) {
				own[a] = true
			}
			for _, a := range records[0].Attributes {
				if a != model.TextAttribute && !own[a] {
					return false
				}
				if _, ok := records[0].Values[a]; !ok {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 100),
		gen.SliceOf(gen.IntRange(0, 100)),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// **Property: commit idempotence**
// For any sequence of clicks, the selection list never holds two records with
// the same selector, and its length equals the number of distinct selectors.
func TestCommitIdempotenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("selectors stay unique", prop.ForAll(
		func(picks []int) bool {
			ov := New(Config{Clock: NewManualClock()})
			doc, err := dom.Parse("", appPage)
			if err != nil {
				return false
			}
			ov.Load(doc)
			if ov.ToggleOn() != nil {
				return false
			}

			elements := doc.Elements()
			distinct := map[string]bool{}
			for _, i := range picks {
				n := elements[i%len(elements)]
				ov.Click(n)
				if doc.Contains(n) {
					distinct[selector.Derive(n)] = true
				}
			}

			seen := map[string]bool{}
			for _, rec := range ov.Selections() {
				if seen[rec.Selector] {
					return false
				}
				seen[rec.Selector] = true
			}
			return len(seen) == len(distinct)
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}
