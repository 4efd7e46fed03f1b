package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/pagepick/backend/internal/model"
	"github.com/pagepick/backend/internal/session"
)

const helpText = `commands:
  open <url>     load a page
  on | off       enter or leave selection mode
  hover <css>    move the pointer over the first match
  click <css>    click the first match
  touch <css>    press and hold the first match
  move <css>     slide a held touch onto the first match
  release        lift the touch
  list           show the selection list
  save           persist the selection list
  state          show the overlay state
  dump           print the page with its current markers
  quit           exit`

var errQuit = errors.New("quit")

// console drives a coordinator from line commands, standing in for the
// pointer and touch events of a browser viewer.
type console struct {
	coord *session.Coordinator
	in    io.Reader

	mu  sync.Mutex
	out io.Writer
}

func newConsole(coord *session.Coordinator, in io.Reader, out io.Writer) *console {
	c := &console{coord: coord, in: in, out: out}
	coord.Overlay().OnRemoteSelect(func(rec model.SelectionRecord) {
		c.printf("remote: %s %v\n", rec.Selector, rec.Values)
	})
	return c
}

func (c *console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Run reads commands until quit, EOF or ctx is done.
func (c *console) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.exec(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				c.printf("error: %v\n", err)
			}
		}
	}
}

func (c *console) exec(ctx context.Context, line string) error {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	ov := c.coord.Overlay()

	switch cmd {
	case "":
		return nil
	case "help":
		c.printf("%s\n", helpText)
	case "quit", "exit":
		return errQuit
	case "open":
		if arg == "" {
			return fmt.Errorf("usage: open <url>")
		}
		doc, err := c.coord.Navigate(ctx, arg)
		if err != nil {
			return err
		}
		c.printf("loaded %s %q\n", doc.SourceURL(), ov.Title())
	case "on":
		if err := ov.ToggleOn(); err != nil {
			return err
		}
		c.printf("selection mode on\n")
	case "off":
		ov.ToggleOff()
		c.printf("selection mode off\n")
	case "hover", "click", "touch", "move":
		n, err := c.find(arg)
		if err != nil {
			return err
		}
		switch cmd {
		case "hover":
			ov.Hover(n)
		case "click":
			if ov.SuppressDefault(n) {
				c.printf("link or form action suppressed\n")
			}
			if !ov.Click(n) {
				c.printf("click passed through\n")
			}
		case "touch":
			if !ov.TouchStart(n) {
				c.printf("touch passed through\n")
			}
		case "move":
			ov.TouchMove(n)
		}
	case "release":
		ov.TouchEnd()
	case "list":
		for i, rec := range ov.Selections() {
			origin := "local"
			if rec.Remote {
				origin = "remote"
			}
			c.printf("%d. %s [%s] %s %v\n", i+1, rec.Selector, origin, rec.Kind, rec.Values)
		}
	case "save":
		sel, err := c.coord.Save(ctx)
		if err != nil {
			return err
		}
		c.printf("saved %s (%d selectors)\n", sel.ID, len(sel.Selectors))
	case "state":
		c.printf("%s\n", ov.State())
	case "dump":
		page, err := ov.Render()
		if err != nil {
			return err
		}
		c.printf("%s\n", page)
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func (c *console) find(css string) (*html.Node, error) {
	if css == "" {
		return nil, fmt.Errorf("a CSS selector is required")
	}
	n, err := c.coord.Overlay().Query(css)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("no element matches %q", css)
	}
	return n, nil
}
