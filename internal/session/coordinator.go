// Package session ties one viewer's overlay to the realtime channel, the page
// fetcher and the selection store.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pagepick/backend/internal/dom"
	"github.com/pagepick/backend/internal/fetch"
	"github.com/pagepick/backend/internal/model"
	"github.com/pagepick/backend/internal/overlay"
	"github.com/pagepick/backend/internal/repository"
	"github.com/pagepick/backend/internal/ws"
)

// Channel is the realtime transport a Coordinator sends through.
// *ws.Channel satisfies it.
type Channel interface {
	Send(msg ws.Message) bool
	Subscribe(fn func(ws.Message))
}

// Config wires a Coordinator. Overlay defaults to a new overlay with default settings.
type Config struct {
	Overlay        *overlay.Overlay
	Channel        Channel
	Fetcher        fetch.Fetcher
	Store          repository.SelectionStore
	BroadcastHover bool
	Logger         logrus.FieldLogger
}

// Coordinator owns a viewer's overlay and forwards local commits and hovers
// to the channel, and remote ones to the overlay.
type Coordinator struct {
	overlay        *overlay.Overlay
	channel        Channel
	fetcher        fetch.Fetcher
	store          repository.SelectionStore
	broadcastHover bool
	log            logrus.FieldLogger

	mu     sync.Mutex
	navSeq uint64
}

// NewCoordinator creates a Coordinator and subscribes it to the overlay and channel.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Overlay == nil {
		cfg.Overlay = overlay.New(overlay.Config{})
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	c := &Coordinator{
		overlay:        cfg.Overlay,
		channel:        cfg.Channel,
		fetcher:        cfg.Fetcher,
		store:          cfg.Store,
		broadcastHover: cfg.BroadcastHover,
		log:            cfg.Logger,
	}

	c.overlay.OnCommit(c.handleCommit)
	c.overlay.OnHover(c.handleHover)
	if c.channel != nil {
		c.channel.Subscribe(c.handleRemote)
	}
	return c
}

// Overlay returns the coordinator's overlay.
func (c *Coordinator) Overlay() *overlay.Overlay {
	return c.overlay
}

// Navigate resets the overlay and loads pageURL. On failure no document is
// loaded and the error is returned; the viewer keeps running.
func (c *Coordinator) Navigate(ctx context.Context, pageURL string) (*dom.Document, error) {
	c.mu.Lock()
	c.navSeq++
	seq := c.navSeq
	c.mu.Unlock()

	// the old document goes away before the fetch starts
	c.overlay.Load(nil)

	if c.fetcher == nil {
		return nil, fmt.Errorf("%w: no page fetcher configured", model.ErrFetchFailed)
	}
	page, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		c.log.WithError(err).WithField("url", pageURL).Warn("failed to load page")
		return nil, err
	}
	doc, err := dom.Parse(pageURL, page)
	if err != nil {
		c.log.WithError(err).WithField("url", pageURL).Warn("failed to parse page")
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.navSeq {
		// a later navigation owns the overlay now
		return nil, context.Canceled
	}
	c.overlay.Load(doc)
	c.log.WithFields(logrus.Fields{"url": pageURL, "title": doc.Title()}).Info("page loaded")
	return doc, nil
}

// Save persists the current selectors, the union of their attributes and the
// page URL. A store failure is wrapped in model.ErrPersistence and leaves the
// selection list untouched so the operator can retry.
func (c *Coordinator) Save(ctx context.Context) (*model.SavedSelection, error) {
	doc := c.overlay.Document()
	if doc == nil {
		return nil, model.ErrNoDocument
	}
	selectors, attributes := c.overlay.Snapshot()

	sel, err := repository.NewSavedSelection(&model.SaveSelectionRequest{
		Selectors:  selectors,
		Attributes: attributes,
		SourceURL:  doc.SourceURL(),
	})
	if err != nil {
		return nil, err
	}
	if c.store == nil {
		return nil, fmt.Errorf("%w: no store configured", model.ErrPersistence)
	}
	if err := c.store.Save(ctx, sel); err != nil {
		c.log.WithError(err).Warn("failed to save selection")
		return nil, fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}

	c.log.WithFields(logrus.Fields{"id": sel.ID, "selectors": len(sel.Selectors)}).Info("selection saved")
	return sel, nil
}

func (c *Coordinator) handleCommit(rec model.SelectionRecord) {
	if c.channel == nil {
		return
	}
	c.channel.Send(ws.Message{
		Type:       ws.MessageTypeSelectElement,
		Selector:   rec.Selector,
		Attributes: rec.Attributes,
		Data:       rec.Values,
	})
}

func (c *Coordinator) handleHover(selector string) {
	if c.channel == nil || !c.broadcastHover {
		return
	}
	c.channel.Send(ws.Message{Type: ws.MessageTypeHighlightElement, Selector: selector})
}

func (c *Coordinator) handleRemote(msg ws.Message) {
	switch msg.Type {
	case ws.MessageTypeElementSelected:
		ok := c.overlay.ApplyRemoteSelect(overlay.RemoteSelection{
			Selector:   msg.Selector,
			Attributes: msg.Attributes,
			Data:       msg.Data,
		})
		if !ok {
			c.log.WithField("selector", msg.Selector).Debug("remote selection does not match this page")
		}
	case ws.MessageTypeElementHighlighted:
		c.overlay.ApplyRemoteHighlight(msg.Selector)
	}
}
