package server

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cowrite/cowrite/storage"
)

// Hub owns the document id to router mapping. It is constructed once at
// process start and handed to request-scoped code; there are no
// package-level registries. A router lives from the first participant's
// attach until the last one's detach, at which point it drains (final
// flush) and the id can be activated again.
type Hub struct {
	store storage.Store
	cfg   Config
	log   *logrus.Logger

	mu      sync.Mutex
	routers map[string]*routerRef
}

type routerRef struct {
	r    *documentRouter
	refs int
}

// NewHub creates a hub persisting through the given store.
func NewHub(store storage.Store, cfg Config, log *logrus.Logger) *Hub {
	return &Hub{
		store:   store,
		cfg:     cfg.withDefaults(),
		log:     log,
		routers: make(map[string]*routerRef),
	}
}

// Attach joins a participant to a document session, activating the session
// if it is not loaded. If the previous session for the id is still
// draining, Attach waits for the drain to finish so the new session loads
// the freshly flushed snapshot.
func (h *Hub) Attach(documentID string, c *client) *documentRouter {
	for {
		h.mu.Lock()
		ref, ok := h.routers[documentID]

		if ok && ref.refs == 0 {
			// Draining; wait it out and retry.
			done := ref.r.done
			h.mu.Unlock()
			<-done
			h.forget(documentID, ref)
			continue
		}

		if !ok {
			ref = &routerRef{r: h.newRouter(documentID)}
			h.routers[documentID] = ref

			ctx, cancel := context.WithCancel(context.Background())
			ref.r.cancel = cancel
			go ref.r.run(ctx)
		}

		ref.refs++
		h.mu.Unlock()

		ref.r.enqueue(event{kind: evJoin, c: c})
		return ref.r
	}
}

// Detach removes a participant. The last detach for a document cancels its
// router, which flushes once more and unloads.
func (h *Hub) Detach(documentID string, c *client) {
	h.mu.Lock()
	ref, ok := h.routers[documentID]
	h.mu.Unlock()
	if !ok {
		return
	}

	ref.r.enqueue(event{kind: evLeave, c: c})

	h.mu.Lock()
	ref.refs--
	last := ref.refs == 0
	h.mu.Unlock()

	if last {
		ref.r.cancel()
		go func() {
			<-ref.r.done
			h.forget(documentID, ref)
		}()
	}
}

// forget removes a drained router from the map, unless the id has already
// been re-activated with a fresh one.
func (h *Hub) forget(documentID string, ref *routerRef) {
	h.mu.Lock()
	if current, ok := h.routers[documentID]; ok && current == ref && current.refs == 0 {
		delete(h.routers, documentID)
	}
	h.mu.Unlock()
}

// ActiveDocuments returns the number of loaded document sessions.
func (h *Hub) ActiveDocuments() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.routers)
}

// Shutdown cancels every router and waits for the final flushes, bounded by
// ctx.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	refs := make([]*routerRef, 0, len(h.routers))
	for _, ref := range h.routers {
		refs = append(refs, ref)
	}
	h.mu.Unlock()

	for _, ref := range refs {
		ref.r.cancel()
	}
	for _, ref := range refs {
		select {
		case <-ref.r.done:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) newRouter(documentID string) *documentRouter {
	log := h.log.WithField("document", documentID)
	return &documentRouter{
		id:       documentID,
		cfg:      h.cfg,
		log:      log,
		sessions: newSessionRegistry(h.cfg.OnlineWindow, h.cfg.AwayWindow),
		bridge:   newPersistenceBridge(h.store, documentID, log),
		inbox:    make(chan event, h.cfg.InboxSize),
		done:     make(chan struct{}),
	}
}
