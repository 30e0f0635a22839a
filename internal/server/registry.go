package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	orchestration "github.com/koscakluka/ema-duplex/core"
	"github.com/koscakluka/ema-duplex/core/events"
	"github.com/koscakluka/ema-duplex/core/forms"
)

var ErrRegistryClosed = errors.New("session registry is closed")

const formSaveTimeout = 2 * time.Second

// SessionFactory builds a session for userID. The session must deliver its
// events to handler and start from form.
type SessionFactory func(userID string, form forms.Form, handler func(events.Event)) *orchestration.Session

type liveSession struct {
	session     *orchestration.Session
	hub         *Hub
	connections int

	// closing is set once the last connection left. closed is closed after
	// the form was saved and the entry removed.
	closing bool
	closed  chan struct{}
}

// Registry keeps one session per user while at least one connection of that
// user is open. Forms outlive sessions so a reconnecting user continues where
// they stopped.
type Registry struct {
	ctx     context.Context
	factory SessionFactory

	mu     sync.Mutex
	live   map[string]*liveSession
	forms  map[string]forms.Form
	closed bool
}

func NewRegistry(ctx context.Context, factory SessionFactory) *Registry {
	return &Registry{
		ctx:     ctx,
		factory: factory,
		live:    make(map[string]*liveSession),
		forms:   make(map[string]forms.Form),
	}
}

// Acquire returns the live session of userID, creating it on the first
// connection. Every Acquire must be paired with a Release.
// A session that is still closing is waited for, so the new one starts from
// the form it saved.
func (r *Registry) Acquire(userID string) (*orchestration.Session, *Hub, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if r.closed {
			return nil, nil, ErrRegistryClosed
		}

		live, ok := r.live[userID]
		if !ok {
			break
		}
		if !live.closing {
			live.connections++
			return live.session, live.hub, nil
		}

		r.mu.Unlock()
		<-live.closed
		r.mu.Lock()
	}

	hub := NewHub()
	session := r.factory(userID, r.forms[userID], hub.BroadcastEvent)
	if err := session.Start(r.ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start session for %s: %w", userID, err)
	}

	r.live[userID] = &liveSession{session: session, hub: hub, connections: 1, closed: make(chan struct{})}
	logger.Info("session opened", "user", userID, "session", session.ID())
	return session, hub, nil
}

// Release drops one connection of userID. The last one closes the session
// before Release returns.
func (r *Registry) Release(userID string) {
	r.mu.Lock()
	live, ok := r.live[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	live.connections--
	if live.connections > 0 || live.closing {
		r.mu.Unlock()
		return
	}
	live.closing = true
	r.mu.Unlock()

	r.closeSession(userID, live)
}

// closeSession saves the form of a closing session, closes it and only then
// removes it from the live set.
func (r *Registry) closeSession(userID string, live *liveSession) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), formSaveTimeout)
	defer cancel()

	form, err := live.session.Form(ctx)
	if err != nil {
		logger.Warn("failed to save form", "user", userID, "error", err)
	}
	live.session.Close()

	r.mu.Lock()
	if err == nil {
		r.forms[userID] = form
	}
	if r.live[userID] == live {
		delete(r.live, userID)
	}
	r.mu.Unlock()
	close(live.closed)

	logger.Info("session closed", "user", userID, "session", live.session.ID())
}

// lookup returns the live session of userID. A closing session is waited
// for and reported as gone.
func (r *Registry) lookup(userID string) (*orchestration.Session, bool) {
	r.mu.Lock()
	live, ok := r.live[userID]
	closing := ok && live.closing
	r.mu.Unlock()

	if !ok {
		return nil, false
	}
	if closing {
		<-live.closed
		return nil, false
	}
	return live.session, true
}

// Form returns the form of userID, from its live session when there is one.
func (r *Registry) Form(ctx context.Context, userID string) (forms.Form, error) {
	if session, ok := r.lookup(userID); ok {
		return session.Form(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.forms[userID], nil
}

// UpdateField sets a field of userID's form. A live session broadcasts the
// change to its connections.
func (r *Registry) UpdateField(ctx context.Context, userID, field, value string) error {
	if session, ok := r.lookup(userID); ok {
		return session.UpdateField(ctx, field, value)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	form := r.forms[userID]
	if err := form.Set(field, value); err != nil {
		return err
	}
	r.forms[userID] = form
	return nil
}

func (r *Registry) ResetForm(ctx context.Context, userID string) error {
	if session, ok := r.lookup(userID); ok {
		return session.ResetForm(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.forms, userID)
	return nil
}

// Close closes every live session and waits for sessions that were already
// closing.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	toClose := make(map[string]*liveSession)
	var closing []*liveSession
	for userID, live := range r.live {
		if live.closing {
			closing = append(closing, live)
			continue
		}
		live.closing = true
		toClose[userID] = live
	}
	r.mu.Unlock()

	for userID, live := range toClose {
		r.closeSession(userID, live)
	}
	for _, live := range closing {
		<-live.closed
	}
}
