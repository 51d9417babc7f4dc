package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"devconnect/internal/access"
	"devconnect/internal/board"
	"devconnect/internal/store"
)

// Event is one board change as sent to SSE subscribers of a project.
type Event struct {
	Type      string `json:"type"`
	ProjectID int64  `json:"project_id"`
	ActorID   int64  `json:"actor_id,omitempty"`
	// ID is the entity created by the change, when there is one.
	ID      int64 `json:"id,omitempty"`
	Payload any   `json:"payload,omitempty"`
}

const (
	subscriberBuffer = 16
	sseKeepAlive     = 25 * time.Second
)

// EventBus fans project events out to SSE subscribers. A subscriber whose
// buffer is full misses the event.
type EventBus struct {
	mu   sync.RWMutex
	subs map[int64]map[chan []byte]struct{}
}

func NewEventBus() *EventBus { return &EventBus{subs: make(map[int64]map[chan []byte]struct{})} }

func (b *EventBus) Subscribe(projectID int64) (ch chan []byte, cancel func()) {
	ch = make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	if b.subs[projectID] == nil {
		b.subs[projectID] = make(map[chan []byte]struct{})
	}
	b.subs[projectID][ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		if subs, ok := b.subs[projectID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subs, projectID)
			}
		}
		b.mu.Unlock()
		close(ch)
	}
}

func (b *EventBus) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	b.mu.RLock()
	for ch := range b.subs[ev.ProjectID] {
		select {
		case ch <- data:
		default: // slow subscriber, drop
		}
	}
	b.mu.RUnlock()
}

// publishCommit fans out the events of one persisted command.
func (b *EventBus) publishCommit(projectID, actorID int64, events []board.Event, c store.Commit) {
	for _, ev := range events {
		b.Publish(Event{Type: ev.Kind(), ProjectID: projectID, ActorID: actorID, ID: c.NewID, Payload: ev})
	}
}

// sseStream writes server-sent event frames and flushes each one.
type sseStream struct {
	w http.ResponseWriter
	f http.Flusher
}

// comment writes a ": text" line, which clients ignore.
func (s sseStream) comment(text string) {
	fmt.Fprintf(s.w, ": %s\n\n", text)
	s.f.Flush()
}

func (s sseStream) data(msg []byte) {
	fmt.Fprintf(s.w, "data: %s\n\n", msg)
	s.f.Flush()
}

// ServeSSE streams a project's events until the client goes away or the
// subscription is dropped.
func (b *EventBus) ServeSSE(w http.ResponseWriter, r *http.Request, projectID int64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeMessage(w, http.StatusInternalServerError, "Streaming non supporté")
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")

	ch, cancel := b.Subscribe(projectID)
	defer cancel()

	stream := sseStream{w: w, f: flusher}
	stream.comment("connected")

	ping := time.NewTicker(sseKeepAlive)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			stream.comment("ping")
		case msg, ok := <-ch:
			if !ok {
				return
			}
			stream.data(msg)
		}
	}
}

func (a *api) handleEvents(w http.ResponseWriter, r *http.Request, u store.User) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeErr(w, r, "events", err)
		return
	}
	if err := a.ensureProject(r, id); err != nil {
		a.writeErr(w, r, "events", err)
		return
	}
	if _, err := a.authz.Authorize(r.Context(), id, u.ID, access.ViewProject); err != nil {
		a.writeErr(w, r, "events", err)
		return
	}
	a.bus.ServeSSE(w, r, id)
}
