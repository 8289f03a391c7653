package chat

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/google/uuid"

	"skillswap/services/api"
)

// outboundQueueDepth bounds the per-peer delivery queue. A peer that
// cannot drain this many frames is dropped rather than allowed to stall
// the room.
const outboundQueueDepth = 32

// peer owns one websocket connection's outbound half. All frames funnel
// through a buffered queue drained by a single writer goroutine, so room
// broadcasts never block on a slow socket.
type peer struct {
	enc      *json.Encoder
	closer   io.Closer
	outbound chan serverFrame
	done     chan struct{}
	once     sync.Once
}

func newPeer(w io.Writer, closer io.Closer) *peer {
	return &peer{
		enc:      json.NewEncoder(w),
		closer:   closer,
		outbound: make(chan serverFrame, outboundQueueDepth),
		done:     make(chan struct{}),
	}
}

// run drains the outbound queue until the peer closes or a write fails.
func (p *peer) run() {
	defer p.close()
	for {
		select {
		case frame := <-p.outbound:
			if err := p.enc.Encode(frame); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}

// enqueue offers a frame without blocking. A full queue marks the peer a
// slow consumer and closes it.
func (p *peer) enqueue(frame serverFrame) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.outbound <- frame:
		return true
	case <-p.done:
		return false
	default:
		p.close()
		return false
	}
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		if p.closer != nil {
			_ = p.closer.Close()
		}
	})
}

func (p *peer) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// room fans persisted messages out to its subscribers. The room mutex
// makes persist-then-enqueue a single-writer section, so every subscriber
// observes messages in persistence order.
type room struct {
	exchangeID  uuid.UUID
	mu          sync.Mutex
	subscribers map[*peer]struct{}
}

func newRoom(exchangeID uuid.UUID) *room {
	return &room{
		exchangeID:  exchangeID,
		subscribers: make(map[*peer]struct{}),
	}
}

func (r *room) join(p *peer) {
	r.mu.Lock()
	r.subscribers[p] = struct{}{}
	r.mu.Unlock()
}

// leave removes p and reports whether the room is now empty. Removing a
// peer that already left is a no-op.
func (r *room) leave(p *peer) bool {
	r.mu.Lock()
	delete(r.subscribers, p)
	empty := len(r.subscribers) == 0
	r.mu.Unlock()
	return empty
}

// publish persists the message and broadcasts the stored record, sender
// included, under the room lock. A persist failure broadcasts nothing.
func (r *room) publish(ctx context.Context, store MessageStore, senderID uuid.UUID, body string) (api.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, err := store.PersistMessage(ctx, r.exchangeID, senderID, body)
	if err != nil {
		return api.Message{}, err
	}

	frame := serverFrame{Type: frameMessage, ExchangeID: r.exchangeID, Message: &msg}
	for subscriber := range r.subscribers {
		subscriber.enqueue(frame)
	}
	return msg, nil
}

// roomHub tracks live rooms and enforces one connection per session
// token. Rooms are created on first join and dropped when the last
// subscriber leaves.
type roomHub struct {
	mu       sync.Mutex
	rooms    map[uuid.UUID]*room
	sessions map[string]*peer
}

func newRoomHub() *roomHub {
	return &roomHub{
		rooms:    make(map[uuid.UUID]*room),
		sessions: make(map[string]*peer),
	}
}

func (h *roomHub) room(exchangeID uuid.UUID) *room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[exchangeID]
	if !ok {
		r = newRoom(exchangeID)
		h.rooms[exchangeID] = r
	}
	return r
}

func (h *roomHub) dropIfEmpty(r *room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.rooms[r.exchangeID]; ok && current == r {
		current.mu.Lock()
		empty := len(current.subscribers) == 0
		current.mu.Unlock()
		if empty {
			delete(h.rooms, r.exchangeID)
		}
	}
}

// register installs p as the live connection for tokenID, superseding and
// closing any previous connection carrying the same token.
func (h *roomHub) register(tokenID string, p *peer) {
	h.mu.Lock()
	previous := h.sessions[tokenID]
	h.sessions[tokenID] = p
	h.mu.Unlock()

	if previous != nil && previous != p {
		previous.close()
	}
}

// unregister forgets the token binding if p still owns it. A superseded
// connection unregistering late must not evict its successor.
func (h *roomHub) unregister(tokenID string, p *peer) {
	h.mu.Lock()
	if current, ok := h.sessions[tokenID]; ok && current == p {
		delete(h.sessions, tokenID)
	}
	h.mu.Unlock()
}

// session is one connection's view: its identity and the rooms it joined.
type session struct {
	claims api.Claims
	peer   *peer

	mu    sync.Mutex
	rooms map[uuid.UUID]*room
}

func newSession(claims api.Claims, p *peer) *session {
	return &session{
		claims: claims,
		peer:   p,
		rooms:  make(map[uuid.UUID]*room),
	}
}

func (s *session) addRoom(r *room) {
	s.mu.Lock()
	s.rooms[r.exchangeID] = r
	s.mu.Unlock()
}

func (s *session) roomFor(exchangeID uuid.UUID) (*room, bool) {
	s.mu.Lock()
	r, ok := s.rooms[exchangeID]
	s.mu.Unlock()
	return r, ok
}

// leaveAll detaches the session's peer from every joined room. Safe to
// call more than once.
func (s *session) leaveAll(hub *roomHub) {
	s.mu.Lock()
	rooms := make([]*room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.rooms = make(map[uuid.UUID]*room)
	s.mu.Unlock()

	for _, r := range rooms {
		if r.leave(s.peer) {
			hub.dropIfEmpty(r)
		}
	}
}
