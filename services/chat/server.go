package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"

	"skillswap/services/api"
)

const (
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
	maxMessageRunes        = 2000
)

// Authenticator verifies a session token during the websocket handshake.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (api.Claims, error)
}

// RoomAuthorizer decides whether a user may join an exchange's room.
type RoomAuthorizer interface {
	AuthorizeRoom(ctx context.Context, exchangeID, userID uuid.UUID) error
}

// MessageStore durably records a message and returns the stored form.
type MessageStore interface {
	PersistMessage(ctx context.Context, exchangeID, senderID uuid.UUID, body string) (api.Message, error)
}

// Server hosts the websocket messaging gateway. It holds no exchange
// state of its own; membership and persistence stay behind the injected
// interfaces.
type Server struct {
	auth  Authenticator
	rooms RoomAuthorizer
	store MessageStore
	hub   *roomHub
	log   zerolog.Logger
}

func NewServer(auth Authenticator, rooms RoomAuthorizer, store MessageStore, log zerolog.Logger) (*Server, error) {
	if auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if rooms == nil {
		return nil, errors.New("room authorizer is required")
	}
	if store == nil {
		return nil, errors.New("message store is required")
	}
	return &Server{
		auth:  auth,
		rooms: rooms,
		store: store,
		hub:   newRoomHub(),
		log:   log,
	}, nil
}

type wsClaimsContextKey struct{}

// Handler serves GET /ws. Authentication happens before the upgrade so
// unauthenticated clients get a plain 401 instead of a doomed socket.
func (s *Server) Handler() http.Handler {
	wsHandler := websocket.Handler(s.handleConn)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		token := handshakeToken(r)
		if token == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		claims, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket handshake rejected")
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), wsClaimsContextKey{}, claims)
		wsHandler.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handshakeToken mirrors the REST extraction and adds a query fallback
// for browser websocket clients that cannot set headers.
func handshakeToken(r *http.Request) string {
	if token := api.BearerToken(r); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func (s *Server) handleConn(conn *websocket.Conn) {
	request := conn.Request()
	claims, ok := request.Context().Value(wsClaimsContextKey{}).(api.Claims)
	if !ok {
		_ = conn.Close()
		return
	}

	p := newPeer(conn, conn)
	go p.run()

	sess := newSession(claims, p)
	s.hub.register(claims.TokenID, p)
	defer func() {
		sess.leaveAll(s.hub)
		s.hub.unregister(claims.TokenID, p)
		p.close()
	}()

	s.log.Debug().Stringer("user", claims.UserID).Msg("websocket connected")

	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		if p.closed() {
			return
		}

		var frame clientFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || p.closed() {
				return
			}
			decodeErrors++
			p.enqueue(errorFrame(codeInvalidArgument, "invalid frame payload"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			p.enqueue(errorFrame(codeResourceExhausted, "rate limit exceeded"))
			return
		}

		switch frame.Type {
		case frameJoin:
			s.handleJoin(request.Context(), sess, frame)
		case frameSend:
			s.handleSend(request.Context(), sess, frame)
		default:
			p.enqueue(errorFrame(codeInvalidArgument, "unsupported frame type"))
		}
	}
}

func (s *Server) handleJoin(ctx context.Context, sess *session, frame clientFrame) {
	if frame.ExchangeID == uuid.Nil {
		sess.peer.enqueue(errorFrame(codeInvalidArgument, "exchange_id is required"))
		return
	}

	if err := s.rooms.AuthorizeRoom(ctx, frame.ExchangeID, sess.claims.UserID); err != nil {
		sess.peer.enqueue(roomErrorFrame(err))
		return
	}

	r := s.hub.room(frame.ExchangeID)
	r.join(sess.peer)
	sess.addRoom(r)

	sess.peer.enqueue(serverFrame{Type: frameJoined, ExchangeID: frame.ExchangeID})
}

func (s *Server) handleSend(ctx context.Context, sess *session, frame clientFrame) {
	if frame.ExchangeID == uuid.Nil {
		sess.peer.enqueue(errorFrame(codeInvalidArgument, "exchange_id is required"))
		return
	}

	text := strings.TrimSpace(frame.Text)
	if text == "" {
		sess.peer.enqueue(errorFrame(codeInvalidArgument, "text is required"))
		return
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		sess.peer.enqueue(errorFrame(codeInvalidArgument, "text must be at most 2000 characters"))
		return
	}

	r, ok := sess.roomFor(frame.ExchangeID)
	if !ok {
		sess.peer.enqueue(errorFrame(codeForbidden, "join the exchange room before sending"))
		return
	}

	if _, err := r.publish(ctx, s.store, sess.claims.UserID, text); err != nil {
		s.log.Warn().Err(err).Stringer("exchange", frame.ExchangeID).Msg("message persist failed")
		sess.peer.enqueue(roomErrorFrame(err))
	}
}

// roomErrorFrame maps store errors onto wire error codes.
func roomErrorFrame(err error) serverFrame {
	switch {
	case errors.Is(err, api.ErrForbidden):
		return errorFrame(codeForbidden, "participant access required for this exchange")
	case errors.Is(err, api.ErrConflict):
		return errorFrame(codeFailedPrecondition, "exchange is not active")
	case errors.Is(err, api.ErrNotFound):
		return errorFrame(codeNotFound, "exchange not found")
	case errors.Is(err, api.ErrInvalidInput):
		return errorFrame(codeInvalidArgument, "invalid message")
	default:
		return errorFrame(codeUnavailable, "message delivery unavailable")
	}
}
