package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"skillswap/services/api"
)

type fakeAuthenticator struct {
	claims api.Claims
	err    error
}

func (f *fakeAuthenticator) Authenticate(context.Context, string) (api.Claims, error) {
	return f.claims, f.err
}

// fakeRoomAuthorizer grants or denies per exchange id.
type fakeRoomAuthorizer struct {
	deny map[uuid.UUID]error
}

func (f *fakeRoomAuthorizer) AuthorizeRoom(_ context.Context, exchangeID, _ uuid.UUID) error {
	if err, ok := f.deny[exchangeID]; ok {
		return err
	}
	return nil
}

func newTestServer(t *testing.T, rooms RoomAuthorizer, store MessageStore) *Server {
	t.Helper()
	if rooms == nil {
		rooms = &fakeRoomAuthorizer{}
	}
	if store == nil {
		store = &fakeMessageStore{}
	}
	srv, err := NewServer(&fakeAuthenticator{}, rooms, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}

func newTestSession(t *testing.T) (*session, *frameSink) {
	t.Helper()
	p, sink := startPeer(t)
	claims := api.Claims{UserID: uuid.New(), TokenID: uuid.NewString()}
	return newSession(claims, p), sink
}

func TestNewServerRequiresCollaborators(t *testing.T) {
	auth := &fakeAuthenticator{}
	rooms := &fakeRoomAuthorizer{}
	store := &fakeMessageStore{}

	if _, err := NewServer(nil, rooms, store, zerolog.Nop()); err == nil {
		t.Fatal("NewServer accepted a nil authenticator")
	}
	if _, err := NewServer(auth, nil, store, zerolog.Nop()); err == nil {
		t.Fatal("NewServer accepted a nil room authorizer")
	}
	if _, err := NewServer(auth, rooms, nil, zerolog.Nop()); err == nil {
		t.Fatal("NewServer accepted a nil message store")
	}
}

func TestJoinThenSendDeliversToSender(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	sess, sink := newTestSession(t)
	exchangeID := uuid.New()

	srv.handleJoin(context.Background(), sess, clientFrame{Type: frameJoin, ExchangeID: exchangeID})

	joined := sink.next(t)
	if joined.Type != frameJoined || joined.ExchangeID != exchangeID {
		t.Fatalf("join reply = %+v", joined)
	}

	srv.handleSend(context.Background(), sess, clientFrame{Type: frameSend, ExchangeID: exchangeID, Text: "  hello there  "})

	frame := sink.next(t)
	if frame.Type != frameMessage {
		t.Fatalf("frame type = %s, want %s", frame.Type, frameMessage)
	}
	if frame.Message.Body != "hello there" {
		t.Fatalf("body = %q, want trimmed text", frame.Message.Body)
	}
	if frame.Message.SenderID != sess.claims.UserID {
		t.Fatalf("sender = %s, want %s", frame.Message.SenderID, sess.claims.UserID)
	}
}

func TestJoinErrorCodes(t *testing.T) {
	forbidden := uuid.New()
	inactive := uuid.New()
	missing := uuid.New()

	rooms := &fakeRoomAuthorizer{deny: map[uuid.UUID]error{
		forbidden: fmt.Errorf("%w: not a participant", api.ErrForbidden),
		inactive:  fmt.Errorf("%w: exchange is not accepted", api.ErrConflict),
		missing:   fmt.Errorf("%w: no such exchange", api.ErrNotFound),
	}}
	srv := newTestServer(t, rooms, nil)

	tests := []struct {
		name       string
		exchangeID uuid.UUID
		wantCode   string
	}{
		{"non participant", forbidden, codeForbidden},
		{"inactive exchange", inactive, codeFailedPrecondition},
		{"unknown exchange", missing, codeNotFound},
		{"missing exchange id", uuid.Nil, codeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, sink := newTestSession(t)
			srv.handleJoin(context.Background(), sess, clientFrame{Type: frameJoin, ExchangeID: tt.exchangeID})

			frame := sink.next(t)
			if frame.Type != frameTypeError || frame.Error == nil {
				t.Fatalf("frame = %+v, want an error frame", frame)
			}
			if frame.Error.Code != tt.wantCode {
				t.Fatalf("code = %s, want %s", frame.Error.Code, tt.wantCode)
			}
			if _, ok := sess.roomFor(tt.exchangeID); ok {
				t.Fatal("session joined a room it was denied")
			}
		})
	}
}

func TestSendRequiresJoin(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	sess, sink := newTestSession(t)

	srv.handleSend(context.Background(), sess, clientFrame{Type: frameSend, ExchangeID: uuid.New(), Text: "hi"})

	frame := sink.next(t)
	if frame.Type != frameTypeError || frame.Error.Code != codeForbidden {
		t.Fatalf("frame = %+v, want %s", frame, codeForbidden)
	}
}

func TestSendValidation(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	exchangeID := uuid.New()

	tests := []struct {
		name string
		text string
	}{
		{"empty text", ""},
		{"whitespace only", "   \n\t "},
		{"over the rune limit", strings.Repeat("a", maxMessageRunes+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, sink := newTestSession(t)
			srv.handleJoin(context.Background(), sess, clientFrame{Type: frameJoin, ExchangeID: exchangeID})
			sink.next(t) // joined

			srv.handleSend(context.Background(), sess, clientFrame{Type: frameSend, ExchangeID: exchangeID, Text: tt.text})

			frame := sink.next(t)
			if frame.Type != frameTypeError || frame.Error.Code != codeInvalidArgument {
				t.Fatalf("frame = %+v, want %s", frame, codeInvalidArgument)
			}
		})
	}
}

func TestSendPersistFailureOnlyErrorsTheSender(t *testing.T) {
	store := &fakeMessageStore{}
	srv := newTestServer(t, nil, store)
	exchangeID := uuid.New()

	sender, senderSink := newTestSession(t)
	other, otherSink := newTestSession(t)
	srv.handleJoin(context.Background(), sender, clientFrame{Type: frameJoin, ExchangeID: exchangeID})
	srv.handleJoin(context.Background(), other, clientFrame{Type: frameJoin, ExchangeID: exchangeID})
	senderSink.next(t) // joined
	otherSink.next(t)  // joined

	store.mu.Lock()
	store.fail = fmt.Errorf("%w: exchange is not accepted", api.ErrConflict)
	store.mu.Unlock()

	srv.handleSend(context.Background(), sender, clientFrame{Type: frameSend, ExchangeID: exchangeID, Text: "hi"})

	frame := senderSink.next(t)
	if frame.Type != frameTypeError || frame.Error.Code != codeFailedPrecondition {
		t.Fatalf("sender frame = %+v, want %s", frame, codeFailedPrecondition)
	}
	otherSink.expectNone(t)
}
