package api

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestAuthorizeTransition(t *testing.T) {
	requester := uuid.New()
	provider := uuid.New()
	stranger := uuid.New()

	exchange := func(status ExchangeStatus) Exchange {
		return Exchange{
			ID:          uuid.New(),
			RequesterID: requester,
			ProviderID:  provider,
			Status:      status,
		}
	}

	tests := []struct {
		name    string
		from    ExchangeStatus
		target  ExchangeStatus
		actor   uuid.UUID
		wantErr error
	}{
		{"provider accepts requested", StatusRequested, StatusAccepted, provider, nil},
		{"provider rejects requested", StatusRequested, StatusRejected, provider, nil},
		{"requester completes accepted", StatusAccepted, StatusCompleted, requester, nil},
		{"requester cancels requested", StatusRequested, StatusCancelled, requester, nil},
		{"provider cancels accepted", StatusAccepted, StatusCancelled, provider, nil},

		{"requester cannot accept", StatusRequested, StatusAccepted, requester, ErrForbidden},
		{"requester cannot reject", StatusRequested, StatusRejected, requester, ErrForbidden},
		{"provider cannot complete", StatusAccepted, StatusCompleted, provider, ErrForbidden},
		{"stranger cannot transition", StatusRequested, StatusAccepted, stranger, ErrForbidden},
		{"stranger blocked before precondition", StatusCompleted, StatusCancelled, stranger, ErrForbidden},

		{"cannot accept accepted", StatusAccepted, StatusAccepted, provider, ErrInvalidTransition},
		{"cannot complete requested", StatusRequested, StatusCompleted, requester, ErrInvalidTransition},
		{"cannot cancel rejected", StatusRejected, StatusCancelled, requester, ErrInvalidTransition},
		{"cannot cancel completed", StatusCompleted, StatusCancelled, requester, ErrInvalidTransition},
		{"cannot cancel cancelled", StatusCancelled, StatusCancelled, provider, ErrInvalidTransition},
		{"requested is never a target", StatusAccepted, StatusRequested, provider, ErrInvalidTransition},
		{"unknown target", StatusRequested, ExchangeStatus("archived"), provider, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authorizeTransition(exchange(tt.from), tt.actor, tt.target)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("authorizeTransition() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("authorizeTransition() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTerminalStatusesHaveNoExit(t *testing.T) {
	requester := uuid.New()
	provider := uuid.New()

	terminal := []ExchangeStatus{StatusRejected, StatusCompleted, StatusCancelled}
	targets := []ExchangeStatus{StatusAccepted, StatusRejected, StatusCompleted, StatusCancelled}

	for _, from := range terminal {
		for _, target := range targets {
			ex := Exchange{RequesterID: requester, ProviderID: provider, Status: from}
			for _, actor := range []uuid.UUID{requester, provider} {
				if err := authorizeTransition(ex, actor, target); err == nil {
					t.Fatalf("transition %s -> %s allowed for a terminal status", from, target)
				}
			}
		}
	}
}

func TestDeletableStatus(t *testing.T) {
	if deletableStatus(StatusAccepted) {
		t.Fatal("accepted exchange must not be deletable")
	}
	for _, status := range []ExchangeStatus{StatusRequested, StatusRejected, StatusCompleted, StatusCancelled} {
		if !deletableStatus(status) {
			t.Fatalf("%s exchange should be deletable", status)
		}
	}
}

func TestStatusUpdateValidate(t *testing.T) {
	rating := func(n int) *int { return &n }

	tests := []struct {
		name    string
		update  statusUpdate
		wantErr bool
	}{
		{"plain transition", statusUpdate{Status: StatusAccepted}, false},
		{"completion with review", statusUpdate{Status: StatusCompleted, Rating: rating(5), Comment: "great"}, false},
		{"completion without review", statusUpdate{Status: StatusCompleted}, false},
		{"missing status", statusUpdate{}, true},
		{"review outside completion", statusUpdate{Status: StatusAccepted, Rating: rating(4)}, true},
		{"comment outside completion", statusUpdate{Status: StatusCancelled, Comment: "nope"}, true},
		{"rating too low", statusUpdate{Status: StatusCompleted, Rating: rating(0)}, true},
		{"rating too high", statusUpdate{Status: StatusCompleted, Rating: rating(6)}, true},
		{"comment too long", statusUpdate{Status: StatusCompleted, Comment: strings.Repeat("x", 501)}, true},
		{"comment at limit", statusUpdate{Status: StatusCompleted, Comment: strings.Repeat("x", 500)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.update.validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("validate() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestExchangeParticipant(t *testing.T) {
	requester := uuid.New()
	provider := uuid.New()
	ex := Exchange{RequesterID: requester, ProviderID: provider}

	if !ex.Participant(requester) || !ex.Participant(provider) {
		t.Fatal("both parties should be participants")
	}
	if ex.Participant(uuid.New()) {
		t.Fatal("stranger reported as participant")
	}
}
