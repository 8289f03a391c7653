package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrUnauthenticated, http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{ErrNotFound, http.StatusNotFound},
		{ErrInvalidTransition, http.StatusConflict},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrConflict, http.StatusConflict},
		{fmt.Errorf("%w: not yours", ErrForbidden), http.StatusForbidden},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestTopicForStatus(t *testing.T) {
	tests := []struct {
		status ExchangeStatus
		want   string
	}{
		{StatusRequested, topicExchangeRequested},
		{StatusAccepted, topicExchangeAccepted},
		{StatusRejected, topicExchangeRejected},
		{StatusCompleted, topicExchangeCompleted},
		{StatusCancelled, topicExchangeCancelled},
	}

	for _, tt := range tests {
		if got := topicForStatus(tt.status); got != tt.want {
			t.Errorf("topicForStatus(%s) = %s, want %s", tt.status, got, tt.want)
		}
	}
}
