package chat

import (
	"github.com/google/uuid"

	"skillswap/services/api"
)

// Client frame types.
const (
	frameJoin = "join"
	frameSend = "send"
)

// Server frame types.
const (
	frameJoined    = "joined"
	frameMessage   = "message"
	frameTypeError = "error"
)

// Error codes carried on error frames.
const (
	codeInvalidArgument    = "INVALID_ARGUMENT"
	codeForbidden          = "FORBIDDEN"
	codeNotFound           = "NOT_FOUND"
	codeFailedPrecondition = "FAILED_PRECONDITION"
	codeResourceExhausted  = "RESOURCE_EXHAUSTED"
	codeUnavailable        = "UNAVAILABLE"
)

// clientFrame is the single decode target for inbound frames. Fields not
// used by a given type stay zero.
type clientFrame struct {
	Type       string    `json:"type"`
	ExchangeID uuid.UUID `json:"exchange_id,omitempty"`
	Text       string    `json:"text,omitempty"`
}

type frameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type serverFrame struct {
	Type       string       `json:"type"`
	ExchangeID uuid.UUID    `json:"exchange_id,omitempty"`
	Message    *api.Message `json:"message,omitempty"`
	Error      *frameError  `json:"error,omitempty"`
}

func errorFrame(code, message string) serverFrame {
	return serverFrame{
		Type:  frameTypeError,
		Error: &frameError{Code: code, Message: message},
	}
}
