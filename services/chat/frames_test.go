package chat

import (
	"encoding/json"
	"testing"
)

func TestErrorFrameWireShape(t *testing.T) {
	frame := errorFrame(codeForbidden, "participant access required for this exchange")

	if frame.Type != frameTypeError {
		t.Fatalf("frame type = %q, want %q", frame.Type, frameTypeError)
	}

	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal error frame: %v", err)
	}

	var decoded struct {
		Type  string `json:"type"`
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal error frame: %v", err)
	}
	if decoded.Type != "error" {
		t.Fatalf("wire type = %q, want error", decoded.Type)
	}
	if decoded.Error.Code != codeForbidden || decoded.Error.Message == "" {
		t.Fatalf("wire error = %+v", decoded.Error)
	}
}
