package api

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateMessageBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"plain text", "hello", "hello", false},
		{"trims whitespace", "  hello  ", "hello", false},
		{"empty", "", "", true},
		{"whitespace only", " \n\t ", "", true},
		{"at the rune limit", strings.Repeat("a", maxMessageRunes), strings.Repeat("a", maxMessageRunes), false},
		{"over the rune limit", strings.Repeat("a", maxMessageRunes+1), "", true},
		// 2000 multibyte runes is 6000 bytes and must still pass; the
		// limit counts characters, not encoded length.
		{"multibyte at the rune limit", strings.Repeat("語", maxMessageRunes), strings.Repeat("語", maxMessageRunes), false},
		{"multibyte over the rune limit", strings.Repeat("語", maxMessageRunes+1), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateMessageBody(tt.body)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateMessageBody() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("validateMessageBody() error = %v, want ErrInvalidInput", err)
				}
				return
			}
			if got != tt.want {
				t.Fatalf("validateMessageBody() = %q, want %q", got, tt.want)
			}
		})
	}
}
