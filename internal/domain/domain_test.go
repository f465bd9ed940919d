package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNewUser(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		username string
		wantErr  error
	}{
		{"valid", "u-1", "alice", nil},
		{"trimmed", "  u-2 ", " bob ", nil},
		{"empty id", " ", "alice", ErrUserIDEmpty},
		{"long id", strings.Repeat("x", MaxUserIDLen+1), "alice", ErrUserIDTooLong},
		{"empty name", "u-3", "", ErrUsernameEmpty},
		{"long name", "u-4", strings.Repeat("n", MaxUsernameLen+1), ErrUsernameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := NewUser(tt.id, tt.username)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewUser(%q, %q) err = %v, want %v", tt.id, tt.username, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if string(u.ID) != strings.TrimSpace(tt.id) || u.Username != strings.TrimSpace(tt.username) {
				t.Errorf("got %+v", u)
			}
		})
	}
}

func TestParseRoomID(t *testing.T) {
	id, err := ParseRoomID(" clan-42 ")
	if err != nil || id != "clan-42" {
		t.Fatalf("ParseRoomID = %q, %v", id, err)
	}
	if _, err := ParseRoomID(""); !errors.Is(err, ErrRoomIDEmpty) {
		t.Errorf("empty: err = %v", err)
	}
	if _, err := ParseRoomID(strings.Repeat("r", MaxRoomIDLen+1)); !errors.Is(err, ErrRoomIDTooLong) {
		t.Errorf("long: err = %v", err)
	}
}
