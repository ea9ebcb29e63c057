package id

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	value, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if len(value) != 26 {
		t.Fatalf("len = %d, want 26", len(value))
	}
	if strings.ContainsAny(value, "=ABCDEFGHIJKLMNOPQRSTUVWXYZ01890") {
		t.Fatalf("id %q has padding, uppercase or non-base32 digits", value)
	}
	if !Valid(value) {
		t.Fatalf("Valid(%q) = false, want true", value)
	}

	decoded, err := encoding.DecodeString(strings.ToUpper(value))
	if err != nil {
		t.Fatalf("decode id: %v", err)
	}
	if version := decoded[6] >> 4; version != 4 {
		t.Fatalf("uuid version = %d, want 4", version)
	}
	if variant := decoded[8] & 0xC0; variant != 0x80 {
		t.Fatalf("uuid variant = %#x, want 0x80", variant)
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 128)
	for range 128 {
		value, err := NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if _, ok := seen[value]; ok {
			t.Fatalf("duplicate id %q", value)
		}
		seen[value] = struct{}{}
	}
}

func TestValid(t *testing.T) {
	generated, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{name: "generated", value: generated, want: true},
		{name: "uppercase accepted", value: strings.ToUpper(generated), want: true},
		{name: "empty", value: "", want: false},
		{name: "short", value: generated[:10], want: false},
		{name: "bad alphabet", value: strings.Repeat("1", 26), want: false},
		{name: "trigger name", value: "movie-night", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Valid(tt.value); got != tt.want {
				t.Fatalf("Valid(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
