package session

import (
	"testing"
	"time"
)

func TestDeriveStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		age     time.Duration
		want    Status
		wantMsg string
		wantOK  bool
	}{
		{name: "zero", age: 0, want: StatusConnecting, wantMsg: "Connecting...", wantOK: true},
		{name: "negative", age: -time.Minute, want: StatusConnecting, wantMsg: "Connecting...", wantOK: true},
		{name: "just under 30s", age: 30*time.Second - time.Millisecond, want: StatusConnecting, wantMsg: "Connecting...", wantOK: true},
		{name: "exactly 30s", age: 30 * time.Second, want: StatusLoggedIn, wantMsg: "Logged In", wantOK: true},
		{name: "just under 5m", age: 5*time.Minute - time.Millisecond, want: StatusLoggedIn, wantMsg: "Logged In", wantOK: true},
		{name: "exactly 5m", age: 5 * time.Minute, want: StatusEstablished, wantMsg: "Established", wantOK: true},
		{name: "just under 4h", age: 4*time.Hour - time.Millisecond, want: StatusEstablished, wantMsg: "Established", wantOK: true},
		{name: "exactly 4h", age: 4 * time.Hour, wantOK: false},
		{name: "a day", age: 24 * time.Hour, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := DeriveStatus(tt.age)
			if ok != tt.wantOK {
				t.Fatalf("DeriveStatus(%v) ok = %v, want %v", tt.age, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("DeriveStatus(%v) = %q, want %q", tt.age, got, tt.want)
			}
			if got.Message() != tt.wantMsg {
				t.Errorf("Message() = %q, want %q", got.Message(), tt.wantMsg)
			}
		})
	}
}
