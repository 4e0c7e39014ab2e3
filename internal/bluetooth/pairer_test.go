package bluetooth

import (
	"context"
	"testing"
)

func TestCtlPairer(t *testing.T) {
	tests := []struct {
		name        string
		output      string
		succeeded   bool
		authFailure bool
	}{
		{"successful", "Attempting to pair\nPairing successful\n", true, false},
		{"already paired", "Failed to pair: org.bluez.Error.AlreadyExists Already Paired\n", true, false},
		{"rejected", "Failed to pair: org.bluez.Error.AuthenticationFailed\n", false, true},
		{"timeout", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			runner.respond("bluetoothctl pair AA:BB:CC:DD:EE:FF", tt.output)
			p := NewCtlPairer(runner)

			res := p.Pair(context.Background(), Adapter{}, "AA:BB:CC:DD:EE:FF")
			if res.Succeeded != tt.succeeded {
				t.Errorf("Succeeded = %v, want %v", res.Succeeded, tt.succeeded)
			}
			if res.AuthFailure != tt.authFailure {
				t.Errorf("AuthFailure = %v, want %v", res.AuthFailure, tt.authFailure)
			}
		})
	}
}

func TestMgmtPairerUsesAdapterIndex(t *testing.T) {
	runner := newFakeRunner()
	runner.respond("btmgmt --index 1 pair -c 3 -t 0 AA:BB:CC:DD:EE:FF",
		"Paired with AA:BB:CC:DD:EE:FF (BR/EDR)\n")
	p := NewMgmtPairer(runner)

	res := p.Pair(context.Background(), Adapter{ID: "hci1", Index: 1}, "AA:BB:CC:DD:EE:FF")
	if !res.Succeeded {
		t.Errorf("expected success, got %+v", res)
	}
}

func TestMgmtPairerStatusCodes(t *testing.T) {
	tests := []struct {
		name        string
		output      string
		succeeded   bool
		authFailure bool
	}{
		{"status ok", "Pairing with AA:BB:CC:DD:EE:FF (BR/EDR) status 0x00\n", true, false},
		{"auth failed", "Pairing with AA:BB:CC:DD:EE:FF failed, status 0x05\n", false, true},
		{"key missing", "status 0x06 (PIN or Key Missing)\n", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			runner.respond("btmgmt --index 0 pair -c 3 -t 0 AA:BB:CC:DD:EE:FF", tt.output)
			p := NewMgmtPairer(runner)

			res := p.Pair(context.Background(), Adapter{ID: "hci0"}, "AA:BB:CC:DD:EE:FF")
			if res.Succeeded != tt.succeeded || res.AuthFailure != tt.authFailure {
				t.Errorf("got %+v, want succeeded=%v authFailure=%v", res, tt.succeeded, tt.authFailure)
			}
		})
	}
}
