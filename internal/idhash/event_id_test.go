package idhash

import (
	"testing"
)

func TestComputeEventID(t *testing.T) {
	tests := []struct {
		name    string
		wallet  string
		txHash  string
		wantLen int
	}{
		{
			name:    "checksummed wallet",
			wallet:  "0x2dA83AcE1DA226f2AFe337db28DCD0bd8D97B23d",
			txHash:  "0xaaa1",
			wantLen: 64,
		},
		{
			name:    "lowercase wallet",
			wallet:  "0x1111111111111111111111111111111111111111",
			txHash:  "0xbbb2",
			wantLen: 64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeEventID(tt.wallet, tt.txHash)

			if len(got) != tt.wantLen {
				t.Errorf("ComputeEventID() length = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestComputeEventID_CaseInsensitive(t *testing.T) {
	a := ComputeEventID("0x2dA83AcE1DA226f2AFe337db28DCD0bd8D97B23d", "0xABCDEF")
	b := ComputeEventID("0x2da83ace1da226f2afe337db28dcd0bd8d97b23d", "0xabcdef")
	if a != b {
		t.Errorf("expected case-insensitive ids, got %s and %s", a, b)
	}
}

func TestComputeEventID_Deterministic(t *testing.T) {
	first := ComputeEventID("0x1111111111111111111111111111111111111111", "0xaaa1")
	for i := 0; i < 100; i++ {
		if got := ComputeEventID("0x1111111111111111111111111111111111111111", "0xaaa1"); got != first {
			t.Fatalf("iteration %d: got %s, want %s", i, got, first)
		}
	}
}

func TestComputeRowID_PerMethod(t *testing.T) {
	eventID := ComputeEventID("0x1111111111111111111111111111111111111111", "0xaaa1")
	if ComputeRowID(eventID, "FIFO") == ComputeRowID(eventID, "LIFO") {
		t.Error("expected distinct row ids per method")
	}
	if len(ComputeRowID(eventID, "FIFO")) != 64 {
		t.Error("expected 64-character row id")
	}
}
