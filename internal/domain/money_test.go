package domain

import "testing"

func TestPaiseFromRupees(t *testing.T) {
	tests := []struct {
		name    string
		rupees  float64
		want    int64
		wantErr bool
	}{
		{name: "whole rupees", rupees: 2500, want: 250000},
		{name: "two fractional digits", rupees: 99.99, want: 9999},
		{name: "one fractional digit", rupees: 10.5, want: 1050},
		{name: "smallest unit", rupees: 0.01, want: 1},
		{name: "float noise from json decoding", rupees: 4.10, want: 410},
		{name: "zero", rupees: 0, wantErr: true},
		{name: "negative", rupees: -25, wantErr: true},
		{name: "sub-paise precision", rupees: 10.005, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PaiseFromRupees(tt.rupees)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %v, got paise=%d", tt.rupees, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %d paise, got %d", tt.want, got)
			}
		})
	}
}

func TestRupeesFromPaise(t *testing.T) {
	if got := RupeesFromPaise(250000); got != 2500 {
		t.Fatalf("expected 2500, got %v", got)
	}
	if got := RupeesFromPaise(1); got != 0.01 {
		t.Fatalf("expected 0.01, got %v", got)
	}
}
