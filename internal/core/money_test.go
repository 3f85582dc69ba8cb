package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "12.34", want: "12.34"},
		{in: "12,34", want: "12.34"},
		{in: " 7 ", want: "7"},
		{in: "0.01", want: "0.01"},
		{in: "", wantErr: true},
		{in: "0", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "+1", wantErr: true},
		{in: "1.234", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "1000000000000.01", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				if !IsValidation(err) {
					t.Fatalf("ParseAmount(%q) error = %v, want validation error", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) unexpected error: %v", tt.in, err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestCents(t *testing.T) {
	for _, s := range []string{"0.01", "12.34", "100", "999999.99"} {
		d := decimal.RequireFromString(s)
		if back := FromCents(ToCents(d)); !back.Equal(d) {
			t.Errorf("FromCents(ToCents(%s)) = %s", s, back)
		}
	}
	if got := ToCents(decimal.RequireFromString("12.34")); got != 1234 {
		t.Errorf("ToCents(12.34) = %d, want 1234", got)
	}
	if got := FromCents(-250).StringFixed(2); got != "-2.50" {
		t.Errorf("FromCents(-250) = %s", got)
	}
}
