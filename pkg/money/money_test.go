package money

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{"integer", "1000", "1000.00", nil},
		{"two digits", "12.50", "12.50", nil},
		{"one digit", "0.5", "0.50", nil},
		{"negative", "-300.25", "-300.25", nil},
		{"too precise", "1.005", "", ErrPrecision},
		{"garbage", "abc", "", ErrInvalidAmount},
		{"empty", "", "", ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse(%q) error = %v, want %v", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestRepeatedAdditionDoesNotDrift(t *testing.T) {
	// 0.10 added a thousand times is exactly 100.00
	total := Zero
	step := MustParse("0.10")
	for i := 0; i < 1000; i++ {
		total = total.Add(step)
	}
	if !total.Equal(FromInt(100)) {
		t.Fatalf("total = %s, want 100.00", total)
	}
}

func TestMinorUnits(t *testing.T) {
	if got := MustParse("1234.56").MinorUnits(); got != 123456 {
		t.Errorf("MinorUnits = %d, want 123456", got)
	}
	if got := FromMinor(-505).String(); got != "-5.05" {
		t.Errorf("FromMinor(-505) = %s, want -5.05", got)
	}
}

func TestPercentAndRatio(t *testing.T) {
	part := MustParse("500")
	total := MustParse("800")

	if got := part.Percent(total).String(); got != "62.5" {
		t.Errorf("Percent = %s, want 62.5", got)
	}
	if got := part.Ratio(total).String(); got != "0.625" {
		t.Errorf("Ratio = %s, want 0.625", got)
	}
	if !part.Percent(Zero).IsZero() {
		t.Error("Percent over zero total should be 0")
	}
}

func TestDivInt(t *testing.T) {
	if got := MustParse("100").DivInt(3).String(); got != "33.33" {
		t.Errorf("100/3 = %s, want 33.33", got)
	}
	if got := MustParse("100").DivInt(0); !got.IsZero() {
		t.Errorf("100/0 = %s, want 0.00", got)
	}
}

func TestAllocate(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		weights []string
		want    []string
	}{
		{"even", "100", []string{"50", "50"}, []string{"50.00", "50.00"}},
		{"thirds keep remainder on last", "100", []string{"1", "1", "1"}, []string{"33.33", "33.33", "33.34"}},
		{"zero weight skipped", "90", []string{"0", "30", "60"}, []string{"0.00", "30.00", "60.00"}},
		{"no positive weight", "10", []string{"0", "0"}, []string{"10.00", "0.00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weights := make([]Amount, len(tt.weights))
			for i, w := range tt.weights {
				weights[i] = MustParse(w)
			}
			parts := MustParse(tt.amount).Allocate(weights)
			if len(parts) != len(tt.want) {
				t.Fatalf("got %d parts, want %d", len(parts), len(tt.want))
			}
			for i := range parts {
				if parts[i].String() != tt.want[i] {
					t.Errorf("part[%d] = %s, want %s", i, parts[i], tt.want[i])
				}
			}
			if !Sum(parts...).Equal(MustParse(tt.amount)) {
				t.Errorf("parts sum to %s, want %s", Sum(parts...), tt.amount)
			}
		})
	}
}

func TestJSON(t *testing.T) {
	var v struct {
		Amount Amount `json:"amount"`
	}

	if err := json.Unmarshal([]byte(`{"amount": 12.5}`), &v); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if v.Amount.String() != "12.50" {
		t.Errorf("amount = %s, want 12.50", v.Amount)
	}

	if err := json.Unmarshal([]byte(`{"amount": "7.25"}`), &v); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"amount":"7.25"}` {
		t.Errorf("marshal = %s", out)
	}

	if err := json.Unmarshal([]byte(`{"amount": "7.255"}`), &v); !errors.Is(err, ErrPrecision) {
		t.Errorf("expected ErrPrecision, got %v", err)
	}
}

func TestScan(t *testing.T) {
	var a Amount
	if err := a.Scan([]byte("1500.40")); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if a.String() != "1500.40" {
		t.Errorf("scanned = %s", a)
	}
	v, err := a.Value()
	if err != nil || v != "1500.40" {
		t.Errorf("Value = %v, %v", v, err)
	}
}
