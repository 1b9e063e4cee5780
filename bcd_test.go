package zealfs

import (
	"testing"
	"time"
)

func TestEncodeDecodeBCD_RoundTrip(t *testing.T) {
	d := DateParts{
		CenturyYear: 20,
		Year:        26,
		Month:       7,
		Day:         31,
		Weekday:     5,
		Hour:        9,
		Minute:      41,
		Second:      7,
	}

	raw, err := encodeBCD(d)
	if err != nil {
		t.Fatalf("encodeBCD failed: %v", err)
	}

	got := decodeBCD(raw)
	if got != d {
		t.Fatalf("BCD round-trip mismatch: got (%+v), expected (%+v)", got, d)
	}
}

func TestEncodeBCD_OutOfRange(t *testing.T) {
	_, err := encodeBCD(DateParts{Year: 100})
	if err == nil {
		t.Fatalf("expected an error for an out-of-range BCD value")
	}
}

func TestNowBCD(t *testing.T) {
	fixed := time.Date(2026, time.July, 31, 12, 0, 0, 0, time.UTC)

	raw := nowBCD(func() time.Time { return fixed })
	parts := decodeBCD(raw)

	if parts.CenturyYear != 20 || parts.Year != 26 || parts.Month != 7 || parts.Day != 31 {
		t.Fatalf("nowBCD did not encode the fixed clock correctly: (%+v)", parts)
	}

	if !parts.Time().Equal(fixed) {
		t.Fatalf("DateParts.Time() did not reconstruct the original instant: got (%s), expected (%s)", parts.Time(), fixed)
	}
}
