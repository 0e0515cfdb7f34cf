package services

import "testing"

func TestRepairCode(t *testing.T) {
	cases := map[string]string{
		"842842":       "842",
		"ABAB":         "AB",
		"XY12XY12":     "XY12",
		"ABC123":       "ABC123",
		"12345":        "12345",
		"1234":         "1234",
		"A":            "A",
		"":             "",
		"AA":           "A",
		"abcABC":       "abcABC",
		"兑换兑换":         "兑换",
		"Q7K9-Q7K9-":   "Q7K9-",
		"Q7K9-Q7K9 ":   "Q7K9-Q7K9 ",
		"ZZZZ0000ZZZZ": "ZZZZ0000ZZZZ",
	}

	for input, want := range cases {
		if got := RepairCode(input); got != want {
			t.Fatalf("RepairCode(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestRepairCodeFixedPoint(t *testing.T) {
	for _, code := range []string{"ABC123", "842", "12345", "1234"} {
		if got := RepairCode(RepairCode(code)); got != RepairCode(code) {
			t.Fatalf("RepairCode not stable for %q: %q", code, got)
		}
	}
}
