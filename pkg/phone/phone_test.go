package phone

import "testing"

func TestClean(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0612345678", "212612345678"},
		{"612345678", "212612345678"},
		{"212612345678", "212612345678"},
		{"0712345678", "212712345678"},
		{"+212 612-345-678", "212612345678"},
		{"06 12 34 56 78", "212612345678"},
		{"12345", ""},
		{"512345678", ""},
		{"0512345678", ""},
		{"21261234567", ""},
		{"", ""},
		{"abc", ""},
	}

	for _, test := range tests {
		if got := Clean(test.input); got != test.expected {
			t.Errorf("Clean(%q) = %q, expected %q", test.input, got, test.expected)
		}
	}
}

func TestCleanIdempotent(t *testing.T) {
	for _, p := range []string{"212612345678", "212712345678"} {
		if Clean(p) != p {
			t.Errorf("Clean(%q) = %q, expected it to be a fixed point", p, Clean(p))
		}
	}
}

func TestSuffix(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0612345678", "612345678"},
		{"212612345678", "612345678"},
		{"612345678", "612345678"},
		{"+212 612 345 678", "612345678"},
		{"12345678", ""},
		{"", ""},
	}

	for _, test := range tests {
		if got := Suffix(test.input); got != test.expected {
			t.Errorf("Suffix(%q) = %q, expected %q", test.input, got, test.expected)
		}
	}
}

func TestSuffixStableAcrossFormats(t *testing.T) {
	formats := []string{"0612345678", "612345678", "212612345678", "+212612345678"}
	for _, f := range formats {
		if Suffix(f) != "612345678" {
			t.Errorf("Suffix(%q) = %q, expected 612345678", f, Suffix(f))
		}
	}
	for _, f := range formats {
		c := Clean(f)
		if c == "" {
			t.Fatalf("Clean(%q) unexpectedly invalid", f)
		}
		if Suffix(c) != Suffix(f) {
			t.Errorf("Suffix(Clean(%q)) = %q, Suffix(%q) = %q", f, Suffix(c), f, Suffix(f))
		}
	}
}

func TestSuffixIndexMatching(t *testing.T) {
	index := BuildSuffixIndex([]string{"0612345678"})

	if !MatchesAny("212612345678", index) {
		t.Error("expected 212612345678 to match index built from 0612345678")
	}
	if MatchesAny("0699999999", index) {
		t.Error("expected 0699999999 not to match")
	}
	if MatchesAny("123", index) {
		t.Error("expected too-short number not to match")
	}
}

func TestBuildSuffixIndexSkipsInvalid(t *testing.T) {
	index := BuildSuffixIndex([]string{"0612345678", "123", ""})
	if len(index) != 1 {
		t.Errorf("expected 1 index entry, got %d", len(index))
	}
	if index["612345678"] != "0612345678" {
		t.Errorf("index maps suffix to %q, expected original 0612345678", index["612345678"])
	}
}

func TestFormatForWhatsApp(t *testing.T) {
	if got := FormatForWhatsApp("0712345678"); got != "+212712345678" {
		t.Errorf("FormatForWhatsApp(0712345678) = %q, expected +212712345678", got)
	}
	if got := FormatForWhatsApp("12345"); got != "" {
		t.Errorf("FormatForWhatsApp(12345) = %q, expected empty", got)
	}
}

func TestFormatForDisplay(t *testing.T) {
	if got := FormatForDisplay("0612345678"); got != "+212 612 345 678" {
		t.Errorf("FormatForDisplay(0612345678) = %q, expected +212 612 345 678", got)
	}
	if got := FormatForDisplay("foo"); got != "" {
		t.Errorf("FormatForDisplay(foo) = %q, expected empty", got)
	}
}

func TestCleanInternational(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0612345678", "212612345678"},
		{"+33612345678", "33612345678"},
		{"33612345678", ""}, // non-Moroccan numbers must carry the +
		{"+999123", ""},
		{"", ""},
	}

	for _, test := range tests {
		if got := CleanInternational(test.input); got != test.expected {
			t.Errorf("CleanInternational(%q) = %q, expected %q", test.input, got, test.expected)
		}
	}
}
