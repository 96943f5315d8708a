package version

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"2.6.2", "2.6.2", false},
		{"v1.0", "1.0", false},
		{"2.6.2\n", "2.6.2", false},
		{"3.0.0-beta.1", "3.0.0-beta.1", false},
		{"1.2.3+build.7", "1.2.3", false},
		{"2.5.1 (4d7c5ca)", "2.5.1", false},
		{"10", "10", false},
		{"", "", true},
		{"   ", "", true},
		{"1.x.0", "", true},
		{"1..2", "", true},
		{"1.0-", "", true},
		{"-1.0", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.input, got.String(), tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.10.0", "1.9.0", 1}, // numeric, not lexical
		{"2.0", "10.0", -1},
		{"0.3.0", "0.2.9", 1},
		{"1.0.0-alpha", "1.0.0", -1},
		{"1.0.0", "1.0.0-rc.1", 1},
		{"1.0.0-alpha", "1.0.0-beta", -1},
		{"1.0.0-rc.2", "1.0.0-rc.10", -1},
		{"1.0.0-1", "1.0.0-alpha", -1},
		{"1.0.0-alpha", "1.0.0-alpha.1", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			a, b := MustParse(tt.a), MustParse(tt.b)
			if got := a.Compare(b); got != tt.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if got := b.Compare(a); got != -tt.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.b, tt.a, got, -tt.want)
			}
		})
	}
}

func TestMustParse_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse() did not panic on invalid input")
		}
	}()
	MustParse("not-a-version")
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("", "")
	if err != nil {
		t.Fatalf("ParseRange() error = %v", err)
	}
	if r.Declared() {
		t.Error("empty range should not be declared")
	}

	r, err = ParseRange("1.0", "")
	if err != nil {
		t.Fatalf("ParseRange() error = %v", err)
	}
	if !r.Declared() || r.Max != nil {
		t.Errorf("one-sided range = %+v", r)
	}

	if _, err := ParseRange("1.0", "abc"); err == nil {
		t.Error("ParseRange() expected error for invalid max")
	}
	if _, err := ParseRange("abc", "1.0"); err == nil {
		t.Error("ParseRange() expected error for invalid min")
	}
}

func TestRange_Contains(t *testing.T) {
	tests := []struct {
		name     string
		min, max string
		current  string
		want     bool
	}{
		{"inside", "0.1.0", "1.0.0", "0.3.0", true},
		{"at min", "0.3.0", "1.0.0", "0.3.0", true},
		{"at max", "0.1.0", "0.3.0", "0.3", true},
		{"below", "0.4.0", "1.0.0", "0.3.0", false},
		{"above", "0.1.0", "0.2.9", "0.3.0", false},
		{"min only", "0.2", "", "5.0", true},
		{"min only below", "0.4", "", "0.3.0", false},
		{"max only", "", "1.0", "0.3.0", true},
		{"max only above", "", "0.2", "0.3.0", false},
		{"unbounded", "", "", "0.3.0", true},
		{"degenerate", "2.0.0", "1.0.0", "1.5.0", false},
		{"degenerate at min", "2.0.0", "1.0.0", "2.0.0", false},
		{"degenerate at max", "2.0.0", "1.0.0", "1.0.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseRange(tt.min, tt.max)
			if err != nil {
				t.Fatalf("ParseRange() error = %v", err)
			}
			if got := r.Contains(MustParse(tt.current)); got != tt.want {
				t.Errorf("Contains(%s) in [%s, %s] = %v, want %v", tt.current, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

func TestRange_DegenerateNeverContains(t *testing.T) {
	r, err := ParseRange("3.0.0", "2.9.9")
	if err != nil {
		t.Fatalf("ParseRange() error = %v", err)
	}
	for _, v := range []string{"0.0.1", "2.9.9", "2.9.10", "3.0.0", "3.0.1", "100"} {
		if r.Contains(MustParse(v)) {
			t.Errorf("degenerate range contains %s", v)
		}
	}
}
