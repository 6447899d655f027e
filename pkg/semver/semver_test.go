package semver

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseTag(t *testing.T) {
	testcases := []struct {
		tag      string
		expected Version
	}{
		{tag: "v2.13.4", expected: Version{Major: 2, Minor: 13, Patch: 4}},
		{tag: "v2.14.0-rc1", expected: Version{Major: 2, Minor: 14, Patch: 0, RC: 1}},
		{tag: "v1.5.11-rc12", expected: Version{Major: 1, Minor: 5, Patch: 11, RC: 12}},
		{tag: "v0.0.0", expected: Version{}},
	}

	for i := range testcases {
		tc := testcases[i]

		t.Run(tc.tag, func(t *testing.T) {
			actual, err := ParseTag(tc.tag)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if diff := cmp.Diff(tc.expected, actual); diff != "" {
				t.Errorf("unexpected version: %s", diff)
			}

			if actual.Tag() != tc.tag {
				t.Errorf("unexpected tag: expected=%s, got=%s", tc.tag, actual.Tag())
			}
		})
	}
}

func TestParseTagMalformed(t *testing.T) {
	for _, tag := range []string{"", "2.13.4", "v2.13", "v2.13.4-rc", "v2.13.4-rc0", "v2.13.4-beta1", "v2.13.4 ", "release-2.13", "va.b.c"} {
		t.Run(tag, func(t *testing.T) {
			_, err := ParseTag(tag)

			var malformed *MalformedTagError
			if !errors.As(err, &malformed) {
				t.Fatalf("unexpected error: expected=MalformedTagError, got=%v", err)
			}

			if malformed.Tag != tag {
				t.Errorf("unexpected tag in error: expected=%q, got=%q", tag, malformed.Tag)
			}
		})
	}
}

func TestParseSeries(t *testing.T) {
	v, err := ParseSeries("2.13")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff(Version{Major: 2, Minor: 13}, v); diff != "" {
		t.Errorf("unexpected version: %s", diff)
	}

	if v.Series() != "2.13" {
		t.Errorf("unexpected series: expected=2.13, got=%s", v.Series())
	}

	for _, s := range []string{"abc", "2", "2.13.1", "2.", ".13", "v2.13", "2.x"} {
		_, err := ParseSeries(s)

		var invalid *InvalidSeriesError
		if !errors.As(err, &invalid) {
			t.Errorf("unexpected error for %q: expected=InvalidSeriesError, got=%v", s, err)
		}
	}
}

func TestFirstCandidate(t *testing.T) {
	v, err := FirstCandidate("2.14")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v.String() != "2.14.0-rc1" {
		t.Errorf("unexpected version: expected=2.14.0-rc1, got=%s", v)
	}
}

func TestNext(t *testing.T) {
	testcases := []struct {
		prior    string
		typ      ReleaseType
		expected string
	}{
		{prior: "v2.13.0-rc1", typ: ReleaseCandidate, expected: "2.13.0-rc2"},
		{prior: "v2.13.0-rc9", typ: ReleaseCandidate, expected: "2.13.0-rc10"},
		{prior: "v2.13.4", typ: ReleaseCandidate, expected: "2.13.0-rc1"},
		{prior: "v2.13.0-rc3", typ: Stable, expected: "2.13.0"},
		{prior: "v2.14.0-rc2", typ: Stable, expected: "2.14.0"},
		{prior: "v2.13.5-rc2", typ: Stable, expected: "2.13.0"},
		{prior: "v2.13.4", typ: Stable, expected: "2.13.5"},
		{prior: "v1.5.11", typ: Stable, expected: "1.5.12"},
	}

	for i := range testcases {
		tc := testcases[i]

		t.Run(tc.prior+" "+tc.typ.String(), func(t *testing.T) {
			prior, err := ParseTag(tc.prior)
			if err != nil {
				t.Fatal(err)
			}

			next := prior.Next(tc.typ)
			if next.String() != tc.expected {
				t.Errorf("unexpected next version: expected=%s, got=%s", tc.expected, next)
			}

			if tc.typ == Stable && next.Patch >= prior.Patch && !prior.LessThan(next) {
				t.Errorf("unexpected ordering: %s must precede %s", prior, next)
			}

			if prior.String() != tc.prior[1:] {
				t.Errorf("prior version was modified: %s", prior)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	ordered := []string{"v1.9.9", "v2.0.0-rc1", "v2.0.0-rc2", "v2.0.0-rc10", "v2.0.0", "v2.0.1", "v2.1.0", "v10.0.0"}

	for i := range ordered {
		for j := range ordered {
			a, _ := ParseTag(ordered[i])
			b, _ := ParseTag(ordered[j])

			expected := 0
			switch {
			case i < j:
				expected = -1
			case i > j:
				expected = 1
			}

			if actual := a.Compare(b); actual != expected {
				t.Errorf("unexpected comparison of %s and %s: expected=%d, got=%d", a, b, expected, actual)
			}
		}
	}
}

func TestConstraint(t *testing.T) {
	c, err := NewConstraint(">= 2.0.0, < 3.0.0")
	if err != nil {
		t.Fatal(err)
	}

	for s, expected := range map[string]bool{"2.13": true, "2.0": true, "1.13": false, "3.0": false} {
		v, err := ParseSeries(s)
		if err != nil {
			t.Fatal(err)
		}

		if actual := c.Check(v); actual != expected {
			t.Errorf("unexpected check result for %s: expected=%v, got=%v", s, expected, actual)
		}
	}

	if _, err := NewConstraint("not a constraint"); err == nil {
		t.Errorf("expected error for invalid constraint")
	}
}

func TestParseReleaseType(t *testing.T) {
	for s, expected := range map[string]ReleaseType{"stable": Stable, "candidate": ReleaseCandidate, "CANDIDATE": ReleaseCandidate} {
		actual, err := ParseReleaseType(s)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if actual != expected {
			t.Errorf("unexpected release type: expected=%v, got=%v", expected, actual)
		}
	}

	for _, s := range []string{"beta", "rc", ""} {
		if _, err := ParseReleaseType(s); err == nil {
			t.Errorf("expected error for unsupported release type %q", s)
		}
	}
}
