package blockid

import "testing"

func TestValid(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"AAAA-BBBB-001", true},
		{"ZZZZ-ZZZZ-002", true},
		{"bad-id", false},
		{"AAAA-BBBB-0011", false},
		{"AAAA-BBBB-01", false},
		{"aaaa-bbbb-001", false},
		{"", false},
	}
	for _, c := range cases {
		if got := Valid(c.id); got != c.want {
			t.Errorf("Valid(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}

func TestFilter(t *testing.T) {
	in := []string{"AAAA-BBBB-001", "bad-id", "ZZZZ-ZZZZ-002"}
	got := Filter(in)
	want := []string{"AAAA-BBBB-001", "ZZZZ-ZZZZ-002"}
	if len(got) != len(want) {
		t.Fatalf("Filter returned %d ids, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Filter()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
