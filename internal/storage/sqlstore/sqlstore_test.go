package sqlstore

import "testing"

func TestPlaceholderRewrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dialect Dialect
		in      string
		want    string
	}{
		{"question mark", Dialect{Placeholder: QuestionMark}, "a = ? AND b = ?", "a = ? AND b = ?"},
		{"at p", Dialect{Placeholder: AtP}, "a = ? AND b = ?", "a = @p1 AND b = @p2"},
		{"none", Dialect{}, "x = ?", "x = ?"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := &Store{dialect: tt.dialect}
			if got := s.q(tt.in); got != tt.want {
				t.Fatalf("q(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStampIsMonotonic(t *testing.T) {
	t.Parallel()
	s := &Store{}
	prev := s.stamp()
	for i := 0; i < 1000; i++ {
		next := s.stamp()
		if next <= prev {
			t.Fatalf("stamp went backwards: %d then %d", prev, next)
		}
		prev = next
	}
}
