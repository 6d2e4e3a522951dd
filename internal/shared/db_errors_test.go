package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestIsConflictError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sqlite busy", errors.New("exec: SQLITE_BUSY (5)"), true},
		{"sqlite locked", fmt.Errorf("insert: %w", errors.New("database is locked")), true},
		{"pg serialization", fmt.Errorf("insert: %w", &pq.Error{Code: "40001"}), true},
		{"pg deadlock", &pq.Error{Code: "40P01"}, true},
		{"pg unique violation", &pq.Error{Code: "23505"}, false},
		{"other", errors.New("no such table: qna"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsConflictError(tc.err); got != tc.want {
				t.Errorf("IsConflictError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
