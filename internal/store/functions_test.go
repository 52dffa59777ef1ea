package store

import (
	"context"
	"testing"

	"github.com/emberrun/sandbox/internal/domain"
)

func TestSaveFunctionRejectsMissingIdentity(t *testing.T) {
	s := &PostgresStore{}

	cases := []*domain.Function{
		{ID: "", Project: "proj"},
		{ID: "fn1", Project: ""},
	}
	for _, fn := range cases {
		if err := s.SaveFunction(context.Background(), fn); err == nil {
			t.Fatalf("SaveFunction(%+v) = nil error, want validation error", fn)
		}
	}
}
