package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrAuthentication, 401},
		{NotFound("conversation", "c1"), 404},
		{Validation("missing conversation_id"), 422},
		{Persistence("messages.insert", errors.New("socket closed")), 500},
		{errors.New("anything else"), 500},
	}
	for _, tc := range cases {
		if got := Code(tc.err); got != tc.want {
			t.Errorf("Code(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("while handling receipt: %w", NotFound("conversation", "c1"))
	if !errors.Is(err, ErrNotFound) {
		t.Error("wrapped not-found lost its class")
	}
	if Code(err) != 404 {
		t.Errorf("Code = %d, want 404", Code(err))
	}
}
