package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validationf("bad severity %q", "huge"), http.StatusBadRequest},
		{Forbiddenf("not a participant"), http.StatusForbidden},
		{NotFoundf("room %s", "x"), http.StatusNotFound},
		{Conflictf("screen share held"), http.StatusConflict},
		{InvalidStatef("call already ended"), http.StatusUnprocessableEntity},
		{Internalf("db down"), http.StatusInternalServerError},
		{errors.New("something else"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestWrappedErrorsMatch(t *testing.T) {
	err := fmt.Errorf("outer: %w", Conflictf("held by %s", "alice"))
	if !errors.Is(err, ErrConflict) {
		t.Error("expected wrapped error to match ErrConflict")
	}
	if HTTPStatus(err) != http.StatusConflict {
		t.Errorf("expected 409, got %d", HTTPStatus(err))
	}
}

func TestMessageHidesInternalDetail(t *testing.T) {
	if msg := Message(Internalf("pg: connection refused")); msg != "internal server error" {
		t.Errorf("internal detail leaked: %q", msg)
	}
	if msg := Message(NotFoundf("notification not found")); msg == "internal server error" {
		t.Error("caller-fixable message should be surfaced")
	}
}
