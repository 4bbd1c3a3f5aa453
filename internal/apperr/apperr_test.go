package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(KindValidation, "title is required")
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation kind")
	}

	wrapped := fmt.Errorf("handler: %w", Wrap(KindStorage, "create thread", errors.New("disk full")))
	if KindOf(wrapped) != KindStorage {
		t.Fatalf("kind must survive wrapping")
	}

	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatalf("foreign errors are unknown")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{New(KindValidation, "bad input"), http.StatusBadRequest},
		{New(KindConfiguration, "missing key"), http.StatusInternalServerError},
		{New(KindStorage, "insert failed"), http.StatusInternalServerError},
		{Upstream(http.StatusTooManyRequests, "quota"), http.StatusTooManyRequests},
		{Upstream(http.StatusUnauthorized, "bad key"), http.StatusUnauthorized},
		{Wrap(KindUpstream, "call failed", errors.New("dial tcp")), http.StatusBadGateway},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(KindStorage, "create message", errors.New("locked"))
	if err.Error() != "create message: locked" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, errors.Unwrap(err)) {
		t.Fatalf("wrapped cause must unwrap")
	}
}

func TestUpstreamBodyAsMessage(t *testing.T) {
	err := Upstream(http.StatusServiceUnavailable, `{"message":"overloaded"}`)
	if err.Error() != `{"message":"overloaded"}` {
		t.Fatalf("upstream body must pass through: %q", err.Error())
	}
}
