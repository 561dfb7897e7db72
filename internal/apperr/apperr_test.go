package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation: http.StatusBadRequest,
		KindAuth:       http.StatusUnauthorized,
		KindForbidden:  http.StatusForbidden,
		KindNotFound:   http.StatusNotFound,
		KindConflict:   http.StatusConflict,
		KindInternal:   http.StatusInternalServerError,
	}
	for kind, expected := range cases {
		if got := HTTPStatus(kind); got != expected {
			t.Fatalf("kind %d expected %d got %d", kind, expected, got)
		}
	}
}

func TestAsThroughWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("create user: %w", Internal("could not store user", cause))

	appErr := As(err)
	if appErr == nil {
		t.Fatalf("expected app error in chain")
	}
	if appErr.Code != CodeServerError {
		t.Fatalf("expected server_error, got %s", appErr.Code)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if IsKind(errors.New("plain"), KindInternal) {
		t.Fatalf("plain errors carry no kind")
	}
}
