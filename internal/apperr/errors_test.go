package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain error", errors.New("boom"), KindUnknown},
		{"not found", NotFound("post %s does not exist", "x"), KindNotFound},
		{"conflict", Conflict("already liked"), KindConflict},
		{"validation", Validation("bad platform"), KindValidation},
		{"transient", Transient(errors.New("conn reset"), "increment failed"), KindTransient},
		{"wrapped with fmt", fmt.Errorf("outer: %w", Conflict("dup")), KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(Transient(errors.New("timeout"), "db")) {
		t.Error("transient errors should be retryable")
	}
	if IsRetryable(Conflict("dup")) {
		t.Error("conflict errors must not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("unclassified errors must not be retryable")
	}
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transient(cause, "failed to increment views")

	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the cause")
	}
	if err.Error() != "failed to increment views: connection refused" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:   http.StatusNotFound,
		KindConflict:   http.StatusConflict,
		KindTransient:  http.StatusServiceUnavailable,
		KindValidation: http.StatusBadRequest,
		KindUnknown:    http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := kind.HTTPStatus(); got != want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", kind, got, want)
		}
	}
}
