package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if msg == "" {
		msg = "http error"
	}
	return fmt.Sprintf("http error: status=%d message=%s", e.StatusCode, msg)
}

// DecodeError is returned when a 2xx body cannot be decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s response: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func parseHTTPError(status int, raw []byte) error {
	body := strings.TrimSpace(string(raw))
	var env struct {
		Detail  any    `json:"detail"`
		Mensaje string `json:"mensaje"`
		Error   string `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(raw, &env); err == nil {
		switch {
		case env.Error != "":
			msg = env.Error
		case env.Mensaje != "":
			msg = env.Mensaje
		case env.Detail != nil:
			msg = fmt.Sprint(env.Detail)
		}
	}
	return &HTTPError{StatusCode: status, Message: msg, Body: body}
}

// IsSemantic reports whether err means the backend answered but the body was
// unusable, as opposed to the backend being unreachable.
func IsSemantic(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsTimeout reports whether err came from a deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
