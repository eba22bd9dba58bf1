package errors

import "fmt"

// Rejection describes why a command was refused. A nil Rejection means success.
type Rejection struct {
	Code    Code
	Message string
}

// Reject builds a Rejection with a formatted, operator-readable message.
func Reject(code Code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error satisfies the error interface for logging; rejections are not meant to
// be wrapped or matched with errors.Is.
func (r *Rejection) Error() string {
	if r == nil {
		return ""
	}
	return string(r.Code) + ": " + r.Message
}
