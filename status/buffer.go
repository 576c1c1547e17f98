package status

import (
	"fmt"
)

// MaxMessage is the capacity of a [Status] message, in bytes.
const MaxMessage = 127

// Status accumulates a code and a bounded error message. Text past
// [MaxMessage] bytes is dropped. The zero value is an OK status.
type Status struct {
	code Code
	n    int
	buf  [MaxMessage + 1]byte
}

// OK reports whether no error has been recorded.
func (s *Status) OK() bool { return s.code == OK }

// Code returns the recorded code.
func (s *Status) Code() Code { return s.code }

// Message returns the recorded text.
func (s *Status) Message() string { return string(s.buf[:s.n]) }

// Clear resets s to OK.
func (s *Status) Clear() {
	s.code = OK
	s.n = 0
	s.buf[0] = 0
}

// SetErrorf replaces the message, recording code.
func (s *Status) SetErrorf(code Code, format string, args ...any) {
	s.code = code
	s.n = 0
	s.append(fmt.Sprintf(format, args...))
}

// AppendErrorf appends to the current message. It does not change the code,
// unless s is OK, in which case it becomes [Invalid].
func (s *Status) AppendErrorf(format string, args ...any) {
	if s.code == OK {
		s.code = Invalid
	}
	s.append(fmt.Sprintf(format, args...))
}

func (s *Status) append(text string) {
	s.n += copy(s.buf[s.n:MaxMessage], text)
	s.buf[s.n] = 0
}

// Err returns nil when s is OK, otherwise an [*Error] carrying the code and
// message.
func (s *Status) Err() error {
	if s.code == OK {
		return nil
	}
	return New(s.code, s.Message())
}
