package attendance

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned for caller mistakes, it is always returned before any request is made.
var ErrInvalidInput = errors.New("invalid input")

// ResponseError is an unexpected http status from the portal.
type ResponseError struct {
	Status int
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("unexpected response status %d", e.Status)
}

// ParseError means a page that should contain an attendance form did not.
type ParseError struct {
	TimetableID int
	Field       string
	Err         error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("timetable id %d: parse %s: %s", e.TimetableID, e.Field, e.Err.Error())
	}
	return fmt.Sprintf("timetable id %d: missing %s", e.TimetableID, e.Field)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
