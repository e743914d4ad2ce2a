package router

import "fmt"

// ControllerAuthError is returned when the controller rejects the login or
// cannot be reached to log in. StatusCode is 0 when no response arrived;
// Err then holds the transport failure.
type ControllerAuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ControllerAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("controller login failed: %v", e.Err)
	}
	return fmt.Sprintf("controller login failed: %d %s", e.StatusCode, e.Body)
}

func (e *ControllerAuthError) Unwrap() error {
	return e.Err
}

// ControllerCommandError is returned when the authorize command fails after
// a successful login, either rejected or lost in transport.
type ControllerCommandError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ControllerCommandError) Error() string {
	switch {
	case e.Err != nil && e.Body != "":
		return fmt.Sprintf("controller command failed: %v: %s", e.Err, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("controller command failed: %v", e.Err)
	}
	return fmt.Sprintf("controller command failed: %d %s", e.StatusCode, e.Body)
}

func (e *ControllerCommandError) Unwrap() error {
	return e.Err
}
