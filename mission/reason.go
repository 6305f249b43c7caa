package mission

import (
	"errors"
	"fmt"
)

// Reason turns the value given to a fail statement into an error.
func Reason(x interface{}) error {
	switch vv := x.(type) {
	case nil:
		return errors.New("failed")
	case error:
		return vv
	default:
		return fmt.Errorf("%v", vv)
	}
}

// OK reports whether x is a usable value: not nil and not an error.
func OK(x interface{}) bool {
	if x == nil {
		return false
	}
	_, failed := x.(error)
	return !failed
}

// ErrText is the message of x if x is an error and "" otherwise.
func ErrText(x interface{}) string {
	if err, is := x.(error); is {
		return err.Error()
	}
	return ""
}
