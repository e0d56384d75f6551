package database

import (
	"errors"
	"fmt"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/logging"
)

// QueryError is returned by Query for any failure raised while running a
// statement. Timeout distinguishes the session timeout (or client deadline)
// from every other store-reported failure.
type QueryError struct {
	Timeout bool
	Code    string // SQLSTATE or vendor error number, when known
	Msg     string
	Err     error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Msg, logging.Mask(e.Err.Error()))
	}
	return e.Msg
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a statement timeout raised by Query.
func IsTimeout(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Timeout
}

func maskedError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(logging.Mask(err.Error()))
}
