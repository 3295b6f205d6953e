// Package errors provides cleanup helpers shared by the storage and CLI code.
package errors

import (
	"database/sql"
	stderrors "errors"
	"io"

	"github.com/rs/zerolog"
)

// DeferClose closes an io.Closer and logs a failure instead of dropping it.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}

// DeferRollback rolls back a transaction and logs a failure.
// sql.ErrTxDone is expected after a successful commit and is ignored.
func DeferRollback(logger zerolog.Logger, tx *sql.Tx) {
	if tx == nil {
		return
	}
	if err := tx.Rollback(); err != nil && !stderrors.Is(err, sql.ErrTxDone) {
		logger.Warn().Err(err).Msg("transaction rollback failed")
	}
}

// CloseAll closes every closer, returning all failures joined.
func CloseAll(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
