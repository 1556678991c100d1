package httpkit

import (
	stderrors "errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"

	"montage/internal/pkg/errors"
)

// WriteError renders err as the error envelope, taking status and code from
// its category. Uncategorized errors become a 500 without their message.
func WriteError(w http.ResponseWriter, err error) {
	var e *errors.Error
	if !errors.As(err, &e) {
		WriteErr(w, http.StatusInternalServerError, string(errors.CodeInternal), "internal error", nil)
		return
	}

	msg := e.Message
	if e.Code == errors.CodeInternal {
		msg = "internal error"
	}
	WriteErr(w, e.HTTPStatus(), string(e.Code), msg, e.Fields)
}

// IsUniqueViolation returns true if the error is a PostgreSQL unique constraint violation.
// 23505 = unique_violation
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
