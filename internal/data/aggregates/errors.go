package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	domainagg "github.com/yungbote/memoir-studio-backend/internal/domain/aggregates"
	"github.com/yungbote/memoir-studio-backend/internal/domain/studio"
	"gorm.io/gorm"
)

var (
	errValidation = errors.New("validation")
	errInvariant  = errors.New("invariant violation")
	errConflict   = errors.New("conflict")
	errTransient  = errors.New("transient")
)

func ValidationError(msg string) error { return tagged(errValidation, msg) }
func InvariantError(msg string) error  { return tagged(errInvariant, msg) }
func ConflictError(msg string) error   { return tagged(errConflict, msg) }
func RetryableError(msg string) error  { return tagged(errTransient, msg) }

func tagged(tag error, msg string) error {
	return errors.Join(tag, errors.New(strings.TrimSpace(msg)))
}

var sentinelCodes = []struct {
	err  error
	code domainagg.ErrorCode
}{
	{errValidation, domainagg.CodeValidation},
	{errInvariant, domainagg.CodeInvariantViolation},
	{errConflict, domainagg.CodeConflict},
	{errTransient, domainagg.CodeRetryable},
	{gorm.ErrRecordNotFound, domainagg.CodeNotFound},
	{gorm.ErrDuplicatedKey, domainagg.CodeConflict},
	{context.Canceled, domainagg.CodeRetryable},
	{context.DeadlineExceeded, domainagg.CodeRetryable},
}

// SQLSTATE classes seen from Postgres under contention.
var pgStateCodes = map[string]domainagg.ErrorCode{
	"23505": domainagg.CodeConflict,           // unique_violation
	"23503": domainagg.CodePreconditionFailed, // foreign_key_violation
	"40001": domainagg.CodeRetryable,          // serialization_failure
	"40P01": domainagg.CodeRetryable,          // deadlock_detected
	"55P03": domainagg.CodeRetryable,          // lock_not_available
}

// Driver messages for errors that arrive untyped, mostly from SQLite.
var messageCodes = []struct {
	needle string
	code   domainagg.ErrorCode
}{
	{"duplicate key", domainagg.CodeConflict},
	{"already exists", domainagg.CodeConflict},
	{"unique constraint failed", domainagg.CodeConflict},
	{"database is locked", domainagg.CodeRetryable},
	{"sqlite_busy", domainagg.CodeRetryable},
	{"deadlock", domainagg.CodeRetryable},
	{"serialization", domainagg.CodeRetryable},
	{"timeout", domainagg.CodeRetryable},
	{"temporar", domainagg.CodeRetryable},
}

// MapError codes err for op. Aggregate and studio errors pass through untouched.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if domainagg.CodeOf(err) != "" {
		return err
	}
	if _, ok := studio.AsError(err); ok {
		return err
	}
	return domainagg.Wrap(classify(err), op, err)
}

func classify(err error) domainagg.ErrorCode {
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if code, ok := pgStateCodes[strings.TrimSpace(pgErr.Code)]; ok {
			return code
		}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range messageCodes {
		if strings.Contains(msg, m.needle) {
			return m.code
		}
	}
	return domainagg.CodeInternal
}
