package auth

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const (
	sqlStateUniqueViolation = "23505"
	constraintEmail         = "accounts_email_key"
	constraintReferralCode  = "accounts_referral_code_key"
)

// DBErrorDetails contains diagnostics extracted from PostgreSQL errors.
type DBErrorDetails struct {
	SQLState   string
	Constraint string
	Table      string
	Detail     string
}

func extractDBErrorDetails(err error) *DBErrorDetails {
	var pqErr *pq.Error
	if err == nil || !errors.As(err, &pqErr) {
		return nil
	}
	return &DBErrorDetails{
		SQLState:   string(pqErr.Code),
		Constraint: pqErr.Constraint,
		Table:      pqErr.Table,
		Detail:     pqErr.Detail,
	}
}

// isEmailConflict reports whether err is a unique violation on the email column.
// The second result is false when the driver error carries no constraint name.
func isEmailConflict(err error) (conflict, known bool) {
	if errors.Is(err, ErrEmailAlreadyExists) {
		return true, true
	}
	details := extractDBErrorDetails(err)
	if details == nil || details.SQLState != sqlStateUniqueViolation {
		return false, false
	}
	switch details.Constraint {
	case constraintEmail:
		return true, true
	case constraintReferralCode:
		return false, true
	}
	return false, false
}

func wrapRegisterError(step string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("register step %s: %w", step, err)
}
