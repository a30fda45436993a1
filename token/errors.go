package token

import (
	"errors"
	"fmt"
)

// VerificationKind says why a token was rejected. Callers normally only need success or
// failure; the kind exists for logs and tests.
type VerificationKind int

const (
	KindMalformed VerificationKind = iota + 1
	KindExpired
	KindBadSignature
	KindInvalidClaims
)

func (k VerificationKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindExpired:
		return "expired"
	case KindBadSignature:
		return "bad signature"
	case KindInvalidClaims:
		return "invalid claims"
	default:
		return "unknown"
	}
}

type VerificationError struct {
	Kind VerificationKind
	Err  error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("token %s: %v", e.Kind, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// KindOf returns the VerificationKind in err's chain, or 0 when err is not a verification failure.
func KindOf(err error) VerificationKind {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return 0
}
