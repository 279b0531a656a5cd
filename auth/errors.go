package auth

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/mnehpets/ledgerrpc/jsonrpc"
)

// Reason is an authentication failure. Its text is sent to callers as
// "Unauthorized: <reason>" and must stay stable.
type Reason string

func (r Reason) Error() string { return string(r) }

// Envelope failures.
const (
	ErrMissingAccount       Reason = "Missing account"
	ErrInvalidRequestParams Reason = "Invalid request params"
	ErrInvalidEncodedParams Reason = "Invalid encoded params"
	ErrInvalidNonce         Reason = "Invalid nonce"
	ErrInvalidTimestamp     Reason = "Invalid timestamp"
	ErrSignatureExpired     Reason = "Signature expired"
)

// Verifier failures, in the order they are checked.
const (
	ErrInvalidMessage       Reason = "Invalid message"
	ErrInvalidAccountName   Reason = "Invalid account name"
	ErrMultisigUnsupported  Reason = "Multisig not supported"
	ErrAccountNotFound      Reason = "No such account"
	ErrUnsupportedAuthority Reason = "Unsupported posting key configuration for account"
	ErrKeyBelowThreshold    Reason = "Signing key not above weight threshold"
	ErrInvalidSignature     Reason = "Invalid signature"
)

// ErrLedgerUnavailable wraps failures of the ledger query itself, as
// opposed to a query that found no account.
const ErrLedgerUnavailable Reason = "Ledger unavailable"

// CodeUnauthorized is the JSON-RPC error code for authentication failures.
const CodeUnauthorized = http.StatusUnauthorized

// CodeAssertion is the JSON-RPC error code for Assert rejections.
const CodeAssertion = http.StatusBadRequest

// ledgerError marks a ledger failure while keeping the cause.
func ledgerError(cause error) error {
	return fmt.Errorf("%w: %w", ErrLedgerUnavailable, cause)
}

// unauthorized converts a verification failure into the error sent to the
// caller. The message names the reason only; causes stay server side.
func unauthorized(err error) *jsonrpc.Error {
	e := jsonrpc.Wrap(CodeUnauthorized, err, "Unauthorized")
	e.Message = "Unauthorized"
	var reason Reason
	if errors.As(err, &reason) {
		e.Message += ": " + string(reason)
	}
	return e
}

// AssertionError is an authorization decision made by a handler, such as
// "caller is not an admin". It is reported with code 400 and its message.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string {
	return e.Message
}

// Assert returns an *AssertionError carrying msg when cond is false, and
// nil otherwise.
//
//	if err := auth.Assert(isAdmin(account), "Nope"); err != nil {
//		return nil, err
//	}
func Assert(cond bool, msg string) error {
	if cond {
		return nil
	}
	return &AssertionError{Message: msg}
}
