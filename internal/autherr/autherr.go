package autherr

import (
	"errors"
	"fmt"
)

// Kind classifies auth-core failures. Callers branch on the kind to decide
// whether to propagate, fail closed, or swallow after local cleanup.
type Kind string

const (
	KindStorage Kind = "storage"
	KindSession Kind = "session"
	KindToken   Kind = "token"
	KindAuth    Kind = "auth"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Storage(op string, err error) *Error { return New(KindStorage, op, err) }
func Session(op string, err error) *Error { return New(KindSession, op, err) }
func Token(op string, err error) *Error   { return New(KindToken, op, err) }
func Auth(op string, err error) *Error    { return New(KindAuth, op, err) }

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// ErrInvalidCredentials is the only error surfaced to users on sign-in
// failure. Provider-side detail is logged, never echoed, so failed attempts
// cannot be used to enumerate accounts.
var ErrInvalidCredentials = Auth("sign_in", errors.New("invalid credentials"))

// ErrSignedOut reports that no authenticated session is available.
var ErrSignedOut = Session("current", errors.New("not signed in"))

// ErrStoreDesync reports that the session stores disagreed after a sync
// pass. The only safe recovery is resetting both sides to signed out.
var ErrStoreDesync = errors.New("session stores are inconsistent")
