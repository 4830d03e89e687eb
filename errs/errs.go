// Package errs defines CokeDB's error taxonomy: a Kind enum plus a thin
// Error type that wraps an underlying cause the way the rest of the module
// wraps errors with fmt.Errorf's %w.
package errs

import "fmt"

// Kind is one of the taxonomic error categories the engine raises. Kinds are
// not Go types — callers branch on Kind(err), not on a type switch.
type Kind int

const (
	Lex Kind = iota
	Parse
	Schema
	Constraint
	Arithmetic
	Evaluation
	Transaction
	Serialization
	Storage
	Internal
)

func (k Kind) String() string {
	switch k {
	case Lex:
		return "Lex"
	case Parse:
		return "Parse"
	case Schema:
		return "Schema"
	case Constraint:
		return "Constraint"
	case Arithmetic:
		return "Arithmetic"
	case Evaluation:
		return "Evaluation"
	case Transaction:
		return "Transaction"
	case Serialization:
		return "Serialization"
	case Storage:
		return "Storage"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error carries a Kind alongside the formatted message, and an optional
// byte offset for Lex/Parse errors.
type Error struct {
	Kind    Kind
	Message string
	Offset  int // -1 when not applicable
	cause   error
}

func (e *Error) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s error at byte %d: %s", e.Kind, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether err is a CokeDB error of kind k.
func Is(err error, k Kind) bool {
	ce, ok := err.(*Error)
	return ok && ce.Kind == k
}

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Offset: -1}
}

func Lexf(offset int, format string, args ...any) *Error {
	e := newf(Lex, format, args...)
	e.Offset = offset
	return e
}

func Parsef(offset int, format string, args ...any) *Error {
	e := newf(Parse, format, args...)
	e.Offset = offset
	return e
}

func Schemaf(format string, args ...any) *Error        { return newf(Schema, format, args...) }
func Constraintf(format string, args ...any) *Error     { return newf(Constraint, format, args...) }
func Arithmeticf(format string, args ...any) *Error      { return newf(Arithmetic, format, args...) }
func Evaluationf(format string, args ...any) *Error      { return newf(Evaluation, format, args...) }
func Transactionf(format string, args ...any) *Error     { return newf(Transaction, format, args...) }
func Serializationf(format string, args ...any) *Error   { return newf(Serialization, format, args...) }
func Storagef(format string, args ...any) *Error         { return newf(Storage, format, args...) }
func Internalf(format string, args ...any) *Error        { return newf(Internal, format, args...) }

// DuplicateKey is a Constraint error specifically for a primary-key
// collision, kept as a distinct constructor so callers can recognize it
// without string matching.
func DuplicateKey(table string, pk any) *Error {
	return Constraintf("duplicate key %v in table %s", pk, table)
}
