// Package outcome makes the difference between a real and a substituted
// result explicit at the call site.
package outcome

// Kind tells how a Result was produced.
type Kind uint8

const (
	// KindSuccess means the remote system produced the value.
	KindSuccess Kind = iota
	// KindFallback means the remote call failed and a local value was used.
	KindFallback
	// KindError means no value is available.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFallback:
		return "fallback"
	default:
		return "error"
	}
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Result carries a value together with how it was obtained. For fallbacks Err
// keeps the remote failure that caused the substitution.
type Result[T any] struct {
	Kind  Kind  `json:"kind"`
	Value T     `json:"value"`
	Err   error `json:"-"`
}

// Success wraps a value produced by the remote system.
func Success[T any](v T) Result[T] {
	return Result[T]{Kind: KindSuccess, Value: v}
}

// Fallback wraps a locally substituted value and the error that caused it.
func Fallback[T any](v T, cause error) Result[T] {
	return Result[T]{Kind: KindFallback, Value: v, Err: cause}
}

// Failure carries an error and no value.
func Failure[T any](err error) Result[T] {
	return Result[T]{Kind: KindError, Err: err}
}

// OK reports whether a usable value is present.
func (r Result[T]) OK() bool {
	return r.Kind != KindError
}

// Simulated reports whether the value was substituted locally.
func (r Result[T]) Simulated() bool {
	return r.Kind == KindFallback
}
