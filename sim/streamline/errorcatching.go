package streamline

import "fmt"

// ErrorCatching holds either a value or the error that prevented computing it.
// The zero value is a success holding the zero T.
type ErrorCatching[T any] struct {
	value T
	err   error
}

func Success[T any](v T) ErrorCatching[T] { return ErrorCatching[T]{value: v} }

func Failure[T any](err error) ErrorCatching[T] { return ErrorCatching[T]{err: err} }

// Get returns the value, or the captured error.
func (e ErrorCatching[T]) Get() (T, error) { return e.value, e.err }

func (e ErrorCatching[T]) IsFailure() bool { return e.err != nil }

func (e ErrorCatching[T]) Err() error { return e.err }

// Match folds e into one result.
func Match[T, R any](e ErrorCatching[T], onSuccess func(T) R, onFailure func(error) R) R {
	if e.err != nil {
		return onFailure(e.err)
	}
	return onSuccess(e.value)
}

// MapCatching applies f to a success. A panic inside f becomes a failure.
func MapCatching[T, R any](e ErrorCatching[T], f func(T) R) (out ErrorCatching[R]) {
	if e.err != nil {
		return Failure[R](e.err)
	}
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				out = Failure[R](err)
				return
			}
			out = Failure[R](fmt.Errorf("derivation panicked: %v", r))
		}
	}()
	return Success(f(e.value))
}

func equalCatching[T comparable](a, b ErrorCatching[T]) bool {
	if (a.err == nil) != (b.err == nil) {
		return false
	}
	if a.err != nil {
		return a.err.Error() == b.err.Error()
	}
	return a.value == b.value
}
