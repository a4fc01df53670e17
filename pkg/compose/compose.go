// Package compose builds onion-style middleware chains.
//
// A handler receives the per-update context and a continuation. Code before
// next() runs on the way in, code after it runs on the way out once every
// nested stage has returned. Not calling next stops the chain without error.
package compose

import "errors"

// ErrNextCalledTwice is returned when a handler invokes its continuation more than once.
var ErrNextCalledTwice = errors.New("compose: next called more than once")

// Next runs the remainder of the chain.
type Next func() error

// Handler is one stage of a chain over context type C.
type Handler[C any] func(c C, next Next) error

// Passthru returns a handler that only continues the chain.
func Passthru[C any]() Handler[C] {
	return func(_ C, next Next) error {
		return next()
	}
}

// Compose folds handlers into a single handler. The first handler is the
// outermost layer; an empty list behaves like Passthru.
func Compose[C any](handlers ...Handler[C]) Handler[C] {
	chain := make([]Handler[C], 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			chain = append(chain, h)
		}
	}

	if len(chain) == 0 {
		return Passthru[C]()
	}

	return func(c C, next Next) error {
		run := next
		for i := len(chain) - 1; i >= 0; i-- {
			run = stage(chain[i], c, run)
		}
		return run()
	}
}

func stage[C any](h Handler[C], c C, next Next) Next {
	return func() error {
		return h(c, once(next))
	}
}

func once(next Next) Next {
	called := false
	return func() error {
		if called {
			return ErrNextCalledTwice
		}
		called = true
		return next()
	}
}

// Run executes h with a terminal no-op continuation.
func Run[C any](h Handler[C], c C) error {
	if h == nil {
		return nil
	}
	return h(c, func() error { return nil })
}

// GatedOn runs inner only when match reports true for the context, otherwise
// it skips straight to next. When inner runs, next is reached through inner's
// own continuation, so a short-circuit inside inner stops the outer chain too.
func GatedOn[C any](match func(C) bool, inner ...Handler[C]) Handler[C] {
	composed := Compose(inner...)
	return func(c C, next Next) error {
		if match != nil && match(c) {
			return composed(c, next)
		}
		return next()
	}
}

// Optional is GatedOn with a name that reads better for predicate checks.
func Optional[C any](test func(C) bool, handlers ...Handler[C]) Handler[C] {
	return GatedOn(test, handlers...)
}

// Branch runs onTrue or onFalse depending on test.
func Branch[C any](test func(C) bool, onTrue, onFalse Handler[C]) Handler[C] {
	if onTrue == nil {
		onTrue = Passthru[C]()
	}
	if onFalse == nil {
		onFalse = Passthru[C]()
	}
	return func(c C, next Next) error {
		if test != nil && test(c) {
			return onTrue(c, next)
		}
		return onFalse(c, next)
	}
}
