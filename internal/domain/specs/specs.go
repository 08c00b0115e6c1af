// Package specs composes predicates over domain records. Evaluation stops
// early once the context is done.
package specs

import "context"

type Specification[T any] interface {
	IsSatisfiedBy(ctx context.Context, v T) bool
	And(other Specification[T]) Specification[T]
	Or(other Specification[T]) Specification[T]
	Not() Specification[T]
}

type specFunc[T any] func(ctx context.Context, v T) bool

func (f specFunc[T]) IsSatisfiedBy(ctx context.Context, v T) bool {
	if ctx.Err() != nil {
		return false
	}
	return f(ctx, v)
}

func (f specFunc[T]) And(other Specification[T]) Specification[T] {
	return specFunc[T](func(ctx context.Context, v T) bool {
		return f.IsSatisfiedBy(ctx, v) && other.IsSatisfiedBy(ctx, v)
	})
}

func (f specFunc[T]) Or(other Specification[T]) Specification[T] {
	return specFunc[T](func(ctx context.Context, v T) bool {
		return f.IsSatisfiedBy(ctx, v) || other.IsSatisfiedBy(ctx, v)
	})
}

func (f specFunc[T]) Not() Specification[T] {
	return specFunc[T](func(ctx context.Context, v T) bool {
		if ctx.Err() != nil {
			return false
		}
		return !f(ctx, v)
	})
}

// New wraps a predicate.
func New[T any](fn func(ctx context.Context, v T) bool) Specification[T] { return specFunc[T](fn) }

// All is satisfied by everything.
func All[T any]() Specification[T] {
	return New(func(context.Context, T) bool { return true })
}
