package lane

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNoStack is returned when a lane send finds no bound stack.
	ErrNoStack = errors.New("no lane stack bound")
	// ErrAlreadyBound is returned by Bind when a stack is already bound.
	ErrAlreadyBound = errors.New("lane stack already bound")
)

// Binding holds the stack of one call lifecycle. It is written once by Bind
// and emptied once by Clear.
type Binding struct {
	mu    sync.Mutex
	stack *Stack
}

// Bind publishes s.
func (b *Binding) Bind(s *Stack) error {
	if s == nil {
		return errors.New("bind nil stack")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stack != nil {
		return ErrAlreadyBound
	}
	b.stack = s
	return nil
}

// Stack returns the bound stack or ErrNoStack.
func (b *Binding) Stack() (*Stack, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stack == nil {
		return nil, ErrNoStack
	}
	return b.stack, nil
}

// Clear empties the binding and returns what was bound, if anything.
func (b *Binding) Clear() *Stack {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stack
	b.stack = nil
	return s
}

type bindingKey struct{}

// WithBinding returns a context carrying b.
func WithBinding(ctx context.Context, b *Binding) context.Context {
	return context.WithValue(ctx, bindingKey{}, b)
}

// FromContext returns the binding carried by ctx.
func FromContext(ctx context.Context) (*Binding, bool) {
	b, ok := ctx.Value(bindingKey{}).(*Binding)
	return b, ok && b != nil
}

// StackFromContext resolves the bound stack through ctx.
func StackFromContext(ctx context.Context) (*Stack, error) {
	b, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoStack
	}
	return b.Stack()
}
