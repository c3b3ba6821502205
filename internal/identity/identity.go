// Package identity tracks the user a unit of work is acting as.
//
// A Stack belongs to one worker goroutine. Code that evaluates something on
// behalf of a user pushes that user, does the work, and releases the frame:
//
//	release := stack.Push(user)
//	defer release()
//
// Nothing reads the stack implicitly; callers pass Current() to whatever
// needs the acting user.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/aidanlsb/herald/internal/model"
)

// ErrStackUnderflow is the panic value raised when a frame is popped that is
// not on top of the stack.
var ErrStackUnderflow = errors.New("identity stack underflow")

// Stack is a LIFO of acting users. It is not safe for concurrent use.
type Stack struct {
	frames []*model.User
}

// NewStack returns an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push makes user the acting user until the returned release func runs.
// A nil user pushes an anonymous frame. Releasing out of order panics with
// ErrStackUnderflow; releasing twice is a no-op.
func (s *Stack) Push(user *model.User) (release func()) {
	s.frames = append(s.frames, user)
	depth := len(s.frames)
	released := false
	return func() {
		if released {
			return
		}
		if len(s.frames) != depth {
			panic(fmt.Errorf("%w: releasing frame %d with depth %d", ErrStackUnderflow, depth, len(s.frames)))
		}
		released = true
		s.Pop()
	}
}

// Pop removes the top frame. It panics with ErrStackUnderflow when the
// stack is empty.
func (s *Stack) Pop() *model.User {
	if len(s.frames) == 0 {
		panic(ErrStackUnderflow)
	}
	top := s.frames[len(s.frames)-1]
	s.frames[len(s.frames)-1] = nil
	s.frames = s.frames[:len(s.frames)-1]
	return top
}

// Current returns the acting user, or nil when the stack is empty or the
// top frame is anonymous.
func (s *Stack) Current() *model.User {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Depth returns the number of frames.
func (s *Stack) Depth() int {
	return len(s.frames)
}

type ctxKey string

const stackCtxKey = ctxKey("identity-stack")

// WithStack attaches a worker's stack to ctx.
func WithStack(parent context.Context, s *Stack) context.Context {
	return context.WithValue(parent, stackCtxKey, s)
}

// StackFrom returns the stack attached to ctx, if any.
func StackFrom(ctx context.Context) (*Stack, bool) {
	s, ok := ctx.Value(stackCtxKey).(*Stack)
	return s, ok && s != nil
}
