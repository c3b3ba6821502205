package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/aidanlsb/herald/internal/model"
)

var (
	alice = &model.User{Login: "alice"}
	bob   = &model.User{Login: "bob"}
)

func TestPushRelease(t *testing.T) {
	s := NewStack()
	if s.Current() != nil || s.Depth() != 0 {
		t.Fatalf("new stack: Current = %v, Depth = %d", s.Current(), s.Depth())
	}

	releaseA := s.Push(alice)
	if s.Current() != alice {
		t.Errorf("Current = %v, want alice", s.Current())
	}

	releaseB := s.Push(bob)
	if s.Current() != bob || s.Depth() != 2 {
		t.Errorf("Current = %v, Depth = %d; want bob, 2", s.Current(), s.Depth())
	}

	releaseB()
	releaseB()
	if s.Current() != alice || s.Depth() != 1 {
		t.Errorf("after release: Current = %v, Depth = %d; want alice, 1", s.Current(), s.Depth())
	}

	releaseA()
	if s.Depth() != 0 {
		t.Errorf("Depth = %d, want 0", s.Depth())
	}
}

func TestAnonymousFrame(t *testing.T) {
	s := NewStack()
	defer s.Push(alice)()

	release := s.Push(nil)
	if s.Current() != nil {
		t.Errorf("Current = %v, want nil inside anonymous frame", s.Current())
	}
	release()
	if s.Current() != alice {
		t.Errorf("Current = %v, want alice", s.Current())
	}
}

func TestOutOfOrderReleasePanics(t *testing.T) {
	s := NewStack()
	releaseA := s.Push(alice)
	s.Push(bob)

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrStackUnderflow) {
			t.Errorf("recovered %v, want ErrStackUnderflow", r)
		}
	}()
	releaseA()
}

func TestPopEmptyPanics(t *testing.T) {
	defer func() {
		if r := recover(); r != ErrStackUnderflow {
			t.Errorf("recovered %v, want ErrStackUnderflow", r)
		}
	}()
	NewStack().Pop()
}

func TestReleaseInDeferUnwindsOnPanic(t *testing.T) {
	s := NewStack()
	func() {
		defer func() { _ = recover() }()
		release := s.Push(alice)
		defer release()
		panic("boom")
	}()
	if s.Depth() != 0 {
		t.Errorf("Depth = %d after panic, want 0", s.Depth())
	}
}

func TestContext(t *testing.T) {
	if _, ok := StackFrom(context.Background()); ok {
		t.Error("StackFrom(background) should report no stack")
	}

	s := NewStack()
	ctx := WithStack(context.Background(), s)
	got, ok := StackFrom(ctx)
	if !ok || got != s {
		t.Errorf("StackFrom = %p, %v; want %p, true", got, ok, s)
	}
}
