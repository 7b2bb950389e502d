package main

import (
	"context"
	"testing"
)

type orderedStopper struct {
	ctx            context.Context
	cancelledFirst bool
	stopped        bool
}

func (s *orderedStopper) Stop() {
	s.stopped = true
	s.cancelledFirst = s.ctx.Err() != nil
}

func TestShutdownStopsBoardBeforeCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &orderedStopper{ctx: ctx}

	shutdown(s, cancel)

	if !s.stopped {
		t.Fatal("board was not stopped")
	}
	if s.cancelledFirst {
		t.Fatal("root context cancelled before the board stopped")
	}
	if ctx.Err() == nil {
		t.Fatal("root context not cancelled after shutdown")
	}
}
