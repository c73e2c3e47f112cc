package stateflow

import (
	"context"
	"testing"
	"time"
)

func TestValue_GetSet(t *testing.T) {
	v := New(1)
	if got := v.Get(); got != 1 {
		t.Errorf("Expected 1, got %d", got)
	}

	v.Set(2)
	if got := v.Get(); got != 2 {
		t.Errorf("Expected 2, got %d", got)
	}

	got := v.Update(func(n int) int { return n * 10 })
	if got != 20 || v.Get() != 20 {
		t.Errorf("Expected 20 after update, got %d", got)
	}
}

func TestValue_WatchReceivesCurrentThenLatest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v := New("idle")
	ch := v.Watch(ctx)

	if got := <-ch; got != "idle" {
		t.Fatalf("Expected initial value idle, got %s", got)
	}

	v.Set("recording")
	v.Set("transcribing")

	select {
	case got := <-ch:
		if got != "transcribing" {
			t.Errorf("Expected latest value transcribing, got %s", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for update")
	}
}

func TestValue_WatchClosedOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	v := New(0)
	ch := v.Watch(ctx)
	<-ch

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for close")
	}

	v.Set(1)
}
