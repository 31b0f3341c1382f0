package execution

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWatcher_Add(t *testing.T) {
	watcher := NewWatcher()

	watcher.Add(fakeObserver{ch: make(chan Event)})
	require.Len(t, watcher.observers, 1)

	obs := fakeObserver{ch: make(chan Event)}
	watcher.Add(obs)
	require.Len(t, watcher.observers, 2)

	watcher.Add(obs)
	require.Len(t, watcher.observers, 2)
}

func TestWatcher_Remove(t *testing.T) {
	watcher := NewWatcher()
	watcher.observers[newFakeObserver()] = struct{}{}

	obs := newFakeObserver()
	watcher.observers[obs] = struct{}{}
	require.Len(t, watcher.observers, 2)

	watcher.Remove(obs)
	require.Len(t, watcher.observers, 1)

	watcher.Remove(obs)
	require.Len(t, watcher.observers, 1)
}

func TestWatcher_Notify(t *testing.T) {
	watcher := NewWatcher()

	obs := newFakeObserver()
	watcher.observers[obs] = struct{}{}

	watcher.Notify(Event{Contract: "abc", Accepted: true})

	evt := <-obs.ch
	require.Equal(t, "abc", evt.Contract)
	require.True(t, evt.Accepted)
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeObserver struct {
	ch chan Event
}

func (o fakeObserver) NotifyCallback(evt Event) {
	o.ch <- evt
}

func newFakeObserver() fakeObserver {
	return fakeObserver{
		ch: make(chan Event, 1),
	}
}
