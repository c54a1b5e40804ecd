package capture

import "sync"

// Listener receives session events. Callbacks run on the session's control goroutine
// and must not call blocking Session methods. Nil callbacks are skipped.
type Listener struct {
	OnStart  func()
	OnStop   func(file string)
	OnCancel func()
	OnError  func(err error)
}

type listeners struct {
	mu   sync.Mutex
	next int
	byID map[int]Listener
}

func (l *listeners) add(listener Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.byID == nil {
		l.byID = make(map[int]Listener)
	}
	id := l.next
	l.next++
	l.byID[id] = listener

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.byID, id)
	}
}

func (l *listeners) snapshot() []Listener {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Listener, 0, len(l.byID))
	for id := 0; id < l.next; id++ {
		if listener, ok := l.byID[id]; ok {
			out = append(out, listener)
		}
	}
	return out
}
