package nodeclient

import (
	"sync"
)

// outcome is what a pending call is resolved with.
// An empty payload with no error is the abandonment signal.
type outcome struct {
	payload []byte
	err     error
}

// pendingTable maps correlation IDs to the single-use slot their caller is waiting on.
// An entry is removed by whoever resolves it, so at most one resolution is ever delivered.
type pendingTable struct {
	mut     sync.Mutex
	entries map[string]chan outcome
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: map[string]chan outcome{}}
}

// register adds an entry for id and returns its slot, or false if id is already pending.
func (t *pendingTable) register(id string) (<-chan outcome, bool) {
	t.mut.Lock()
	defer t.mut.Unlock()
	if _, ok := t.entries[id]; ok {
		return nil, false
	}
	// buffered so resolving never blocks on the caller
	ch := make(chan outcome, 1)
	t.entries[id] = ch
	return ch, true
}

// resolve removes the entry for id and delivers o to it.
// It returns false if there was no such entry.
func (t *pendingTable) resolve(id string, o outcome) bool {
	t.mut.Lock()
	ch, ok := t.entries[id]
	delete(t.entries, id)
	t.mut.Unlock()
	if !ok {
		return false
	}
	ch <- o
	return true
}

// remove deletes the entry for id without resolving it.
// It returns false if the entry was already gone, meaning someone else resolved it.
func (t *pendingTable) remove(id string) bool {
	t.mut.Lock()
	defer t.mut.Unlock()
	_, ok := t.entries[id]
	delete(t.entries, id)
	return ok
}

// drain removes every entry and resolves each with the abandonment signal.
// It returns the number of entries drained.
func (t *pendingTable) drain() int {
	t.mut.Lock()
	entries := t.entries
	t.entries = map[string]chan outcome{}
	t.mut.Unlock()

	for _, ch := range entries {
		ch <- outcome{}
	}
	return len(entries)
}

func (t *pendingTable) len() int {
	t.mut.Lock()
	defer t.mut.Unlock()
	return len(t.entries)
}
