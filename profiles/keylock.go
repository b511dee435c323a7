package profiles

import "sync"

// keyLocks hands out one mutex per document key. An entry lives while
// anyone holds a reference to it.
type keyLocks struct {
	mu   sync.Mutex
	keys map[string]*keyLock
}

// keyLock serializes store mutations and cache fills for one key. gen
// changes after every completed mutation so a read-through fill can tell
// whether the value it read is still current.
type keyLock struct {
	sync.Mutex
	refs int
	gen  uint64
}

func newKeyLocks() *keyLocks {
	return &keyLocks{keys: make(map[string]*keyLock)}
}

func (l *keyLocks) acquire(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	k, ok := l.keys[key]
	if !ok {
		k = &keyLock{}
		l.keys[key] = k
	}
	k.refs++
	return k
}

func (l *keyLocks) release(key string, k *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.keys, key)
	}
}

func (l *keyLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// generation reads gen once no mutation of the key is in flight.
func (k *keyLock) generation() uint64 {
	k.Lock()
	defer k.Unlock()
	return k.gen
}
