package conversation

import "sync"

// Keyring caches one shared key per conversation for the lifetime of a
// client session. Keys live only in memory and are zeroed on Clear.
type Keyring struct {
	mu   sync.RWMutex
	keys map[ID][]byte
}

func NewKeyring() *Keyring {
	return &Keyring{
		keys: make(map[ID][]byte),
	}
}

func (k *Keyring) Put(id ID, key []byte) {
	cp := make([]byte, len(key))
	copy(cp, key)

	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[id] = cp
}

func (k *Keyring) Get(id ID) ([]byte, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[id]
	return key, ok
}

func (k *Keyring) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}

// Clear zeroes all cached key material and empties the cache.
func (k *Keyring) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for id, key := range k.keys {
		for i := range key {
			key[i] = 0
		}
		delete(k.keys, id)
	}
}
