package chain

import (
	"sync"

	"github.com/quantumpay/gateway/internal/domain/model"
)

// NonceSequencer serializes nonce assignment per chain/account so concurrent
// orders settling on the same chain never collide on a transaction nonce.
// The lock is held from nonce read through broadcast.
type NonceSequencer struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewNonceSequencer() *NonceSequencer {
	return &NonceSequencer{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the sequencing lock for (chain, account) and returns the
// unlock function. Callers must release it after eth_sendRawTransaction
// returns, not after the receipt lands.
func (s *NonceSequencer) Lock(chain model.Chain, account string) func() {
	key := chain.String() + ":" + account

	s.mu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
