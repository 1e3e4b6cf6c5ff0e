package consensus

import "sync"

// LocalState is the mutable, node local side of a consensus mechanism: the
// cached epoch seed and the stake distribution frozen at the last epoch
// boundary. Proof of signature keeps it empty.
type LocalState struct {
	mu        sync.RWMutex
	epochSeed string
	epoch     uint64
	stakes    map[string]uint64
	total     uint64
}

// NewLocalState constructs a local state seeded from the genesis stake
// distribution.
func NewLocalState(seed string, stakes map[string]uint64) *LocalState {
	ls := LocalState{
		epochSeed: seed,
		stakes:    make(map[string]uint64),
	}

	for addr, stake := range stakes {
		ls.stakes[addr] = stake
		ls.total += stake
	}

	return &ls
}

// EpochSeed returns the randomness seed of the current epoch.
func (ls *LocalState) EpochSeed() string {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	return ls.epochSeed
}

// Epoch returns the epoch the cached distribution was frozen for.
func (ls *LocalState) Epoch() uint64 {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	return ls.epoch
}

// Stake returns the frozen stake for the address and the frozen total.
func (ls *LocalState) Stake(address string) (stake uint64, total uint64) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	return ls.stakes[address], ls.total
}

// freeze replaces the cached distribution and seed at an epoch boundary.
func (ls *LocalState) freeze(epoch uint64, seed string, stakes map[string]uint64, total uint64) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.epoch = epoch
	ls.epochSeed = seed
	ls.stakes = stakes
	ls.total = total
}
