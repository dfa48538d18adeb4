package roster

import (
	"sort"
	"strings"
	"sync"
)

// BanQueue accumulates "clear this user's messages" requests per channel so
// the rendering surface can apply them in one batch, decoupled from immediate
// single-message deletion.
type BanQueue struct {
	mu      sync.Mutex
	pending map[string]map[string]struct{}
}

func NewBanQueue() *BanQueue {
	return &BanQueue{pending: make(map[string]map[string]struct{})}
}

// Add queues name for removal from channel's backlog.
func (q *BanQueue) Add(channel, name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	set, ok := q.pending[channel]
	if !ok {
		set = make(map[string]struct{})
		q.pending[channel] = set
	}
	set[strings.ToLower(name)] = struct{}{}
}

// Drain atomically returns and clears the pending set for channel.  Draining
// twice without an intervening Add yields nothing the second time.
func (q *BanQueue) Drain(channel string) []string {
	q.mu.Lock()
	set := q.pending[channel]
	delete(q.pending, channel)
	q.mu.Unlock()

	if len(set) == 0 {
		return nil
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
