package roster

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrAlreadySubscribed is returned when a "new subscriber" announcement
// arrives for a user who already has an active record, which happens when the
// platform delivers the announcement more than once in rapid succession.
var ErrAlreadySubscribed = errors.New("roster: subscriber record already active")

type SubState int

const (
	SubNone SubState = iota
	SubActive
	SubLapsed
)

// Subscriber is the per (user, channel) subscription activity record.  A user
// has at most one record per channel.
type Subscriber struct {
	Name            string
	Channel         string
	Active          bool
	SubscribedSince time.Time
	LastSeen        time.Time
}

type subKey struct {
	name    string
	channel string
}

// Tracker owns all subscriber records.  Activation and renewal are driven by
// chat events; lapsing is driven by an external scheduled re-evaluation.
type Tracker struct {
	mu   sync.Mutex
	subs map[subKey]*Subscriber

	now func() time.Time // for tests
}

func NewTracker() *Tracker {
	return &Tracker{
		subs: make(map[subKey]*Subscriber),
		now:  time.Now,
	}
}

func key(name, channel string) subKey {
	return subKey{name: strings.ToLower(name), channel: channel}
}

// AddNewSubscriber transitions (name, channel) from None to Active, creating
// the record.  If an active record already exists it returns
// ErrAlreadySubscribed so the caller can suppress double-counting.  A lapsed
// record is reactivated.
func (t *Tracker) AddNewSubscriber(name, channel string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key(name, channel)
	now := t.now()
	if sub, ok := t.subs[k]; ok {
		if sub.Active {
			return ErrAlreadySubscribed
		}
		sub.Active = true
		sub.LastSeen = now
		return nil
	}
	t.subs[k] = &Subscriber{
		Name:            k.name,
		Channel:         channel,
		Active:          true,
		SubscribedSince: now,
		LastSeen:        now,
	}
	return nil
}

// Renew handles a "has subscribed for N months" announcement: it reactivates
// a lapsed record without touching SubscribedSince, creating the record if
// this is the first we hear of the user.  Whether the announcement counts
// toward any tally is the caller's decision; a record is never silently
// resurrected outside this explicit path.
func (t *Tracker) Renew(name, channel string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key(name, channel)
	now := t.now()
	sub, ok := t.subs[k]
	if !ok {
		t.subs[k] = &Subscriber{
			Name:            k.name,
			Channel:         channel,
			Active:          true,
			SubscribedSince: now,
			LastSeen:        now,
		}
		return
	}
	sub.Active = true
	sub.LastSeen = now
}

// Lapse marks the record inactive.  Called by the external expiry
// re-evaluation, never directly by chat events.
func (t *Tracker) Lapse(name, channel string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sub, ok := t.subs[key(name, channel)]; ok {
		sub.Active = false
	}
}

// Touch updates LastSeen for an active subscriber seen chatting.
func (t *Tracker) Touch(name, channel string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sub, ok := t.subs[key(name, channel)]; ok {
		sub.LastSeen = t.now()
	}
}

// Get returns a copy of the record for (name, channel).
func (t *Tracker) Get(name, channel string) (Subscriber, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub, ok := t.subs[key(name, channel)]
	if !ok {
		return Subscriber{}, false
	}
	return *sub, true
}

// State reports the state-machine position of (name, channel).
func (t *Tracker) State(name, channel string) SubState {
	sub, ok := t.Get(name, channel)
	switch {
	case !ok:
		return SubNone
	case sub.Active:
		return SubActive
	}
	return SubLapsed
}
