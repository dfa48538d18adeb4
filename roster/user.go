// Package roster tracks per-user and per-channel chat state: the user
// directory, subscriber records and pending ban batches.  All mutation happens
// on the event-consumer goroutine; the rendering side only ever sees
// copy-on-read snapshots.
package roster

import (
	"strings"
	"sync"

	"git.sr.ht/~rockorager/vaxis"
)

// User is a known chat user, keyed by lowercase name.  Owned by Directory;
// callers outside the consumer loop must go through Snapshot.
type User struct {
	Name        string
	DisplayName string
	Color       vaxis.Color

	Staff     bool
	Admin     bool
	GlobalMod bool
	Turbo     bool
	Donated   float64

	ops    map[string]struct{} // channels where the user is operator
	subs   map[string]struct{} // channels where the user is subscribed
	emotes map[string]struct{} // owned platform emote identifiers
}

func (u *User) IsOp(channel string) bool {
	_, ok := u.ops[channel]
	return ok
}

func (u *User) IsSubscriber(channel string) bool {
	_, ok := u.subs[channel]
	return ok
}

// Roles carries badge/role updates decoded from message tags.  Nil pointer
// fields leave the corresponding flag untouched, so partial updates never
// clobber what another event already established.
type Roles struct {
	Op         *bool
	Subscriber *bool
	Staff      *bool
	Admin      *bool
	GlobalMod  *bool
	Turbo      *bool
}

// Snapshot is an immutable copy of a User handed to the rendering thread.
type Snapshot struct {
	Name        string
	DisplayName string
	Color       vaxis.Color
	Staff       bool
	Admin       bool
	GlobalMod   bool
	Turbo       bool
	Donated     float64
	Op          bool // scoped to the requested channel
	Subscriber  bool // scoped to the requested channel
	Emotes      map[string]struct{}
}

// Directory maps lowercase usernames to their User record.
type Directory struct {
	mu    sync.Mutex
	users map[string]*User
}

func NewDirectory() *Directory {
	return &Directory{users: make(map[string]*User)}
}

// GetOrCreate returns the record for name, creating it lazily on first
// reference.  This is the only creation path; records are never deleted.
func (d *Directory) GetOrCreate(name string) *User {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getOrCreate(name)
}

func (d *Directory) getOrCreate(name string) *User {
	key := strings.ToLower(name)
	u, ok := d.users[key]
	if !ok {
		u = &User{
			Name:        key,
			DisplayName: name,
			Color:       colorFor(key),
			ops:         make(map[string]struct{}),
			subs:        make(map[string]struct{}),
			emotes:      make(map[string]struct{}),
		}
		d.users[key] = u
	}
	return u
}

// UpdateBadges applies role flags for name on channel.  Unset fields of roles
// are left as they were.
func (d *Directory) UpdateBadges(name, channel string, roles Roles) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.getOrCreate(name)
	if roles.Op != nil {
		if *roles.Op {
			u.ops[channel] = struct{}{}
		} else {
			delete(u.ops, channel)
		}
	}
	if roles.Subscriber != nil {
		if *roles.Subscriber {
			u.subs[channel] = struct{}{}
		} else {
			delete(u.subs, channel)
		}
	}
	if roles.Staff != nil {
		u.Staff = *roles.Staff
	}
	if roles.Admin != nil {
		u.Admin = *roles.Admin
	}
	if roles.GlobalMod != nil {
		u.GlobalMod = *roles.GlobalMod
	}
	if roles.Turbo != nil {
		u.Turbo = *roles.Turbo
	}
}

// SetDisplayName records the platform-cased display name.
func (d *Directory) SetDisplayName(name, display string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.getOrCreate(name)
	if display != "" {
		u.DisplayName = display
	}
}

// SetColor records the user's assigned display color.
func (d *Directory) SetColor(name string, color vaxis.Color) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.getOrCreate(name).Color = color
}

// AddDonation accumulates a donation amount on the user.
func (d *Directory) AddDonation(name string, amount float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.getOrCreate(name).Donated += amount
}

// SetEmotes replaces the user's owned platform emote set.
func (d *Directory) SetEmotes(name string, ids []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.getOrCreate(name)
	u.emotes = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		u.emotes[id] = struct{}{}
	}
}

// Snapshot returns a consistent copy of the user's state scoped to channel.
// The rendering thread must use this instead of touching live records.
func (d *Directory) Snapshot(name, channel string) Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.getOrCreate(name)
	emotes := make(map[string]struct{}, len(u.emotes))
	for id := range u.emotes {
		emotes[id] = struct{}{}
	}
	return Snapshot{
		Name:        u.Name,
		DisplayName: u.DisplayName,
		Color:       u.Color,
		Staff:       u.Staff,
		Admin:       u.Admin,
		GlobalMod:   u.GlobalMod,
		Turbo:       u.Turbo,
		Donated:     u.Donated,
		Op:          u.IsOp(channel),
		Subscriber:  u.IsSubscriber(channel),
		Emotes:      emotes,
	}
}

var nickColors = []vaxis.Color{
	vaxis.IndexColor(1),
	vaxis.IndexColor(2),
	vaxis.IndexColor(3),
	vaxis.IndexColor(4),
	vaxis.IndexColor(5),
	vaxis.IndexColor(6),
	vaxis.IndexColor(9),
	vaxis.IndexColor(10),
	vaxis.IndexColor(11),
	vaxis.IndexColor(12),
	vaxis.IndexColor(13),
	vaxis.IndexColor(14),
}

// colorFor assigns a stable default color to a user who has not announced one.
func colorFor(name string) vaxis.Color {
	h := uint32(2166136261)
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= 16777619
	}
	return nickColors[h%uint32(len(nickColors))]
}
