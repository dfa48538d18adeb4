package roster

import "strings"

type Badge int

// Display order for badges in front of a message.  Multiple badges may
// coexist on one user; this is a fixed rendering precedence, not a data
// invariant.
const (
	BadgeBroadcaster Badge = iota
	BadgeStaff
	BadgeAdmin
	BadgeGlobalMod
	BadgeModerator
	BadgeSubscriber
	BadgeExSubscriber
	BadgeTurbo
	BadgeDonor
)

func (b Badge) String() string {
	switch b {
	case BadgeBroadcaster:
		return "broadcaster"
	case BadgeStaff:
		return "staff"
	case BadgeAdmin:
		return "admin"
	case BadgeGlobalMod:
		return "global-mod"
	case BadgeModerator:
		return "moderator"
	case BadgeSubscriber:
		return "subscriber"
	case BadgeExSubscriber:
		return "ex-subscriber"
	case BadgeTurbo:
		return "turbo"
	case BadgeDonor:
		return "donor"
	}
	return "unknown"
}

// DonorTier buckets a total donation amount into an icon tier, 0 for none.
func DonorTier(amount float64) int {
	switch {
	case amount >= 100:
		return 5
	case amount >= 50:
		return 4
	case amount >= 20:
		return 3
	case amount >= 10:
		return 2
	case amount > 0:
		return 1
	}
	return 0
}

// DisplayBadges returns the badges to draw before a message from u on
// channel, in precedence order.  The ex-subscriber badge appears only when
// the user is not an active subscriber, a subscriber record exists for them
// on the main channel, and that record is inactive.
func DisplayBadges(u Snapshot, channel, mainChannel string, tr *Tracker) []Badge {
	var badges []Badge
	broadcaster := strings.TrimPrefix(channel, "#") == u.Name
	if broadcaster {
		badges = append(badges, BadgeBroadcaster)
	}
	if u.Staff {
		badges = append(badges, BadgeStaff)
	}
	if u.Admin {
		badges = append(badges, BadgeAdmin)
	}
	if u.GlobalMod {
		badges = append(badges, BadgeGlobalMod)
	}
	if u.Op && !broadcaster && !u.Staff && !u.Admin && !u.GlobalMod {
		badges = append(badges, BadgeModerator)
	}
	if u.Subscriber {
		badges = append(badges, BadgeSubscriber)
	} else if channel == mainChannel && tr != nil {
		if sub, ok := tr.Get(u.Name, mainChannel); ok && !sub.Active {
			badges = append(badges, BadgeExSubscriber)
		}
	}
	if u.Turbo {
		badges = append(badges, BadgeTurbo)
	}
	if DonorTier(u.Donated) > 0 {
		badges = append(badges, BadgeDonor)
	}
	return badges
}
