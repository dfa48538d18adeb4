// Package event defines the normalized chat/meta event record and the ordered
// queue connecting network ingestion to the consumer loop.
package event

import "time"

type Kind int

const (
	Chat Kind = iota
	Action
	Whisper
	SubNotify
	BanNotify
	ClearText
	HostNotify
	RoomstateNotify
	JTVNotify
	Disconnected
)

func (k Kind) String() string {
	switch k {
	case Chat:
		return "chat"
	case Action:
		return "action"
	case Whisper:
		return "whisper"
	case SubNotify:
		return "sub"
	case BanNotify:
		return "ban"
	case ClearText:
		return "clear"
	case HostNotify:
		return "host"
	case RoomstateNotify:
		return "roomstate"
	case JTVNotify:
		return "jtv"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

// Announce distinguishes the first broadcast of a subscription announcement
// from the re-rendered duplicate the platform may deliver afterwards.
// Duplicates reactivate a lapsed record but must not increment any tally.
type Announce int

const (
	AnnounceNone Announce = iota
	AnnounceFirst
	AnnounceDuplicate
)

// Event is an immutable notification decoded from the wire.  The optional
// fields are only meaningful for the kinds that define them: Target for
// whispers, Amount for donations and timeout durations, Announce for
// subscription notices.
type Event struct {
	Kind    Kind
	Channel string
	Sender  string
	Content string
	At      time.Time

	Target   string
	Amount   float64
	Announce Announce

	// Tags carries decoded message tags (badges, color, display-name,
	// emote-sets, roomstate keys).  Consumers must tolerate missing or
	// malformed values, skipping the offending field only.
	Tags map[string]string
}
