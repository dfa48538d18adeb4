// Package ingest binds the platform connection to the event queue.  A
// Decoder translates the connection library's callbacks into normalized
// events; it is the sole ingress into the queue.  The same connection is
// exposed to the task dispatcher through Conn.
package ingest

import (
	"strings"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/kouhai-chat/kouhai/event"
)

// Decoder wires a connected client's callbacks to a queue.  One decoder per
// account connection; every callback runs on the client's reader goroutine
// and only ever calls Enqueue, which never blocks.
type Decoder struct {
	client *twitch.Client
	queue  *event.Queue

	mu         sync.Mutex
	lastSubIDs map[string]string // channel -> id tag of the last sub notice
}

func NewDecoder(client *twitch.Client, queue *event.Queue) *Decoder {
	d := &Decoder{
		client:     client,
		queue:      queue,
		lastSubIDs: make(map[string]string),
	}
	d.bind()
	return d
}

func (d *Decoder) bind() {
	d.client.OnPrivateMessage(func(m twitch.PrivateMessage) {
		kind := event.Chat
		if m.Action {
			kind = event.Action
		}
		d.queue.Enqueue(event.Event{
			Kind:    kind,
			Channel: "#" + m.Channel,
			Sender:  m.User.Name,
			Content: m.Message,
			At:      m.Time,
			Tags:    userTags(m.User, m.Tags),
		})
	})

	d.client.OnWhisperMessage(func(m twitch.WhisperMessage) {
		d.queue.Enqueue(event.Event{
			Kind:    event.Whisper,
			Sender:  m.User.Name,
			Content: m.Message,
			Target:  m.Target,
			Tags:    userTags(m.User, m.Tags),
		})
	})

	d.client.OnUserNoticeMessage(func(m twitch.UserNoticeMessage) {
		switch m.MsgID {
		case "sub", "resub":
			d.queue.Enqueue(event.Event{
				Kind:     event.SubNotify,
				Channel:  "#" + m.Channel,
				Sender:   m.User.Name,
				Content:  m.SystemMsg,
				At:       m.Time,
				Announce: d.announceKind(m),
				Tags:     userTags(m.User, m.Tags),
			})
		case "raid":
			d.queue.Enqueue(event.Event{
				Kind:    event.HostNotify,
				Channel: "#" + m.Channel,
				Sender:  m.User.Name,
				Content: m.SystemMsg,
				At:      m.Time,
				Tags:    m.MsgParams,
			})
		default:
			d.queue.Enqueue(event.Event{
				Kind:    event.JTVNotify,
				Channel: "#" + m.Channel,
				Content: m.SystemMsg,
				At:      m.Time,
			})
		}
	})

	d.client.OnClearChatMessage(func(m twitch.ClearChatMessage) {
		if m.TargetUsername == "" {
			d.queue.Enqueue(event.Event{
				Kind:    event.ClearText,
				Channel: "#" + m.Channel,
			})
			return
		}
		d.queue.Enqueue(event.Event{
			Kind:    event.BanNotify,
			Channel: "#" + m.Channel,
			Sender:  m.TargetUsername,
			Amount:  float64(m.BanDuration),
		})
	})

	d.client.OnRoomStateMessage(func(m twitch.RoomStateMessage) {
		d.queue.Enqueue(event.Event{
			Kind:    event.RoomstateNotify,
			Channel: "#" + m.Channel,
			Tags:    m.Tags,
		})
	})

	d.client.OnNoticeMessage(func(m twitch.NoticeMessage) {
		d.queue.Enqueue(event.Event{
			Kind:    event.JTVNotify,
			Channel: "#" + m.Channel,
			Content: m.Message,
		})
	})
}

// announceKind flags re-delivered subscription notices: the platform may
// broadcast the same notice more than once, and only the first may count.
func (d *Decoder) announceKind(m twitch.UserNoticeMessage) event.Announce {
	id := m.Tags["id"]
	if id == "" {
		return event.AnnounceFirst
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastSubIDs[m.Channel] == id {
		return event.AnnounceDuplicate
	}
	d.lastSubIDs[m.Channel] = id
	return event.AnnounceFirst
}

func userTags(u twitch.User, tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags)+2)
	for k, v := range tags {
		out[k] = v
	}
	if u.DisplayName != "" {
		out["display-name"] = u.DisplayName
	}
	if u.Color != "" {
		out["color"] = u.Color
	}
	return out
}

// Conn adapts the client to the dispatcher's connection interface.  Join and
// Part are acknowledged by the server asynchronously; Connect runs the
// blocking read loop on its own goroutine and reports its end as a
// Disconnected event, never as a Connect error.
type Conn struct {
	client *twitch.Client
	queue  *event.Queue
}

func NewConn(client *twitch.Client, queue *event.Queue) *Conn {
	return &Conn{client: client, queue: queue}
}

func (c *Conn) Join(channel string) error {
	c.client.Join(strings.TrimPrefix(channel, "#"))
	return nil
}

func (c *Conn) Part(channel string) error {
	c.client.Depart(strings.TrimPrefix(channel, "#"))
	return nil
}

func (c *Conn) Disconnect() error {
	return c.client.Disconnect()
}

func (c *Conn) Connect() error {
	go func() {
		// Connect blocks until the connection drops; the consumer loop
		// owns the decision of what happens next.
		c.client.Connect()
		c.queue.Enqueue(event.Event{Kind: event.Disconnected})
	}()
	return nil
}
