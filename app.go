// Package kouhai implements the chat client core: a single consumer goroutine
// drains the event queue and drives sessions, the user directory, subscriber
// tracking and the annotation pipeline.  Network callbacks only ever enqueue;
// everything stateful happens here.
package kouhai

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"git.sr.ht/~rockorager/vaxis"

	"github.com/kouhai-chat/kouhai/annotate"
	"github.com/kouhai-chat/kouhai/dispatch"
	"github.com/kouhai-chat/kouhai/event"
	"github.com/kouhai-chat/kouhai/roster"
	"github.com/kouhai-chat/kouhai/session"
	"github.com/kouhai-chat/kouhai/telemetry"
)

// systemChannel names the session that collects whispers, connection notices
// and anything else that has no channel of its own.
const systemChannel = "*system"

type App struct {
	cfg Config

	queue      *event.Queue
	dispatcher *dispatch.Dispatcher
	surface    session.Surface
	logger     session.ChatLogger

	directory *roster.Directory
	tracker   *roster.Tracker
	bans      *roster.BanQueue

	mu          sync.Mutex
	sessions    map[string]*session.Session
	system      *session.Session
	mainChannel string

	links          *annotate.LinkProvider
	faces          *annotate.EmoteProvider
	platformEmotes *annotate.EmoteProvider
	channelEmotes  map[string]*annotate.EmoteProvider
	keywords       *annotate.KeywordProvider

	systemStyle    vaxis.Style
	highlightStyle vaxis.Style

	closeOnce sync.Once
}

// NewApp wires the core together.  queue is the ingress the connection
// decoder feeds; conn is the outbound side of the same connection.  logger may
// be nil to disable chat logging regardless of the configured mode.
func NewApp(cfg Config, queue *event.Queue, conn dispatch.Conn, surface session.Surface, logger session.ChatLogger) *App {
	a := &App{
		cfg:           cfg,
		queue:         queue,
		surface:       surface,
		logger:        wrapLogger(logger, cfg.LogChatMode),
		directory:     roster.NewDirectory(),
		tracker:       roster.NewTracker(),
		bans:          roster.NewBanQueue(),
		sessions:      make(map[string]*session.Session),
		channelEmotes: make(map[string]*annotate.EmoteProvider),
		links:         &annotate.LinkProvider{Style: vaxis.Style{Foreground: cfg.Colors.Link, UnderlineStyle: vaxis.UnderlineSingle}},
		keywords:      &annotate.KeywordProvider{Keywords: cfg.Highlights, Style: vaxis.Style{Foreground: cfg.Colors.Highlight}},

		systemStyle:    vaxis.Style{Foreground: cfg.Colors.System},
		highlightStyle: vaxis.Style{Foreground: cfg.Colors.Highlight},
	}
	a.dispatcher = dispatch.New(conn, dispatch.Options{
		TaskTimeout:   cfg.TaskTimeout,
		AutoReconnect: cfg.AutoReconnect,
		OnForget: func() {
			a.cfg.Token = ""
			slog.Info("credentials forgotten")
		},
	})
	a.faces = annotate.NewEmoteProvider(defaultFaces, vaxis.Style{Foreground: cfg.Colors.Emote})
	a.system = session.New(systemChannel, surface, nil, cfg.ChatMax)
	return a
}

// defaultFaces is the built-in face vocabulary, matched for every sender.
// SetFaces replaces it once a richer set is fetched.
var defaultFaces = map[string]string{
	":)":  "smile",
	":(":  "frown",
	":D":  "grin",
	";)":  "wink",
	":p":  "tongue",
	":P":  "tongue",
	"<3":  "heart",
	":o":  "gasp",
	":O":  "gasp",
	":z":  "sleep",
	":/":  "skeptic",
	"o_O": "surprise",
	"O_o": "surprise",
	"B)":  "cool",
	">(":  "angry",
}

// wrapLogger applies the configured chat-log mode: 0 disables logging, 1 keeps
// only trimmed backlog lines, 2 logs everything including the final backlog.
func wrapLogger(logger session.ChatLogger, mode int) session.ChatLogger {
	if logger == nil || mode == 0 {
		return nil
	}
	if mode == 1 {
		return trimOnlyLogger{logger}
	}
	return logger
}

type trimOnlyLogger struct {
	inner session.ChatLogger
}

func (l trimOnlyLogger) Log(lines []string, channel string, mode session.LogMode) error {
	if mode == session.LogClose {
		return l.inner.Log(nil, channel, mode)
	}
	return l.inner.Log(lines, channel, mode)
}

// Join opens a session for channel and queues the outbound join.  The first
// joined channel becomes the main channel, which scopes the ex-subscriber
// badge.
func (a *App) Join(channel string) error {
	if !strings.HasPrefix(channel, "#") {
		channel = "#" + channel
	}
	a.mu.Lock()
	if _, ok := a.sessions[channel]; ok {
		a.mu.Unlock()
		return nil
	}
	a.sessions[channel] = session.New(channel, a.surface, a.logger, a.cfg.ChatMax)
	if a.mainChannel == "" {
		a.mainChannel = channel
		a.sessions[channel].SetFocused(true)
	}
	n := len(a.sessions)
	a.mu.Unlock()

	telemetry.SetSessionsActive(n)
	telemetry.CountTask(dispatch.TaskJoin.String())
	return a.dispatcher.Enqueue(dispatch.Task{Type: dispatch.TaskJoin, Channel: channel})
}

// Leave destroys the channel's session and queues the outbound part.
func (a *App) Leave(channel string) error {
	a.mu.Lock()
	sess, ok := a.sessions[channel]
	if ok {
		delete(a.sessions, channel)
	}
	n := len(a.sessions)
	a.mu.Unlock()
	if !ok {
		return nil
	}

	sess.Destroy()
	telemetry.SetSessionsActive(n)
	telemetry.CountTask(dispatch.TaskLeave.String())
	return a.dispatcher.Enqueue(dispatch.Task{Type: dispatch.TaskLeave, Channel: channel})
}

// Disconnect queues an outbound disconnect.  With forget set the disconnect is
// terminal: stored credentials are cleared, reconnects stop, and no further
// task is accepted.
func (a *App) Disconnect(forget bool) error {
	telemetry.CountTask(dispatch.TaskDisconnect.String())
	return a.dispatcher.Enqueue(dispatch.Task{Type: dispatch.TaskDisconnect, Forget: forget})
}

// Session returns the live session for channel; the empty channel resolves to
// the system session.
func (a *App) Session(channel string) *session.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	if channel == "" || channel == systemChannel {
		return a.system
	}
	return a.sessions[channel]
}

// Combine groups the named channels' sessions under one combined session.
func (a *App) Combine(channels ...string) *session.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	var children []*session.Session
	for _, channel := range channels {
		if sess, ok := a.sessions[channel]; ok {
			children = append(children, sess)
		}
	}
	return session.NewCombined(children...)
}

// Focus marks channel's session as the one currently shown.
func (a *App) Focus(channel string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, sess := range a.sessions {
		sess.SetFocused(name == channel)
	}
	a.system.SetFocused(channel == systemChannel)
}

// ConfirmTrim is called by the surface after it removed the oldest entries
// from channel's backlog.
func (a *App) ConfirmTrim(channel string, removed int) {
	sess := a.Session(channel)
	if sess == nil {
		return
	}
	sess.ConfirmTrim(removed)
	telemetry.CountTrim()
}

// SetFaces installs the built-in face vocabulary, matched for every sender.
func (a *App) SetFaces(vocab map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.faces = annotate.NewEmoteProvider(vocab, vaxis.Style{Foreground: a.cfg.Colors.Emote})
}

// SetPlatformEmotes installs the platform emote vocabulary (code to emote
// identifier).  Each message only matches the subset its author owns.
func (a *App) SetPlatformEmotes(vocab map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.platformEmotes = annotate.NewEmoteProvider(vocab, vaxis.Style{Foreground: a.cfg.Colors.Emote})
}

// SetChannelEmotes installs a channel's third-party emote vocabulary.
func (a *App) SetChannelEmotes(channel string, vocab map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.channelEmotes[channel] = annotate.NewEmoteProvider(vocab, vaxis.Style{Foreground: a.cfg.Colors.Emote})
}

// SetViewerCount records a polled viewer count on channel's session.
func (a *App) SetViewerCount(channel string, n int) {
	if sess := a.Session(channel); sess != nil {
		sess.SetViewerCount(n)
	}
}

// Run drains the event queue until Close.  It owns all session and roster
// mutation; a panic while processing one event is recovered so a malformed
// event never kills the loop.
func (a *App) Run() {
	for {
		ev, ok := a.queue.Dequeue()
		if !ok {
			break
		}
		a.consume(ev)
		depth := a.queue.Len()
		telemetry.SetQueueDepth(depth)
		if depth == 0 {
			// Quiet point: a ban wave has been fully absorbed, apply
			// the accumulated removals in one batch per channel.
			a.flushBans()
		}
	}
	a.flushBans()
	a.shutdown()
}

// Close stops event intake; Run finishes the backlog and then shuts down.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.queue.Close()
	})
}

// flushBans applies every pending removal batch to its session.
func (a *App) flushBans() {
	a.mu.Lock()
	sessions := make(map[string]*session.Session, len(a.sessions))
	for channel, sess := range a.sessions {
		sessions[channel] = sess
	}
	a.mu.Unlock()

	for channel, sess := range sessions {
		sess.RemoveUsers(a.bans.Drain(channel))
	}
}

func (a *App) shutdown() {
	a.dispatcher.Close()
	a.mu.Lock()
	sessions := make([]*session.Session, 0, len(a.sessions)+1)
	for _, sess := range a.sessions {
		sessions = append(sessions, sess)
	}
	sessions = append(sessions, a.system)
	a.sessions = make(map[string]*session.Session)
	a.mu.Unlock()

	for _, sess := range sessions {
		sess.Destroy()
	}
	telemetry.SetSessionsActive(0)
}

func (a *App) consume(ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.CountRecovered()
			slog.Error("event processing panicked",
				slog.String("kind", ev.Kind.String()),
				slog.String("channel", ev.Channel),
				slog.Any("panic", r))
		}
	}()
	telemetry.CountEvent(ev.Kind.String())

	switch ev.Kind {
	case event.Chat, event.Action:
		a.handleChat(ev)
	case event.Whisper:
		a.handleWhisper(ev)
	case event.SubNotify:
		a.handleSub(ev)
	case event.BanNotify:
		a.handleBan(ev)
	case event.ClearText:
		a.handleClear(ev)
	case event.HostNotify:
		a.handleHost(ev)
	case event.RoomstateNotify:
		a.handleRoomstate(ev)
	case event.JTVNotify:
		a.handleNotice(ev)
	case event.Disconnected:
		a.handleDisconnect()
	}
}

// enrichSender folds the message tags into the directory.  Each field is
// applied independently so one malformed tag never discards the rest.
func (a *App) enrichSender(ev event.Event) {
	if ev.Sender == "" || ev.Tags == nil {
		return
	}
	if dn := ev.Tags["display-name"]; dn != "" {
		a.directory.SetDisplayName(ev.Sender, dn)
	}
	if c, ok := colorFromTag(ev.Tags["color"]); ok {
		a.directory.SetColor(ev.Sender, c)
	}
	a.directory.UpdateBadges(ev.Sender, ev.Channel, rolesFromTags(ev.Tags))
	if ids := emoteSetsFromTag(ev.Tags["emote-sets"]); ids != nil {
		a.directory.SetEmotes(ev.Sender, ids)
	}
}

func (a *App) handleChat(ev event.Event) {
	sess := a.Session(ev.Channel)
	if sess == nil {
		return
	}
	a.enrichSender(ev)
	a.tracker.Touch(ev.Sender, ev.Channel)
	snap := a.directory.Snapshot(ev.Sender, ev.Channel)

	sess.BeginEntry()
	for _, b := range roster.DisplayBadges(snap, ev.Channel, a.mainChannel, a.tracker) {
		tier := 0
		if b == roster.BadgeDonor {
			tier = roster.DonorTier(snap.Donated)
		}
		sess.InsertBadge(b, tier)
	}

	nameStyle := vaxis.Style{Foreground: snap.Color}
	plain := vaxis.Style{}
	if ev.Kind == event.Action {
		plain = nameStyle
	}
	highlighted := a.keywords.Match(ev.Content) && !strings.EqualFold(ev.Sender, a.cfg.Nick)
	if highlighted {
		plain = a.highlightStyle
	}

	if ev.Kind == event.Action {
		sess.AppendText(snap.DisplayName+" ", nameStyle)
	} else {
		sess.AppendText(snap.DisplayName+": ", nameStyle)
	}

	providers := []annotate.Provider{
		a.links,
		a.faces,
		a.platformEmotes.Scoped(snap.Emotes),
		a.channelEmotes[ev.Channel],
	}
	if !highlighted {
		// A whole-message highlight already owns the style; per-keyword
		// spans would just cut it up.
		providers = append(providers, a.keywords)
	}
	spans := annotate.Annotate(ev.Content, providers)
	telemetry.CountSpans(len(spans))
	sess.AppendSegments(annotate.Render(ev.Content, spans, plain))
	sess.EndEntry()
}

func (a *App) handleWhisper(ev event.Event) {
	a.enrichSender(ev)
	snap := a.directory.Snapshot(ev.Sender, "")

	sess := a.system
	sess.BeginEntry()
	sess.AppendText(snap.DisplayName+" > "+ev.Target+": ", vaxis.Style{Foreground: snap.Color})
	spans := annotate.Annotate(ev.Content, []annotate.Provider{a.links, a.faces, a.platformEmotes.Scoped(snap.Emotes)})
	telemetry.CountSpans(len(spans))
	sess.AppendSegments(annotate.Render(ev.Content, spans, vaxis.Style{}))
	sess.EndEntry()
}

func (a *App) handleSub(ev event.Event) {
	sess := a.Session(ev.Channel)
	if sess == nil {
		return
	}
	// Every first-broadcast announcement counts toward the tally, new sub
	// or renewal alike; only re-delivered duplicates are suppressed.
	counted := ev.Announce != event.AnnounceDuplicate
	months, _ := intFromTag(ev.Tags, "msg-param-cumulative-months")
	if months > 1 {
		a.tracker.Renew(ev.Sender, ev.Channel)
	} else if err := a.tracker.AddNewSubscriber(ev.Sender, ev.Channel); err != nil {
		// A doubled new-sub announcement for an already active record.
		counted = false
	}
	sub := true
	a.directory.UpdateBadges(ev.Sender, ev.Channel, roster.Roles{Subscriber: &sub})

	text := ev.Content
	if counted {
		tally := sess.IncrementSubTally()
		text = fmt.Sprintf("%s (%d)", text, tally)
		slog.Info("subscriber announced",
			slog.String("channel", ev.Channel),
			slog.String("user", ev.Sender),
			slog.Int("tally", tally))
	}

	a.notice(sess, text)
}

func (a *App) handleBan(ev event.Event) {
	sess := a.Session(ev.Channel)
	if sess == nil {
		return
	}
	a.bans.Add(ev.Channel, ev.Sender)

	if seconds := int(ev.Amount); seconds > 0 {
		a.notice(sess, fmt.Sprintf("%s has been timed out for %d seconds.", ev.Sender, seconds))
	} else {
		a.notice(sess, fmt.Sprintf("%s has been banned.", ev.Sender))
	}
}

func (a *App) handleClear(ev event.Event) {
	sess := a.Session(ev.Channel)
	if sess == nil {
		return
	}
	if a.cfg.ClearChatPurge {
		sess.Purge()
	}
	a.notice(sess, "The chat history was cleared by a moderator.")
}

func (a *App) handleHost(ev event.Event) {
	sess := a.Session(ev.Channel)
	if sess == nil {
		sess = a.system
	}
	msg := ev.Sender + " is hosting you"
	if viewers, ok := intFromTag(ev.Tags, "msg-param-viewerCount"); ok && viewers > 0 {
		if viewers == 1 {
			msg += " for 1 viewer."
		} else {
			msg += fmt.Sprintf(" for %d viewers.", viewers)
		}
	} else {
		msg += "."
	}
	a.notice(sess, msg)
}

func (a *App) handleRoomstate(ev event.Event) {
	sess := a.Session(ev.Channel)
	if sess == nil {
		return
	}
	if v, ok := intFromTag(ev.Tags, "subs-only"); ok {
		on := v == 1
		if on != sess.SubsOnly() {
			sess.SetSubsOnly(on)
			if on {
				a.notice(sess, "This room is now in subscribers-only mode.")
			} else {
				a.notice(sess, "This room is no longer in subscribers-only mode.")
			}
		}
	}
	if v, ok := intFromTag(ev.Tags, "slow"); ok {
		if v != sess.SlowMode() {
			sess.SetSlowMode(v)
			if v > 0 {
				a.notice(sess, fmt.Sprintf("This room is now in slow mode. You may send messages every %d seconds.", v))
			} else {
				a.notice(sess, "This room is no longer in slow mode.")
			}
		}
	}
}

func (a *App) handleNotice(ev event.Event) {
	sess := a.Session(ev.Channel)
	if sess == nil {
		sess = a.system
	}
	a.notice(sess, ev.Content)
}

func (a *App) handleDisconnect() {
	telemetry.CountDisconnect()
	a.notice(a.system, "Disconnected from chat.")
	a.dispatcher.HandleDisconnect()
}

// notice renders one system-styled line.
func (a *App) notice(sess *session.Session, text string) {
	if text == "" {
		return
	}
	sess.BeginEntry()
	sess.AppendText(text, a.systemStyle)
	sess.EndEntry()
}
