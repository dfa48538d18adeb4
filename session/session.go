// Package session holds the per-channel runtime state: the ordered backlog of
// rendered entries, the backlog-trimming policy and the deferred-autoscroll
// policy.  A session never touches widget state; it talks to the rendering
// surface through the narrow Surface instruction set, and the surface runs on
// its own single-threaded loop.
package session

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"git.sr.ht/~rockorager/vaxis"
	"github.com/google/uuid"

	"github.com/kouhai-chat/kouhai/annotate"
	"github.com/kouhai-chat/kouhai/roster"
)

// scrollGrace is how long a scrolled-up viewport is left alone before new
// content forces a scroll back to the bottom.
const scrollGrace = 10 * time.Second

// Surface is the rendering side of a session.  Every call carries the session
// id; instructions for an id the surface no longer knows (the session was
// destroyed) must be dropped, not applied.
type Surface interface {
	AppendStyledText(id uuid.UUID, text string, style vaxis.Style)
	InsertBadge(id uuid.UUID, badge roster.Badge, tier int)
	RequestTrim(id uuid.UUID)
	RequestScroll(id uuid.UUID)
	RemoveMessages(id uuid.UUID, users []string)
	ClearBacklog(id uuid.UUID)
	AtBottom(id uuid.UUID) bool
}

type LogMode int

// Chat log lifecycle: opened on join, appended on trim, closed on leave.
const (
	LogStart LogMode = iota
	LogAppend
	LogClose
)

// ChatLogger persists trimmed and final backlogs.  Failures are logged and
// swallowed; they never block or fail the trim or destroy operation.
type ChatLogger interface {
	Log(lines []string, channel string, mode LogMode) error
}

type Kind int

const (
	KindSingle Kind = iota
	KindCombined
)

// Session is the per-channel ordered log.  All methods must be called from
// the event-consumer goroutine.
type Session struct {
	ID      uuid.UUID
	Channel string

	kind     Kind
	children []*Session
	active   int

	surface Surface
	logger  ChatLogger

	trimThreshold int
	trimCounter   int
	trimPending   bool

	scrollWait time.Time

	entries   []string
	entry     strings.Builder
	entryOpen bool
	hasBreak  bool

	viewerCount int
	viewerPeak  int
	subTally    int

	subsOnly bool
	slowMode int

	focused   bool
	attention bool
	destroyed bool

	clock  func() time.Time
	format string
}

// New creates a single-channel session.  trimThreshold is the number of
// entries after which a trim is requested; logger may be nil.
func New(channel string, surface Surface, logger ChatLogger, trimThreshold int) *Session {
	s := &Session{
		ID:            uuid.New(),
		Channel:       channel,
		kind:          KindSingle,
		surface:       surface,
		logger:        logger,
		trimThreshold: trimThreshold,
		viewerCount:   -1,
		clock:         time.Now,
		format:        "[3:04 PM]",
	}
	if logger != nil {
		if err := logger.Log(nil, channel, LogStart); err != nil {
			slog.Warn("chat log open failed", slog.String("channel", channel), slog.Any("err", err))
		}
	}
	return s
}

// NewCombined groups several sessions under one surface tab.  The active
// sub-session accessor replaces runtime type inspection: callers ask for
// Active() once instead of checking the session's concrete kind.
func NewCombined(children ...*Session) *Session {
	return &Session{
		ID:       uuid.New(),
		kind:     KindCombined,
		children: children,
		clock:    time.Now,
	}
}

func (s *Session) Kind() Kind { return s.kind }

// Active resolves to the session content actually shown: the active child for
// combined sessions, the session itself otherwise.
func (s *Session) Active() *Session {
	if s.kind == KindCombined && len(s.children) > 0 {
		return s.children[s.active]
	}
	return s
}

// SetActive selects the active sub-session of a combined session.
func (s *Session) SetActive(i int) {
	if s.kind == KindCombined && i >= 0 && i < len(s.children) {
		s.active = i
	}
}

// BeginEntry starts a rendered entry: a newline plus a timestamp prefix.
func (s *Session) BeginEntry() {
	if s.destroyed {
		return
	}
	s.entryOpen = true
	s.hasBreak = true
	s.entry.Reset()
	stamp := "\n" + s.clock().Format(s.format) + " "
	s.entry.WriteString(stamp)
	s.surface.AppendStyledText(s.ID, stamp, vaxis.Style{})
}

// AppendText appends one styled run to the open entry.
func (s *Session) AppendText(text string, style vaxis.Style) {
	if s.destroyed {
		return
	}
	if strings.ContainsRune(text, '\n') {
		s.hasBreak = true
	}
	s.entry.WriteString(text)
	s.surface.AppendStyledText(s.ID, text, style)
}

// AppendSegments emits an annotated message body.
func (s *Session) AppendSegments(segs []annotate.Segment) {
	for _, seg := range segs {
		s.AppendText(seg.Text, seg.Style)
	}
}

// InsertBadge emits a badge icon into the open entry.
func (s *Session) InsertBadge(b roster.Badge, tier int) {
	if s.destroyed {
		return
	}
	s.surface.InsertBadge(s.ID, b, tier)
}

// EndEntry closes the entry and applies the trim and autoscroll policies.
func (s *Session) EndEntry() {
	if s.destroyed || !s.entryOpen {
		return
	}
	s.entryOpen = false
	s.entries = append(s.entries, strings.TrimPrefix(s.entry.String(), "\n"))

	if !s.focused {
		s.attention = true
	}

	if s.hasBreak {
		s.trimCounter++
		s.hasBreak = false
	}
	if s.trimCounter > s.trimThreshold && s.trimThreshold > 0 && !s.trimPending {
		// One pending trim at a time; the guard clears in ConfirmTrim.
		s.trimPending = true
		s.surface.RequestTrim(s.ID)
	}

	s.maybeScroll()
}

// maybeScroll requests a scroll when the viewport is at the bottom, or when
// it has been scrolled up for longer than the grace period while content kept
// arriving.
func (s *Session) maybeScroll() {
	if s.surface.AtBottom(s.ID) {
		s.scrollWait = time.Time{}
		s.surface.RequestScroll(s.ID)
		return
	}
	if s.scrollWait.IsZero() {
		s.scrollWait = s.clock()
		return
	}
	if s.clock().Sub(s.scrollWait) >= scrollGrace {
		// Catch the user up rather than suppress scrolling forever.
		s.scrollWait = time.Time{}
		s.surface.RequestScroll(s.ID)
	}
}

// ConfirmTrim is called by the surface once it removed the oldest removed
// entries from its backlog.  The trimmed lines are appended to the chat log
// and the trim guard clears so later overflows can request again.
func (s *Session) ConfirmTrim(removed int) {
	if removed < 0 || removed > len(s.entries) {
		removed = len(s.entries)
	}
	trimmed := s.entries[:removed]
	if len(trimmed) > 0 && s.logger != nil {
		if err := s.logger.Log(trimmed, s.Channel, LogAppend); err != nil {
			slog.Warn("chat log append failed", slog.String("channel", s.Channel), slog.Any("err", err))
		}
	}
	s.entries = append([]string(nil), s.entries[removed:]...)
	s.trimCounter = 0
	s.trimPending = false
}

// Purge discards the whole backlog: the retained entries go to the chat log
// like a trim, the surface clears its copy, and the trim state resets.
func (s *Session) Purge() {
	if s.destroyed {
		return
	}
	if len(s.entries) > 0 && s.logger != nil {
		if err := s.logger.Log(s.entries, s.Channel, LogAppend); err != nil {
			slog.Warn("chat log append failed", slog.String("channel", s.Channel), slog.Any("err", err))
		}
	}
	s.entries = nil
	s.trimCounter = 0
	s.trimPending = false
	s.surface.ClearBacklog(s.ID)
}

// RemoveUsers forwards a batch of backlog removals to the surface.
func (s *Session) RemoveUsers(users []string) {
	if s.destroyed || len(users) == 0 {
		return
	}
	s.surface.RemoveMessages(s.ID, users)
}

// SetViewerCount records the viewer count, keeping the peak.
func (s *Session) SetViewerCount(n int) {
	if n > s.viewerPeak {
		s.viewerPeak = n
	}
	s.viewerCount = n
}

// ViewerCountString formats the current and peak counts for a title bar.
func (s *Session) ViewerCountString() string {
	if s.viewerCount < 0 {
		return "Viewer count: Offline"
	}
	return fmt.Sprintf("Viewer count: %s (%s)", groupDigits(s.viewerCount), groupDigits(s.viewerPeak))
}

// IncrementSubTally counts one subscription toward this channel's tally and
// returns the new value.  Callers must not invoke it for duplicate broadcasts.
func (s *Session) IncrementSubTally() int {
	s.subTally++
	return s.subTally
}

func (s *Session) SubTally() int { return s.subTally }

func (s *Session) SetSubsOnly(v bool)  { s.subsOnly = v }
func (s *Session) SubsOnly() bool      { return s.subsOnly }
func (s *Session) SetSlowMode(sec int) { s.slowMode = sec }
func (s *Session) SlowMode() int       { return s.slowMode }

// SetFocused marks the session as the one currently shown; focusing clears
// the attention flag.
func (s *Session) SetFocused(v bool) {
	s.focused = v
	if v {
		s.attention = false
	}
}

// Attention reports whether content arrived while the session was not
// focused.
func (s *Session) Attention() bool { return s.attention }

// Entries returns the retained backlog, for tests and surfaces that keep no
// buffer of their own.
func (s *Session) Entries() []string {
	return append([]string(nil), s.entries...)
}

// Destroy flushes the remaining backlog to the chat log synchronously and
// marks the session dead.  Instructions already queued for a destroyed
// session are dropped by the surface on id mismatch.  Destroy is idempotent.
func (s *Session) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	for _, c := range s.children {
		c.Destroy()
	}
	if s.logger != nil && s.kind == KindSingle {
		if err := s.logger.Log(s.entries, s.Channel, LogClose); err != nil {
			slog.Warn("chat log close failed", slog.String("channel", s.Channel), slog.Any("err", err))
		}
	}
	s.entries = nil
}

func (s *Session) Destroyed() bool { return s.destroyed }

// groupDigits inserts thousands separators: 1234567 -> "1,234,567".
func groupDigits(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) < 4 {
		return s
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
