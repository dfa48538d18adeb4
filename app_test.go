package kouhai

import (
	"strings"
	"sync"
	"testing"

	"git.sr.ht/~rockorager/vaxis"
	"github.com/google/uuid"

	"github.com/kouhai-chat/kouhai/event"
	"github.com/kouhai-chat/kouhai/roster"
)

type recordedText struct {
	id    uuid.UUID
	text  string
	style vaxis.Style
}

type fakeSurface struct {
	mu      sync.Mutex
	texts   []recordedText
	badges  []roster.Badge
	removed [][]string
	cleared int
}

func (s *fakeSurface) AppendStyledText(id uuid.UUID, text string, style vaxis.Style) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, recordedText{id, text, style})
}

func (s *fakeSurface) InsertBadge(id uuid.UUID, badge roster.Badge, tier int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badges = append(s.badges, badge)
}

func (s *fakeSurface) RequestTrim(id uuid.UUID)   {}
func (s *fakeSurface) RequestScroll(id uuid.UUID) {}
func (s *fakeSurface) RemoveMessages(id uuid.UUID, users []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, users)
}
func (s *fakeSurface) ClearBacklog(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
}
func (s *fakeSurface) AtBottom(id uuid.UUID) bool { return true }

func (s *fakeSurface) joined() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, t := range s.texts {
		b.WriteString(t.text)
	}
	return b.String()
}

type nopConn struct{}

func (nopConn) Join(string) error { return nil }
func (nopConn) Part(string) error { return nil }
func (nopConn) Disconnect() error { return nil }
func (nopConn) Connect() error    { return nil }

func testConfig() Config {
	cfg := Defaults()
	cfg.Nick = "tester"
	return cfg
}

// drain enqueues the events, closes intake and runs the loop to completion.
func drain(a *App, events ...event.Event) {
	for _, ev := range events {
		a.queue.Enqueue(ev)
	}
	a.Close()
	a.Run()
}

func TestChatRendered(t *testing.T) {
	surface := &fakeSurface{}
	a := NewApp(testConfig(), event.NewQueue(), nopConn{}, surface, nil)
	if err := a.Join("#chan"); err != nil {
		t.Fatal(err)
	}

	drain(a, event.Event{
		Kind:    event.Chat,
		Channel: "#chan",
		Sender:  "alice",
		Content: "hello there",
		Tags: map[string]string{
			"display-name": "Alice",
			"badges":       "moderator/1",
		},
	})

	out := surface.joined()
	if !strings.Contains(out, "Alice: ") {
		t.Errorf("missing sender prefix in %q", out)
	}
	if !strings.Contains(out, "hello there") {
		t.Errorf("missing message body in %q", out)
	}
	if len(surface.badges) != 1 || surface.badges[0] != roster.BadgeModerator {
		t.Errorf("expected a moderator badge, got %v", surface.badges)
	}
}

func TestChatForUnjoinedChannelDropped(t *testing.T) {
	surface := &fakeSurface{}
	a := NewApp(testConfig(), event.NewQueue(), nopConn{}, surface, nil)

	drain(a, event.Event{Kind: event.Chat, Channel: "#nowhere", Sender: "bob", Content: "hi"})

	if out := surface.joined(); strings.Contains(out, "hi") {
		t.Errorf("message for unjoined channel rendered: %q", out)
	}
}

func TestHighlightOverridesStyle(t *testing.T) {
	cfg := testConfig()
	cfg.Highlights = []string{"gopher"}
	surface := &fakeSurface{}
	a := NewApp(cfg, event.NewQueue(), nopConn{}, surface, nil)
	a.Join("#chan")

	drain(a, event.Event{Kind: event.Chat, Channel: "#chan", Sender: "bob", Content: "hey gopher friend"})

	want := vaxis.Style{Foreground: cfg.Colors.Highlight}
	found := false
	for _, rec := range surface.texts {
		if rec.text == "hey gopher friend" && rec.style == want {
			found = true
		}
	}
	if !found {
		t.Error("highlighted message not rendered with the highlight style")
	}
}

func TestOwnMessageNotHighlighted(t *testing.T) {
	cfg := testConfig()
	cfg.Highlights = []string{"tester"}
	surface := &fakeSurface{}
	a := NewApp(cfg, event.NewQueue(), nopConn{}, surface, nil)
	a.Join("#chan")

	drain(a, event.Event{Kind: event.Chat, Channel: "#chan", Sender: "Tester", Content: "tester checking in"})

	want := vaxis.Style{Foreground: cfg.Colors.Highlight}
	for _, rec := range surface.texts {
		if rec.style == want && strings.Contains(rec.text, "checking in") {
			t.Error("own message was highlighted")
		}
	}
}

func TestSubTallyIgnoresDuplicates(t *testing.T) {
	surface := &fakeSurface{}
	a := NewApp(testConfig(), event.NewQueue(), nopConn{}, surface, nil)
	a.Join("#chan")

	sub := event.Event{
		Kind:     event.SubNotify,
		Channel:  "#chan",
		Sender:   "carol",
		Content:  "carol just subscribed!",
		Announce: event.AnnounceFirst,
	}
	dup := sub
	dup.Announce = event.AnnounceDuplicate

	a.queue.Enqueue(sub)
	a.queue.Enqueue(dup)
	a.queue.Enqueue(sub) // re-announced while already active
	sess := a.Session("#chan")
	a.Close()
	a.Run()

	if got := sess.SubTally(); got != 1 {
		t.Errorf("expected tally 1, got %d", got)
	}
}

func TestSubTallyCountsRenewals(t *testing.T) {
	surface := &fakeSurface{}
	a := NewApp(testConfig(), event.NewQueue(), nopConn{}, surface, nil)
	a.Join("#chan")

	renew := event.Event{
		Kind:     event.SubNotify,
		Channel:  "#chan",
		Sender:   "dave",
		Content:  "dave subscribed for 6 months in a row!",
		Announce: event.AnnounceFirst,
		Tags:     map[string]string{"msg-param-cumulative-months": "6"},
	}
	dup := renew
	dup.Announce = event.AnnounceDuplicate

	a.queue.Enqueue(renew)
	a.queue.Enqueue(dup)
	sess := a.Session("#chan")
	a.Close()
	a.Run()

	if got := sess.SubTally(); got != 1 {
		t.Errorf("renewal with first-broadcast marker must count exactly once, got %d", got)
	}
}

func TestSubTallyRenderedInAnnouncement(t *testing.T) {
	surface := &fakeSurface{}
	a := NewApp(testConfig(), event.NewQueue(), nopConn{}, surface, nil)
	a.Join("#chan")

	drain(a, event.Event{
		Kind:     event.SubNotify,
		Channel:  "#chan",
		Sender:   "carol",
		Content:  "carol just subscribed!",
		Announce: event.AnnounceFirst,
	})

	if out := surface.joined(); !strings.Contains(out, "carol just subscribed! (1)") {
		t.Errorf("tally missing from the announcement line: %q", out)
	}
}

func TestBanRemovesUserMessages(t *testing.T) {
	surface := &fakeSurface{}
	a := NewApp(testConfig(), event.NewQueue(), nopConn{}, surface, nil)
	a.Join("#chan")

	drain(a, event.Event{Kind: event.BanNotify, Channel: "#chan", Sender: "Spammer", Amount: 600})

	if len(surface.removed) != 1 || len(surface.removed[0]) != 1 || surface.removed[0][0] != "spammer" {
		t.Fatalf("expected one removal batch for spammer, got %v", surface.removed)
	}
	if out := surface.joined(); !strings.Contains(out, "timed out for 600 seconds") {
		t.Errorf("missing timeout notice in %q", out)
	}
}

func TestBanWaveDrainedInOneBatch(t *testing.T) {
	surface := &fakeSurface{}
	a := NewApp(testConfig(), event.NewQueue(), nopConn{}, surface, nil)
	a.Join("#chan")

	drain(a,
		event.Event{Kind: event.BanNotify, Channel: "#chan", Sender: "bot1"},
		event.Event{Kind: event.BanNotify, Channel: "#chan", Sender: "bot2"},
		event.Event{Kind: event.BanNotify, Channel: "#chan", Sender: "bot1"},
	)

	if len(surface.removed) != 1 {
		t.Fatalf("expected one removal batch for the whole wave, got %v", surface.removed)
	}
	if got := surface.removed[0]; len(got) != 2 || got[0] != "bot1" || got[1] != "bot2" {
		t.Errorf("expected deduplicated batch [bot1 bot2], got %v", got)
	}
}

func TestClearChatPurge(t *testing.T) {
	cfg := testConfig()
	cfg.ClearChatPurge = true
	surface := &fakeSurface{}
	a := NewApp(cfg, event.NewQueue(), nopConn{}, surface, nil)
	a.Join("#chan")

	drain(a,
		event.Event{Kind: event.Chat, Channel: "#chan", Sender: "alice", Content: "old line"},
		event.Event{Kind: event.ClearText, Channel: "#chan"},
	)

	if surface.cleared != 1 {
		t.Fatalf("expected one backlog clear, got %d", surface.cleared)
	}
	if out := surface.joined(); !strings.Contains(out, "cleared by a moderator") {
		t.Errorf("missing clear notice in %q", out)
	}
}

func TestClearChatWithoutPurge(t *testing.T) {
	surface := &fakeSurface{}
	a := NewApp(testConfig(), event.NewQueue(), nopConn{}, surface, nil)
	a.Join("#chan")

	drain(a, event.Event{Kind: event.ClearText, Channel: "#chan"})

	if surface.cleared != 0 {
		t.Errorf("purge is off by default, got %d clears", surface.cleared)
	}
	if out := surface.joined(); !strings.Contains(out, "cleared by a moderator") {
		t.Errorf("missing clear notice in %q", out)
	}
}

func TestRoomstateSkipsMalformedFields(t *testing.T) {
	surface := &fakeSurface{}
	a := NewApp(testConfig(), event.NewQueue(), nopConn{}, surface, nil)
	a.Join("#chan")

	sess := a.Session("#chan")
	drain(a, event.Event{
		Kind:    event.RoomstateNotify,
		Channel: "#chan",
		Tags:    map[string]string{"subs-only": "1", "slow": "not-a-number"},
	})

	if !sess.SubsOnly() {
		t.Error("subs-only flag not applied")
	}
	if sess.SlowMode() != 0 {
		t.Error("malformed slow value should have been skipped")
	}
	if out := surface.joined(); strings.Contains(out, "slow mode") {
		t.Errorf("slow mode notice rendered from malformed value: %q", out)
	}
}

func TestHostNoticePluralization(t *testing.T) {
	for _, tc := range []struct {
		viewers string
		want    string
	}{
		{"12", "is hosting you for 12 viewers."},
		{"1", "is hosting you for 1 viewer."},
		{"", "is hosting you."},
	} {
		surface := &fakeSurface{}
		a := NewApp(testConfig(), event.NewQueue(), nopConn{}, surface, nil)
		a.Join("#chan")

		tags := map[string]string{}
		if tc.viewers != "" {
			tags["msg-param-viewerCount"] = tc.viewers
		}
		drain(a, event.Event{Kind: event.HostNotify, Channel: "#chan", Sender: "friend", Tags: tags})

		if out := surface.joined(); !strings.Contains(out, tc.want) {
			t.Errorf("viewers=%q: missing %q in %q", tc.viewers, tc.want, out)
		}
	}
}

func TestUnknownEventKindIgnored(t *testing.T) {
	surface := &fakeSurface{}
	a := NewApp(testConfig(), event.NewQueue(), nopConn{}, surface, nil)
	a.Join("#chan")

	drain(a,
		event.Event{Kind: event.Kind(999), Channel: "#chan"},
		event.Event{Kind: event.Chat, Channel: "#chan", Sender: "alice", Content: "still alive"},
	)

	if out := surface.joined(); !strings.Contains(out, "still alive") {
		t.Errorf("loop did not survive the malformed event: %q", out)
	}
}

func TestWhisperRoutedToSystemSession(t *testing.T) {
	surface := &fakeSurface{}
	a := NewApp(testConfig(), event.NewQueue(), nopConn{}, surface, nil)
	a.Join("#chan")

	systemID := a.Session(systemChannel).ID
	drain(a, event.Event{Kind: event.Whisper, Sender: "alice", Target: "tester", Content: "psst"})

	found := false
	for _, rec := range surface.texts {
		if rec.id == systemID && strings.Contains(rec.text, "psst") {
			found = true
		}
	}
	if !found {
		t.Error("whisper not rendered into the system session")
	}
}
