package annotate

import (
	"strings"
	"testing"

	"git.sr.ht/~rockorager/vaxis"
)

var (
	linkStyle  = vaxis.Style{UnderlineStyle: vaxis.UnderlineSingle}
	emoteStyle = vaxis.Style{Attribute: vaxis.AttrBold}
	kwStyle    = vaxis.Style{Attribute: vaxis.AttrReverse}
)

type fixedProvider struct {
	spans []Span
}

func (p *fixedProvider) Find(string) []Span { return p.spans }

func TestAnnotateLinkAndEmote(t *testing.T) {
	text := "check out http://x.tv and :smile:"
	providers := []Provider{
		&LinkProvider{Style: linkStyle},
		NewEmoteProvider(map[string]string{":smile:": "smile"}, emoteStyle),
	}

	spans := Annotate(text, providers)
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d: %+v", len(spans), spans)
	}

	segs := Render(text, spans, vaxis.Style{})
	want := []struct {
		text string
		kind SpanKind
		span bool
	}{
		{"check out ", 0, false},
		{"http://x.tv", SpanLink, true},
		{" and ", 0, false},
		{":smile:", SpanEmote, true},
	}
	if len(segs) != len(want) {
		t.Fatalf("expected %d segments, got %d: %+v", len(want), len(segs), segs)
	}
	for i, w := range want {
		if segs[i].Text != w.text {
			t.Errorf("segment #%d: expected text %q, got %q", i, w.text, segs[i].Text)
		}
		if w.span != (segs[i].Span != nil) {
			t.Errorf("segment #%d: expected span=%v", i, w.span)
		}
		if w.span && segs[i].Span.Kind != w.kind {
			t.Errorf("segment #%d: expected kind %v, got %v", i, w.kind, segs[i].Span.Kind)
		}
	}
	if segs[1].Span.Link != "http://x.tv" {
		t.Errorf("expected link target http://x.tv, got %q", segs[1].Span.Link)
	}
	if segs[3].Span.Emote != "smile" {
		t.Errorf("expected emote id smile, got %q", segs[3].Span.Emote)
	}
}

func TestAnnotateRoundTrip(t *testing.T) {
	texts := []string{
		"",
		"no spans at all",
		"http://a.example http://b.example",
		":a: :b: glued:c:not matched",
		"keyword at the very end keyword",
		"unicode emotes éé :smile: café http://x.tv/é",
	}
	providers := []Provider{
		&LinkProvider{Style: linkStyle},
		NewEmoteProvider(map[string]string{":a:": "a", ":b:": "b", ":smile:": "smile"}, emoteStyle),
		&KeywordProvider{Keywords: []string{"keyword"}, Style: kwStyle},
	}

	for _, text := range texts {
		spans := Annotate(text, providers)
		for i := 1; i < len(spans); i++ {
			if spans[i-1].End > spans[i].Start {
				t.Errorf("%q: spans overlap or unordered: %+v", text, spans)
			}
		}
		var sb strings.Builder
		for _, seg := range Render(text, spans, vaxis.Style{}) {
			sb.WriteString(seg.Text)
		}
		if sb.String() != text {
			t.Errorf("round trip: expected %q, got %q", text, sb.String())
		}
	}
}

func TestAnnotatePriorityWins(t *testing.T) {
	text := "0123456789"
	low := &fixedProvider{spans: []Span{{Start: 2, End: 8, Kind: SpanEmote}}}
	high := &fixedProvider{spans: []Span{{Start: 4, End: 6, Kind: SpanLink}}}

	// The high-priority provider is consulted first; the overlapping
	// low-priority candidate must be discarded whatever the discovery order.
	spans := Annotate(text, []Provider{high, low})
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d: %+v", len(spans), spans)
	}
	if spans[0].Kind != SpanLink {
		t.Errorf("expected the first provider's span to win, got %+v", spans[0])
	}
}

func TestLinkProviderDotlessHost(t *testing.T) {
	p := &LinkProvider{}
	text := "served at http://localhost:8080 for now"
	spans := p.Find(text)
	if len(spans) != 1 {
		t.Fatalf("expected 1 link span, got %+v", spans)
	}
	if got := text[spans[0].Start:spans[0].End]; got != "http://localhost:8080" {
		t.Errorf("expected the dotless URL matched, got %q", got)
	}
}

func TestAnnotateEndpointOverlap(t *testing.T) {
	text := "0123456789"
	first := &fixedProvider{spans: []Span{{Start: 0, End: 5}}}
	touching := &fixedProvider{spans: []Span{{Start: 5, End: 10}}}
	overlapping := &fixedProvider{spans: []Span{{Start: 4, End: 10}}}

	if spans := Annotate(text, []Provider{first, touching}); len(spans) != 2 {
		t.Errorf("adjacent spans should both be accepted, got %+v", spans)
	}
	if spans := Annotate(text, []Provider{first, overlapping}); len(spans) != 1 {
		t.Errorf("overlapping span should be discarded, got %+v", spans)
	}
}

func TestKeywordFallbackOnly(t *testing.T) {
	// The keyword matches inside the URL and must not cut the link span.
	text := "see http://keyword.example now keyword"
	providers := []Provider{
		&LinkProvider{Style: linkStyle},
		&KeywordProvider{Keywords: []string{"keyword"}, Style: kwStyle},
	}
	spans := Annotate(text, providers)
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %+v", spans)
	}
	if spans[0].Kind != SpanLink {
		t.Errorf("expected leading link span, got %+v", spans[0])
	}
	if spans[1].Kind != SpanKeyword || text[spans[1].Start:spans[1].End] != "keyword" {
		t.Errorf("expected trailing keyword span, got %+v", spans[1])
	}
}

func TestEmoteProviderScoped(t *testing.T) {
	vocab := map[string]string{":a:": "1", ":b:": "2"}
	p := NewEmoteProvider(vocab, emoteStyle)

	scoped := p.Scoped(map[string]struct{}{"2": {}})
	if scoped == nil {
		t.Fatal("expected a scoped provider")
	}
	if spans := scoped.Find(":a: :b:"); len(spans) != 1 || spans[0].Emote != "2" {
		t.Errorf("expected only the owned emote to match, got %+v", spans)
	}

	if p.Scoped(nil) != nil {
		t.Error("empty ownership should yield no provider")
	}
	if NewEmoteProvider(nil, emoteStyle) != nil {
		t.Error("empty vocabulary should yield no provider")
	}
}

func TestKeywordMatch(t *testing.T) {
	p := &KeywordProvider{Keywords: []string{"Gopher"}}
	if !p.Match("a wild gopher appears") {
		t.Error("expected case-insensitive match")
	}
	if p.Match("nothing here") {
		t.Error("unexpected match")
	}
}
