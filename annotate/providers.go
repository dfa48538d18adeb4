package annotate

import (
	"regexp"
	"strings"

	"git.sr.ht/~rockorager/vaxis"
	"mvdan.cc/xurls/v2"
)

var urlRegex *regexp.Regexp

func init() {
	urlRegex, _ = xurls.StrictMatchingScheme(xurls.AnyScheme)
	urlRegex.Longest()
}

// LinkProvider finds URLs in the message text.
type LinkProvider struct {
	Style vaxis.Style
}

func (p *LinkProvider) Find(text string) []Span {
	if !strings.Contains(text, ".") && !strings.Contains(text, "://") {
		// fast path: no URL (dotless hosts still carry a scheme)
		return nil
	}
	var spans []Span
	for _, m := range urlRegex.FindAllStringIndex(text, -1) {
		spans = append(spans, Span{
			Start: m[0],
			End:   m[1],
			Kind:  SpanLink,
			Style: p.Style,
			Link:  text[m[0]:m[1]],
		})
	}
	return spans
}

// EmoteProvider matches whole space-delimited tokens against an emote
// vocabulary (code to emote identifier).  One provider instance covers one
// vocabulary: built-in faces, the author's platform emotes, or a channel's
// third-party emotes.
type EmoteProvider struct {
	Vocab map[string]string
	Style vaxis.Style
}

// NewEmoteProvider returns nil when the vocabulary is empty so callers can
// pass the result straight to Annotate.
func NewEmoteProvider(vocab map[string]string, style vaxis.Style) *EmoteProvider {
	if len(vocab) == 0 {
		return nil
	}
	return &EmoteProvider{Vocab: vocab, Style: style}
}

func (p *EmoteProvider) Find(text string) []Span {
	if p == nil {
		return nil
	}
	var spans []Span
	off := 0
	for off < len(text) {
		next := strings.IndexByte(text[off:], ' ')
		var token string
		if next < 0 {
			token = text[off:]
		} else {
			token = text[off : off+next]
		}
		if id, ok := p.Vocab[token]; ok && token != "" {
			spans = append(spans, Span{
				Start: off,
				End:   off + len(token),
				Kind:  SpanEmote,
				Style: p.Style,
				Emote: id,
			})
		}
		if next < 0 {
			break
		}
		off += next + 1
	}
	return spans
}

// Scoped returns a provider restricted to the emote identifiers in owned,
// used for platform emotes that only apply to the message's author.
func (p *EmoteProvider) Scoped(owned map[string]struct{}) *EmoteProvider {
	if p == nil || len(owned) == 0 {
		return nil
	}
	vocab := make(map[string]string)
	for code, id := range p.Vocab {
		if _, ok := owned[id]; ok {
			vocab[code] = id
		}
	}
	return NewEmoteProvider(vocab, p.Style)
}

// KeywordProvider highlights configured keywords, case-insensitively.  It is
// consulted last so keywords never cut into link or emote spans.
type KeywordProvider struct {
	Keywords []string
	Style    vaxis.Style
}

func (p *KeywordProvider) Find(text string) []Span {
	lower := strings.ToLower(text)
	var spans []Span
	for _, kw := range p.Keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		for off := 0; ; {
			i := strings.Index(lower[off:], kw)
			if i < 0 {
				break
			}
			start := off + i
			spans = append(spans, Span{
				Start: start,
				End:   start + len(kw),
				Kind:  SpanKeyword,
				Style: p.Style,
			})
			off = start + len(kw)
		}
	}
	return spans
}

// Match reports whether any configured keyword appears in the text.  A match
// switches the plain-text style of the whole message to the highlight style,
// overriding the sender's color.
func (p *KeywordProvider) Match(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range p.Keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
