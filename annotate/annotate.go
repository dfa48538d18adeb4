// Package annotate finds styled spans (links, emotes, keywords) inside a
// message and renders the message as an ordered list of segments.  It holds no
// shared state and does no I/O.
package annotate

import (
	"sort"

	"git.sr.ht/~rockorager/vaxis"
	"github.com/rivo/uniseg"
)

type SpanKind int

const (
	SpanLink SpanKind = iota
	SpanEmote
	SpanKeyword
)

// Span is a half-open byte interval [Start, End) of the message text with an
// attached style.  Link carries the destination for link spans, Emote the
// emote identifier for emote spans.
type Span struct {
	Start int
	End   int
	Kind  SpanKind
	Style vaxis.Style
	Link  string
	Emote string
}

func (s Span) overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Provider proposes candidate spans for a message.  Candidates may overlap
// each other and spans found by other providers; Annotate resolves conflicts.
type Provider interface {
	Find(text string) []Span
}

// Annotate consults providers in priority order and returns the accepted
// spans, ordered by start position and pairwise disjoint.  A candidate is
// discarded if it overlaps any span already accepted, so the span of the
// higher-priority provider always wins regardless of discovery order.
func Annotate(text string, providers []Provider) []Span {
	var accepted []Span
	for _, p := range providers {
		if p == nil {
			continue
		}
		for _, c := range p.Find(text) {
			if c.Start < 0 || c.End > len(text) || c.Start >= c.End {
				continue
			}
			ok := true
			for _, a := range accepted {
				if c.overlaps(a) {
					ok = false
					break
				}
			}
			if ok {
				accepted = append(accepted, c)
			}
		}
	}
	sort.Slice(accepted, func(i, j int) bool {
		return accepted[i].Start < accepted[j].Start
	})
	return accepted
}

// Segment is one run of the rendered message: either plain text (Span == nil)
// or the region of exactly one span.
type Segment struct {
	Text  string
	Style vaxis.Style
	Span  *Span
	Width int // display cells
}

// Render walks the span list left to right and cuts the message into
// segments.  Every byte of text ends up in exactly one segment: plain runs
// between spans carry the plain style, span runs carry the span's style.
// The spans must be ordered and disjoint, as returned by Annotate.
func Render(text string, spans []Span, plain vaxis.Style) []Segment {
	var segs []Segment
	pos := 0
	for i := range spans {
		sp := &spans[i]
		if sp.Start > pos {
			segs = append(segs, plainSegment(text[pos:sp.Start], plain))
		}
		segs = append(segs, Segment{
			Text:  text[sp.Start:sp.End],
			Style: sp.Style,
			Span:  sp,
			Width: uniseg.StringWidth(text[sp.Start:sp.End]),
		})
		pos = sp.End
	}
	if pos < len(text) {
		segs = append(segs, plainSegment(text[pos:], plain))
	}
	return segs
}

func plainSegment(text string, style vaxis.Style) Segment {
	return Segment{
		Text:  text,
		Style: style,
		Width: uniseg.StringWidth(text),
	}
}
