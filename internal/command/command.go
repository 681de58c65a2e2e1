// Package command turns recognized user speech into client actions. A
// transcript line like "please hang up" ends the conversation without the
// user touching the keyboard.
//
// Matching is tolerant of speech-to-text drift: each command phrase is
// compared token by token against same-length word windows of the line,
// accepting tokens that share a Double Metaphone code or clear a
// Jaro-Winkler similarity bar. Candidates matched phonetically outrank
// candidates matched on string similarity alone, so "mute" never loses to
// the lexically-close "unmute".
//
// Only lines spoken by the user should be fed in. Agent responses routinely
// contain phrases like "goodbye" and must not steer the session.
package command

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Controls is the set of actions speech can trigger.
type Controls interface {
	// Mute stops transmitting microphone audio without releasing the device.
	Mute()
	// Unmute resumes transmitting microphone audio.
	Unmute()
	// Disconnect ends the conversation.
	Disconnect()
}

// Pattern maps spoken trigger phrases to one action.
type Pattern struct {
	Name    string
	Phrases []string
	Action  func(Controls)
}

// DefaultPatterns returns the built-in voice commands.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:    "disconnect",
			Phrases: []string{"hang up", "disconnect", "goodbye", "good bye", "end the call"},
			Action:  func(c Controls) { c.Disconnect() },
		},
		{
			Name:    "unmute",
			Phrases: []string{"unmute", "start listening"},
			Action:  func(c Controls) { c.Unmute() },
		},
		{
			Name:    "mute",
			Phrases: []string{"mute", "stop listening"},
			Action:  func(c Controls) { c.Mute() },
		},
	}
}

// Option is a functional option for configuring a Filter.
type Option func(*Filter)

// WithPhoneticThreshold sets the minimum whole-phrase Jaro-Winkler score a
// phonetically matched candidate must reach. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(f *Filter) { f.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum per-token Jaro-Winkler score when the
// tokens do not align phonetically. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(f *Filter) { f.fuzzyThreshold = threshold }
}

// Filter scans transcript lines for command phrases. It is read-only after
// construction and safe for concurrent use.
type Filter struct {
	patterns          []Pattern
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewFilter builds a Filter over the given patterns. Earlier patterns win
// ties.
func NewFilter(patterns []Pattern, opts ...Option) *Filter {
	f := &Filter{
		patterns:          patterns,
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Check scans line for a command phrase. On a match it runs the winning
// pattern's action against c and returns the pattern name.
func (f *Filter) Check(line string, c Controls) (string, bool) {
	tokens := tokenize(line)
	if len(tokens) == 0 {
		return "", false
	}

	type candidate struct {
		pattern  *Pattern
		score    float64
		phonetic bool
	}
	var best candidate

	for i := range f.patterns {
		p := &f.patterns[i]
		for _, phrase := range p.Phrases {
			phraseTokens := tokenize(phrase)
			if len(phraseTokens) == 0 || len(phraseTokens) > len(tokens) {
				continue
			}
			for off := 0; off+len(phraseTokens) <= len(tokens); off++ {
				gram := tokens[off : off+len(phraseTokens)]
				score, phonetic, ok := f.matchGram(gram, phraseTokens)
				if !ok {
					continue
				}
				// Phonetic candidates outrank fuzzy ones regardless of
				// score; within a tier the higher score wins.
				if best.pattern == nil ||
					(phonetic && !best.phonetic) ||
					(phonetic == best.phonetic && score > best.score) {
					best = candidate{pattern: p, score: score, phonetic: phonetic}
				}
			}
		}
	}

	if best.pattern == nil {
		return "", false
	}
	best.pattern.Action(c)
	return best.pattern.Name, true
}

// matchGram compares a word window against one phrase, position by position.
// Every position must align either phonetically or by string similarity;
// phonetic reports whether all of them aligned phonetically.
func (f *Filter) matchGram(gram, phrase []string) (score float64, phonetic bool, ok bool) {
	phonetic = true
	for i := range phrase {
		switch {
		case codesMatch(gram[i], phrase[i]):
		case matchr.JaroWinkler(gram[i], phrase[i], false) >= f.fuzzyThreshold:
			phonetic = false
		default:
			return 0, false, false
		}
	}

	score = matchr.JaroWinkler(strings.Join(gram, " "), strings.Join(phrase, " "), false)
	if phonetic {
		if score < f.phoneticThreshold {
			return 0, false, false
		}
	} else if score < f.fuzzyThreshold {
		return 0, false, false
	}
	return score, phonetic, true
}

// tokenize lowercases a line and splits it into words, shedding the
// punctuation speech-to-text likes to attach.
func tokenize(line string) []string {
	fields := strings.Fields(strings.ToLower(line))
	tokens := fields[:0]
	for _, tok := range fields {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// codesMatch reports whether two words share a Double Metaphone code.
func codesMatch(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	if ap == "" && as == "" {
		return false
	}
	for _, ca := range [2]string{ap, as} {
		if ca == "" {
			continue
		}
		if ca == bp || (bs != "" && ca == bs) {
			return true
		}
	}
	return false
}
