// Package normalize cleans informal social-media microtext into canonical
// tokens for the downstream extractors and classifiers.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/leadscout/internal/model"
)

// defaultAbbrevs expands the informal abbreviations common in Spanish and
// English travel chatter. Extensible via config.
var defaultAbbrevs = map[string]string{
	// Spanish microtext.
	"q":    "que",
	"xq":   "porque",
	"pq":   "porque",
	"x":    "por",
	"tb":   "tambien",
	"tmb":  "tambien",
	"d":    "de",
	"k":    "que",
	"bn":   "bien",
	"xfa":  "por favor",
	"porfa": "por favor",
	"finde": "fin de semana",
	"info": "informacion",

	// English microtext.
	"u":   "you",
	"ur":  "your",
	"pls": "please",
	"plz": "please",
	"thx": "thanks",
	"rn":  "right now",
	"asap": "as soon as possible",
	"w/":  "with",
	"abt": "about",
}

// emojiTokens maps the emoji that carry travel sentiment to named tokens.
// Emoji are preserved as a distinct token class, not discarded; the
// pragmatic stage reads them as aspiration or urgency markers.
var emojiTokens = map[rune]string{
	'😍': ":heart_eyes:",
	'🤩': ":star_struck:",
	'❤': ":heart:",
	'😂': ":joy:",
	'✈': ":airplane:",
	'🏔': ":mountain:",
	'⛰': ":mountain:",
	'🌄': ":sunrise:",
	'📅': ":calendar:",
	'💸': ":money:",
	'💰': ":money:",
	'🙏': ":pray:",
	'😭': ":sob:",
	'🔥': ":fire:",
}

// Normalizer converts raw text to NormalizedText. It is a pure function
// object: no I/O, deterministic for a given configuration.
type Normalizer struct {
	abbrevs     map[string]string
	defaultLang string
	folder      cases.Caser
}

// New creates a Normalizer. extraAbbrevs extends (and can override) the
// built-in abbreviation dictionary. defaultLang is the locale assumed when
// detection is ambiguous.
func New(defaultLang string, extraAbbrevs map[string]string) *Normalizer {
	abbrevs := make(map[string]string, len(defaultAbbrevs)+len(extraAbbrevs))
	for k, v := range defaultAbbrevs {
		abbrevs[k] = v
	}
	for k, v := range extraAbbrevs {
		abbrevs[strings.ToLower(k)] = v
	}
	if defaultLang == "" {
		defaultLang = "es"
	}
	return &Normalizer{
		abbrevs:     abbrevs,
		defaultLang: defaultLang,
		folder:      cases.Fold(),
	}
}

// Normalize cleans raw text into canonical tokens. Deterministic, never
// errors; empty input yields an empty token list.
func (n *Normalizer) Normalize(raw string) model.NormalizedText {
	// Unicode-normalize, then case-fold.
	folded := n.folder.String(norm.NFC.String(raw))

	tokens := n.tokenize(folded)

	return model.NormalizedText{
		Tokens:        tokens,
		CanonicalText: strings.Join(tokens, " "),
		Language:      n.detectLanguage(tokens),
	}
}

// tokenize splits on whitespace, maps emoji to their token class, folds
// punctuation, and expands abbreviations.
func (n *Normalizer) tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		word := current.String()
		current.Reset()
		if expanded, ok := n.abbrevs[word]; ok {
			tokens = append(tokens, strings.Fields(expanded)...)
			return
		}
		tokens = append(tokens, word)
	}

	for _, r := range text {
		switch {
		case emojiTokens[r] != "":
			flush()
			tokens = append(tokens, emojiTokens[r])
		case isEmojiRune(r):
			flush()
			tokens = append(tokens, ":emoji:")
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		case r == '+' || r == '@' || r == '.' || r == '/' || r == ':' || r == '-' || r == '_':
			// Keep contact-bearing punctuation inside tokens so phone
			// numbers, emails, and wa.me links survive intact.
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	// Trim the connector punctuation off token edges ("junio..." -> "junio")
	// without touching the leading + of a phone or the @ of a handle, then
	// drop tokens reduced to nothing.
	out := tokens[:0]
	for _, t := range tokens {
		if strings.HasPrefix(t, ":") && strings.HasSuffix(t, ":") && len(t) > 1 {
			// Emoji tokens pass through untouched.
			out = append(out, t)
			continue
		}
		t = strings.TrimRight(t, "./:-_")
		t = strings.TrimLeft(t, "./:-_")
		if t == "" || strings.Trim(t, "+@") == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// isEmojiRune covers the main emoji blocks outside the named map.
func isEmojiRune(r rune) bool {
	return (r >= 0x1F300 && r <= 0x1FAFF) ||
		(r >= 0x2600 && r <= 0x27BF)
}

// Stopword lists for the two languages the sources produce.
var (
	spanishStopwords = []string{"el", "la", "de", "que", "en", "para", "con", "por", "los", "una"}
	englishStopwords = []string{"the", "is", "to", "in", "for", "with", "on", "at", "of", "and"}
)

// detectLanguage counts stopword hits per language; ties and empty input
// fall back to the configured default locale.
func (n *Normalizer) detectLanguage(tokens []string) string {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}

	var es, en int
	for _, w := range spanishStopwords {
		if set[w] {
			es++
		}
	}
	for _, w := range englishStopwords {
		if set[w] {
			en++
		}
	}

	switch {
	case es > en:
		return canonicalLang("es")
	case en > es:
		return canonicalLang("en")
	default:
		return canonicalLang(n.defaultLang)
	}
}

// canonicalLang normalizes a language code through x/text parsing, so
// configured defaults like "ES" or "es-PE" reduce to a stable base tag.
func canonicalLang(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return "es"
	}
	base, _ := tag.Base()
	return base.String()
}
