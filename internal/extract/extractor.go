// Package extract pulls contact handles out of normalized text: phone
// numbers, emails, and platform usernames.
package extract

import (
	"regexp"
	"strings"

	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/model"
)

// Extraction rules run in priority order; the first rule to claim a span of
// digits wins, so a Peru mobile is never re-captured by the generic
// international pattern.
var (
	// Peru mobile: nine digits starting with 9, optional +51 country code,
	// separators tolerated. These are WhatsApp-eligible.
	reMobilePE = regexp.MustCompile(`(?:\+?51[\s.-]?)?\b9\d{2}[\s.-]?\d{3}[\s.-]?\d{3}\b`)

	// WhatsApp click-to-chat links embed the full number in the path.
	reWhatsAppLink = regexp.MustCompile(`(?:wa\.me/|api\.whatsapp\.com/send\?phone=)(\+?\d{9,15})`)

	// Generic international number with explicit country code.
	reIntlPhone = regexp.MustCompile(`\+\d{1,3}[\s.-]?\d{2,4}[\s.-]?\d{3,4}[\s.-]?\d{3,4}\b`)

	reEmail = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)

	// Platform usernames. Requires a letter so @9... digit runs (phone
	// fragments) are not misread as handles.
	reUsername = regexp.MustCompile(`@([a-zA-Z][a-zA-Z0-9._]{2,29})`)

	reNonDigit = regexp.MustCompile(`[^\d+]`)
)

// Extractor pulls contacts from normalized text. Stateless and pure; it
// never errors, a text without contacts yields an empty set.
type Extractor struct {
	region     string
	disposable map[string]bool
}

// New creates an Extractor for the configured default region and disposable
// email domain list.
func New(cfg config.ExtractConfig) *Extractor {
	disposable := make(map[string]bool, len(cfg.DisposableDomains))
	for _, d := range cfg.DisposableDomains {
		disposable[strings.ToLower(d)] = true
	}
	region := cfg.Region
	if region == "" {
		region = "PE"
	}
	return &Extractor{region: region, disposable: disposable}
}

// Extract finds every contact handle in the text. Deterministic for a given
// input; duplicates collapse to one entry.
func (e *Extractor) Extract(text model.NormalizedText) model.ContactSet {
	var set model.ContactSet
	seen := make(map[string]bool)

	addPhone := func(p model.Phone) {
		if p.Number == "" || seen["p:"+p.Number] {
			return
		}
		seen["p:"+p.Number] = true
		set.Phones = append(set.Phones, p)
	}

	// WhatsApp links first: the embedded number is authoritative and
	// contactable by construction.
	for _, m := range reWhatsAppLink.FindAllStringSubmatch(text.CanonicalText, -1) {
		if p, ok := e.canonicalPhone(m[1]); ok {
			p.WhatsAppEligible = true
			addPhone(p)
		}
	}

	for _, m := range reMobilePE.FindAllString(text.CanonicalText, -1) {
		if p, ok := e.canonicalPhone(m); ok {
			addPhone(p)
		}
	}

	for _, m := range reIntlPhone.FindAllString(text.CanonicalText, -1) {
		if p, ok := e.canonicalPhone(m); ok {
			addPhone(p)
		}
	}

	for _, m := range reEmail.FindAllString(text.CanonicalText, -1) {
		addr := strings.ToLower(m)
		if seen["e:"+addr] {
			continue
		}
		seen["e:"+addr] = true
		set.Emails = append(set.Emails, model.Email{
			Address:    addr,
			Disposable: e.isDisposable(addr),
		})
	}

	for _, loc := range reUsername.FindAllStringSubmatchIndex(text.CanonicalText, -1) {
		// Email domains also match the @handle pattern; a preceding
		// local-part character means this @ belongs to an address.
		if loc[0] > 0 && isLocalPartByte(text.CanonicalText[loc[0]-1]) {
			continue
		}
		handle := text.CanonicalText[loc[2]:loc[3]]
		key := "u:" + strings.ToLower(handle)
		if seen[key] {
			continue
		}
		seen[key] = true
		set.Usernames = append(set.Usernames, handle)
	}

	return set
}

// canonicalPhone reduces a raw match to E.164 form and validates it against
// known region shapes. Invalid digit runs are dropped, not errored.
func (e *Extractor) canonicalPhone(raw string) (model.Phone, bool) {
	digits := reNonDigit.ReplaceAllString(raw, "")
	digits = strings.TrimPrefix(digits, "+")

	switch {
	case len(digits) == 9 && digits[0] == '9':
		// Bare Peru mobile; assume the default region's country code.
		if e.region == "PE" {
			return model.Phone{
				Number:           "+51" + digits,
				Region:           "PE",
				WhatsAppEligible: true,
			}, true
		}
		return model.Phone{Number: "+" + digits, Region: e.region}, true

	case len(digits) == 11 && strings.HasPrefix(digits, "519"):
		return model.Phone{
			Number:           "+" + digits,
			Region:           "PE",
			WhatsAppEligible: true,
		}, true

	case len(digits) >= 10 && len(digits) <= 15 && strings.HasPrefix(raw, "+"):
		return model.Phone{Number: "+" + digits, Region: regionForCode(digits)}, true
	}

	return model.Phone{}, false
}

// regionForCode maps the country codes the sources actually produce.
func regionForCode(digits string) string {
	switch {
	case strings.HasPrefix(digits, "51"):
		return "PE"
	case strings.HasPrefix(digits, "1"):
		return "US"
	case strings.HasPrefix(digits, "54"):
		return "AR"
	case strings.HasPrefix(digits, "56"):
		return "CL"
	case strings.HasPrefix(digits, "57"):
		return "CO"
	case strings.HasPrefix(digits, "34"):
		return "ES"
	default:
		return ""
	}
}

func (e *Extractor) isDisposable(addr string) bool {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return false
	}
	return e.disposable[addr[at+1:]]
}

func isLocalPartByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9') || b == '.' || b == '_' || b == '%' || b == '-' || b == '+'
}
