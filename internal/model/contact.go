package model

// Phone is a normalized E.164-like phone number extracted from text.
type Phone struct {
	Number           string `json:"number"`
	Region           string `json:"region,omitempty"`
	WhatsAppEligible bool   `json:"whatsapp_eligible"`
}

// Email is a validated email address extracted from text.
type Email struct {
	Address    string `json:"address"`
	Disposable bool   `json:"disposable"`
}

// ContactSet holds the deduplicated contact identifiers found in a single
// artifact. An empty set is valid.
type ContactSet struct {
	Phones    []Phone  `json:"phones,omitempty"`
	Emails    []Email  `json:"emails,omitempty"`
	Usernames []string `json:"usernames,omitempty"`
}

// Empty reports whether no phone or email was found. Usernames alone do not
// make a lead contactable.
func (c ContactSet) Empty() bool {
	return len(c.Phones) == 0 && len(c.Emails) == 0
}

// HasWhatsApp reports whether any phone is WhatsApp-eligible.
func (c ContactSet) HasWhatsApp() bool {
	for _, p := range c.Phones {
		if p.WhatsAppEligible {
			return true
		}
	}
	return false
}

// HasValidEmail reports whether any non-disposable email is present.
func (c ContactSet) HasValidEmail() bool {
	for _, e := range c.Emails {
		if !e.Disposable {
			return true
		}
	}
	return false
}

// HasDisposableEmail reports whether any disposable email is present.
func (c ContactSet) HasDisposableEmail() bool {
	for _, e := range c.Emails {
		if e.Disposable {
			return true
		}
	}
	return false
}

// Merge unions other into c, preserving first-seen order and deduplicating
// by normalized value. Used by upsert-safe lead writes.
func (c ContactSet) Merge(other ContactSet) ContactSet {
	out := ContactSet{}

	seenPhones := make(map[string]bool)
	for _, p := range append(append([]Phone{}, c.Phones...), other.Phones...) {
		if seenPhones[p.Number] {
			continue
		}
		seenPhones[p.Number] = true
		out.Phones = append(out.Phones, p)
	}

	seenEmails := make(map[string]bool)
	for _, e := range append(append([]Email{}, c.Emails...), other.Emails...) {
		if seenEmails[e.Address] {
			continue
		}
		seenEmails[e.Address] = true
		out.Emails = append(out.Emails, e)
	}

	seenUsers := make(map[string]bool)
	for _, u := range append(append([]string{}, c.Usernames...), other.Usernames...) {
		if seenUsers[u] {
			continue
		}
		seenUsers[u] = true
		out.Usernames = append(out.Usernames, u)
	}

	return out
}
