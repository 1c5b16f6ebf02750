package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/normalize"
)

func newExtractor() *Extractor {
	return New(config.ExtractConfig{
		Region:            "PE",
		DisposableDomains: []string{"mailinator.com", "tempmail.com"},
	})
}

func normalized(text string) model.NormalizedText {
	return normalize.New("es", nil).Normalize(text)
}

func TestExtract_PeruMobile(t *testing.T) {
	e := newExtractor()

	tests := []struct {
		name string
		text string
	}{
		{"with country code and spaces", "mi whatsapp es +51 987 654 321"},
		{"with dashes", "escríbeme al 987-654-321"},
		{"bare digits", "cel 987654321 gracias"},
		{"country code no plus", "51 987 654 321"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := e.Extract(normalized(tt.text))
			require.Len(t, set.Phones, 1)
			assert.Equal(t, "+51987654321", set.Phones[0].Number)
			assert.Equal(t, "PE", set.Phones[0].Region)
			assert.True(t, set.Phones[0].WhatsAppEligible)
		})
	}
}

func TestExtract_WhatsAppLink(t *testing.T) {
	e := newExtractor()

	set := e.Extract(normalized("reservas aquí https://wa.me/51911222333"))
	require.Len(t, set.Phones, 1)
	assert.Equal(t, "+51911222333", set.Phones[0].Number)
	assert.True(t, set.Phones[0].WhatsAppEligible)
}

func TestExtract_InternationalPhone(t *testing.T) {
	e := newExtractor()

	set := e.Extract(normalized("call me at +1 415 555 0123"))
	require.Len(t, set.Phones, 1)
	assert.Equal(t, "+14155550123", set.Phones[0].Number)
	assert.Equal(t, "US", set.Phones[0].Region)
	assert.False(t, set.Phones[0].WhatsAppEligible)
}

func TestExtract_Emails(t *testing.T) {
	e := newExtractor()

	set := e.Extract(normalized("escríbeme a Ana.Viajes@Example.COM o backup@mailinator.com"))
	require.Len(t, set.Emails, 2)
	assert.Equal(t, "ana.viajes@example.com", set.Emails[0].Address)
	assert.False(t, set.Emails[0].Disposable)
	assert.Equal(t, "backup@mailinator.com", set.Emails[1].Address)
	assert.True(t, set.Emails[1].Disposable)
}

func TestExtract_Usernames(t *testing.T) {
	e := newExtractor()

	set := e.Extract(normalized("sígueme en ig @ana_viajera y tiktok @ana.travels"))
	assert.Equal(t, []string{"ana_viajera", "ana.travels"}, set.Usernames)
}

func TestExtract_EmailNotDoubleCountedAsUsername(t *testing.T) {
	e := newExtractor()

	set := e.Extract(normalized("contacto: ana@example.com"))
	require.Len(t, set.Emails, 1)
	assert.Empty(t, set.Usernames)
}

func TestExtract_Deduplicates(t *testing.T) {
	e := newExtractor()

	set := e.Extract(normalized("llámame al +51 987 654 321 o al 987654321, repito 987 654 321"))
	assert.Len(t, set.Phones, 1)
}

func TestExtract_NoContacts(t *testing.T) {
	e := newExtractor()

	set := e.Extract(normalized("hermoso lugar, algún día iré"))
	assert.True(t, set.Empty())
	assert.Empty(t, set.Usernames)
}

func TestExtract_MixedMessage(t *testing.T) {
	e := newExtractor()

	set := e.Extract(normalized("precio tour Valle Sagrado? mi whatsapp es +51 987 654 321 o ana@example.com"))

	require.Len(t, set.Phones, 1)
	assert.Equal(t, "+51987654321", set.Phones[0].Number)
	require.Len(t, set.Emails, 1)
	assert.True(t, set.HasWhatsApp())
	assert.True(t, set.HasValidEmail())
}
