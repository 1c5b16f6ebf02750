package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscout/internal/model"
)

const threadPageHTML = `<html><body>
<div class="forum-list"><a class="title" href="/threads/2">Consejos para el camino inca</a></div>
<article class="post" data-client-ip="203.0.113.9">
  <a class="username" href="/users/ana">ana_viajera</a>
  <time datetime="2026-06-01T10:00:00Z">1 jun</time>
  <div class="post-body">quiero reservar para machu picchu, mi whatsapp es +51 987 654 321</div>
</article>
<article class="post" data-honeypot="1" data-headless="true">
  <a class="username">promo_bot</a>
  <time datetime="2026-06-01T10:00:05Z">1 jun</time>
  <div class="post-body">gran oferta, haz click aqui</div>
</article>
<a class="next" href="/threads/1?page=2">siguiente</a>
</body></html>`

func threadPage(url string) *Page {
	return &Page{
		URL:       url,
		Body:      []byte(threadPageHTML),
		FetchedAt: time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC),
	}
}

func TestForumStrategy_ParseArtifacts(t *testing.T) {
	f := &ForumStrategy{}
	source := model.SourceConfig{ID: "foro-viajeros", Type: model.SourceForumThread}

	result, err := f.ParseArtifacts(threadPage("https://foro.example.com/threads/1"), source)
	require.NoError(t, err)

	require.Len(t, result.Artifacts, 2)

	first := result.Artifacts[0]
	assert.Equal(t, "foro-viajeros", first.SourceID)
	assert.Contains(t, first.RawText, "quiero reservar")
	assert.Equal(t, "ana_viajera", first.AuthorName)
	assert.Equal(t, "https://foro.example.com/users/ana", first.AuthorURL)
	assert.Equal(t, "203.0.113.9", first.Signals.ClientIP)
	assert.False(t, first.Signals.HoneypotTriggered)

	second := result.Artifacts[1]
	assert.True(t, second.Signals.HoneypotTriggered)
	assert.True(t, second.Signals.HeadlessMarkers)
	assert.True(t, second.Signals.NavigatorWebdriver)

	// Post timestamps 5s apart feed the timing signal on every post.
	require.Len(t, first.Signals.InteractionGapsMS, 1)
	assert.InDelta(t, 5000, first.Signals.InteractionGapsMS[0], 0.1)

	// Thread link plus pagination link.
	require.Len(t, result.Follow, 2)
	assert.Equal(t, "https://foro.example.com/threads/2", result.Follow[0])
	assert.Equal(t, "https://foro.example.com/threads/1?page=2", result.Follow[1])
}

func TestForumStrategy_DetectBlock(t *testing.T) {
	f := &ForumStrategy{}

	blocked, kind := f.DetectBlock(&Page{Body: []byte("Please verify you are a human to continue")})
	assert.True(t, blocked)
	assert.Equal(t, BlockCaptcha, kind)

	blocked, _ = f.DetectBlock(&Page{Body: []byte("<html>hilo normal</html>")})
	assert.False(t, blocked)
}

func TestForumStrategy_EmptyPage(t *testing.T) {
	f := &ForumStrategy{}
	page := &Page{URL: "https://foro.example.com/vacio", Body: []byte("<html><body></body></html>")}

	result, err := f.ParseArtifacts(page, model.SourceConfig{ID: "foro"})
	require.NoError(t, err)
	assert.Empty(t, result.Artifacts)
	assert.Empty(t, result.Follow)
}

func TestGenericWebStrategy_ParseArtifacts(t *testing.T) {
	g := &GenericWebStrategy{}
	page := &Page{
		URL: "https://agencia.example.com/contacto",
		Body: []byte(`<html><body>
<p>Reserva tu tour al valle sagrado con nosotros.</p>
<p>Atendemos consultas todos los dias.</p>
<a href="https://wa.me/51911222333">Escribenos por WhatsApp</a>
</body></html>`),
		FetchedAt: time.Now().UTC(),
	}

	result, err := g.ParseArtifacts(page, model.SourceConfig{ID: "agencia", Type: model.SourceGenericWeb})
	require.NoError(t, err)

	require.Len(t, result.Artifacts, 1)
	artifact := result.Artifacts[0]
	assert.Contains(t, artifact.RawText, "valle sagrado")
	assert.Contains(t, artifact.RawText, "wa.me/51911222333")
	assert.Equal(t, "agencia", artifact.SourceID)
}

func TestStrategyFor(t *testing.T) {
	forum, err := StrategyFor(model.SourceForumThread)
	require.NoError(t, err)
	assert.Equal(t, "forum", forum.Name())

	generic, err := StrategyFor(model.SourceGenericWeb)
	require.NoError(t, err)
	assert.Equal(t, "generic_web", generic.Name())

	_, err = StrategyFor(model.SourceType("telegram"))
	assert.Error(t, err)
}
