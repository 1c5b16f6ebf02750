package intent

import (
	"strings"

	"github.com/sells-group/leadscout/internal/model"
)

// gazetteerEntry is one recognizable destination, trek, or service phrase.
// Phrases are stored lowercase without diacritics to match normalized text.
type gazetteerEntry struct {
	phrase   string
	kind     model.EntityKind
	flagship bool
}

// cuscoGazetteer covers the Cusco-region destinations the sources talk
// about. Flagship entries are the anchor sites a qualified trip centers on.
var cuscoGazetteer = []gazetteerEntry{
	{"machu picchu", model.EntityLandmark, true},
	{"machupicchu", model.EntityLandmark, true},
	{"valle sagrado", model.EntityLandmark, true},
	{"sacred valley", model.EntityLandmark, true},
	{"camino inca", model.EntityTrek, true},
	{"inca trail", model.EntityTrek, true},

	{"montaña de colores", model.EntityLandmark, false},
	{"montana de colores", model.EntityLandmark, false},
	{"montaña de 7 colores", model.EntityLandmark, false},
	{"vinicunca", model.EntityLandmark, false},
	{"rainbow mountain", model.EntityLandmark, false},
	{"laguna humantay", model.EntityLandmark, false},
	{"humantay lake", model.EntityLandmark, false},
	{"salkantay", model.EntityTrek, false},
	{"choquequirao", model.EntityTrek, false},
	{"ausangate", model.EntityTrek, false},
	{"ollantaytambo", model.EntityLandmark, false},
	{"pisac", model.EntityLandmark, false},
	{"moray", model.EntityLandmark, false},
	{"maras", model.EntityLandmark, false},
	{"sacsayhuaman", model.EntityLandmark, false},
	{"cusco", model.EntityLandmark, false},
	{"cuzco", model.EntityLandmark, false},

	{"city tour", model.EntityService, false},
	{"tour privado", model.EntityService, false},
	{"private tour", model.EntityService, false},
	{"boleto turistico", model.EntityService, false},
	{"boleto turístico", model.EntityService, false},
	{"tren a machu picchu", model.EntityService, false},
}

// findEntities scans canonical text for gazetteer phrases, longest phrase
// first at each position, preserving order of first appearance.
func findEntities(canonical string) []model.NamedEntity {
	var found []model.NamedEntity
	seen := make(map[string]bool)

	type hit struct {
		pos   int
		entry gazetteerEntry
	}
	var hits []hit
	for _, entry := range cuscoGazetteer {
		if idx := strings.Index(canonical, entry.phrase); idx >= 0 && !seen[entry.phrase] {
			seen[entry.phrase] = true
			hits = append(hits, hit{pos: idx, entry: entry})
		}
	}

	// Order of appearance, dropping phrases contained in an earlier, longer
	// match at the same position ("machu picchu" subsumes "machu").
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].pos < hits[i].pos {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}

	covered := make(map[int]int) // start -> end of accepted spans
	for _, h := range hits {
		end := h.pos + len(h.entry.phrase)
		subsumed := false
		for s, e := range covered {
			if h.pos >= s && end <= e {
				subsumed = true
				break
			}
		}
		if subsumed {
			continue
		}
		covered[h.pos] = end
		found = append(found, model.NamedEntity{
			Text:     h.entry.phrase,
			Kind:     h.entry.kind,
			Flagship: h.entry.flagship,
		})
	}

	return found
}
