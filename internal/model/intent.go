package model

// Phase is the travel-funnel stage inferred from message content.
type Phase string

const (
	PhaseDreaming Phase = "DREAMING"
	PhasePlanning Phase = "PLANNING"
	PhaseBooking  Phase = "BOOKING"
	PhaseUnknown  Phase = "UNKNOWN"
)

// Tense is the dominant temporal orientation detected in a message.
type Tense string

const (
	TensePast      Tense = "PAST"
	TensePresent   Tense = "PRESENT"
	TenseFuture    Tense = "FUTURE"
	TenseAmbiguous Tense = "AMBIGUOUS"
)

// EntityKind classifies a recognized named entity.
type EntityKind string

const (
	EntityLandmark EntityKind = "landmark"
	EntityTrek     EntityKind = "trek"
	EntityService  EntityKind = "service"
)

// NamedEntity is a gazetteer match found in normalized text. Entities keep
// their order of first appearance in the message.
type NamedEntity struct {
	Text     string     `json:"text"`
	Kind     EntityKind `json:"kind"`
	Flagship bool       `json:"flagship"`
}

// IntentResult is the output of the three-stage intent classifier.
type IntentResult struct {
	Phase      Phase         `json:"phase"`
	Entities   []NamedEntity `json:"entities,omitempty"`
	Tense      Tense         `json:"tense"`
	PriceTerms bool          `json:"price_terms"`
	Confidence float64       `json:"confidence"`
}

// HasFlagshipEntity reports whether any recognized entity is a flagship
// landmark.
func (r IntentResult) HasFlagshipEntity() bool {
	for _, e := range r.Entities {
		if e.Flagship {
			return true
		}
	}
	return false
}
