package domain

import (
	"time"
)

// Detection is a raw fraud signal supplied by the upstream analysis pipeline.
// The engine treats score, confidence and finding codes as opaque inputs and
// never re-derives them.
type Detection struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// SubjectID references the person or account under suspicion.
	SubjectID string `json:"subjectId"`

	Source   SourceTag `json:"source"`
	District string    `json:"district"`
	Context  string    `json:"context"` // business context, e.g. "subscription", "claim"

	// Score is the anomaly score on a 0-100 scale.
	Score float64 `json:"score"`

	// Confidence is the pipeline's confidence in the signal, 0.0-1.0.
	Confidence float64 `json:"confidence"`

	// Amount is the monetary value involved, when known.
	Amount float64 `json:"amount,omitempty"`

	FindingCodes []string               `json:"findingCodes,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`

	ReceivedAt time.Time `json:"receivedAt"`
}

// DetectionRequest is the API request payload for POST /classify.
type DetectionRequest struct {
	SubjectID    string                 `json:"subjectId"`
	Source       string                 `json:"source"`
	District     string                 `json:"district"`
	Context      string                 `json:"context"`
	Score        float64                `json:"score"`
	Confidence   float64                `json:"confidence"`
	Amount       float64                `json:"amount,omitempty"`
	FindingCodes []string               `json:"findingCodes,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// ToDetection converts a request to a Detection domain object.
func (r *DetectionRequest) ToDetection() *Detection {
	return &Detection{
		SubjectID:    r.SubjectID,
		Source:       SourceTag(r.Source),
		District:     r.District,
		Context:      r.Context,
		Score:        r.Score,
		Confidence:   r.Confidence,
		Amount:       r.Amount,
		FindingCodes: r.FindingCodes,
		Payload:      r.Payload,
		ReceivedAt:   time.Now().UTC(),
	}
}
