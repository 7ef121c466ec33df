package cases

import (
	"time"

	"github.com/google/uuid"
)

// Status is the analysis lifecycle state of a Case. It only moves forward:
// pending -> analyzing -> completed | failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAnalyzing Status = "analyzing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var validTransitions = map[Status][]Status{
	StatusPending:   {StatusAnalyzing},
	StatusAnalyzing: {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the lifecycle permits moving from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Case maps to the cases table: one patient encounter submitted for analysis.
type Case struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Title         string    `db:"title" json:"title"`
	PatientName   string    `db:"patient_name" json:"patientName"`
	PatientAge    *int      `db:"patient_age" json:"patientAge,omitempty"`
	ClinicalNotes *string   `db:"clinical_notes" json:"clinicalNotes,omitempty"`
	Transcript    *string   `db:"transcript" json:"transcript,omitempty"`
	AudioURL      *string   `db:"audio_url" json:"audioUrl,omitempty"`
	Status        Status    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// Insight maps to the insights table: the structured analysis output owned by
// exactly one Case.
type Insight struct {
	ID               uuid.UUID `db:"id" json:"id"`
	CaseID           uuid.UUID `db:"case_id" json:"caseId"`
	Summary          string    `db:"summary" json:"summary"`
	BlindSpots       []string  `db:"blind_spots" json:"blindSpots"`
	Questions        []string  `db:"questions" json:"questions"`
	OriginalLanguage *string   `db:"original_language" json:"originalLanguage,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

// CaseWithInsight is the read shape for a single case: the insight is nil
// until analysis completes.
type CaseWithInsight struct {
	Case
	Insight *Insight `json:"insight,omitempty"`
}

// CreateCaseInput carries the client-supplied fields for a new case. Any
// status in the request body is ignored: new cases always start pending.
type CreateCaseInput struct {
	Title         string  `json:"title"`
	PatientName   string  `json:"patientName"`
	PatientAge    *int    `json:"patientAge"`
	ClinicalNotes *string `json:"clinicalNotes"`
	Transcript    *string `json:"transcript"`
	AudioURL      *string `json:"audioUrl"`
}

// InsightData is the parsed analysis result before persistence.
type InsightData struct {
	Summary          string   `json:"summary"`
	BlindSpots       []string `json:"blindSpots"`
	Questions        []string `json:"questions"`
	OriginalLanguage string   `json:"originalLanguage"`
}
