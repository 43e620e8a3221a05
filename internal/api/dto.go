package api

import (
	"math"
	"time"

	"lexplain/backend/internal/analysis"
	"lexplain/backend/internal/document"
	"lexplain/backend/internal/scoring"
	"lexplain/backend/internal/store"
)

// AnalyzeRequest is the JSON body of POST /api/analyze and POST /api/jobs.
type AnalyzeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Filename string `json:"filename"`
}

// AnalysisResponse is returned by the synchronous analysis endpoints.
type AnalysisResponse struct {
	DocumentID       string                `json:"document_id"`
	Bundle           document.Bundle       `json:"bundle"`
	Overall          scoring.OverallResult `json:"overall"`
	DetectedLanguage string                `json:"detected_language"`
	Confidence       float64               `json:"language_confidence"`
	FallbackClauses  int                   `json:"fallback_clauses"`
	SummaryFallback  bool                  `json:"summary_fallback"`
	Generic          bool                  `json:"generic"`
}

// DocumentDTO is the API representation of a persisted document record.
type DocumentDTO struct {
	ID                 string    `json:"id"`
	Filename           string    `json:"filename"`
	MimeType           string    `json:"mime_type"`
	Language           string    `json:"language"`
	LanguageConfidence float64   `json:"language_confidence"`
	ClauseCount        int       `json:"clause_count"`
	OverallRisk        string    `json:"overall_risk"`
	HighRiskClauses    int       `json:"high_risk_clauses"`
	Types              []string  `json:"types"`
	ProcessingTimeMs   int64     `json:"processing_time_ms"`
	CreatedAt          time.Time `json:"created_at"`
}

// DocumentsResponse is the paginated document list.
type DocumentsResponse struct {
	Items []DocumentDTO `json:"items"`
	Total int64         `json:"total"`
}

// StartJobResponse describes an accepted asynchronous analysis.
type StartJobResponse struct {
	JobID      string    `json:"job_id"`
	DocumentID string    `json:"document_id"`
	StartedAt  time.Time `json:"started_at"`
}

// JobDTO is the API representation of an analysis job.
type JobDTO struct {
	JobID       string     `json:"job_id"`
	DocumentID  string     `json:"document_id"`
	Filename    string     `json:"filename"`
	Language    string     `json:"language"`
	Status      string     `json:"status"`
	Message     string     `json:"message,omitempty"`
	ClauseCount int        `json:"clause_count"`
	Running     bool       `json:"running"`
	Stage       string     `json:"stage,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
}

// JobsResponse lists recent jobs.
type JobsResponse struct {
	Items []JobDTO `json:"items"`
}

// FromReport converts a pipeline report into the response payload.
func FromReport(r *analysis.Report) AnalysisResponse {
	return AnalysisResponse{
		DocumentID:       r.Bundle.DocumentID,
		Bundle:           r.Bundle,
		Overall:          r.Overall,
		DetectedLanguage: r.Detected.Language,
		Confidence:       round2(r.Detected.Confidence),
		FallbackClauses:  r.FallbackClauses,
		SummaryFallback:  r.SummaryFallback,
		Generic:          r.Generic,
	}
}

// DocumentFromModel converts a store.DocumentRecord into a DTO.
func DocumentFromModel(d store.DocumentRecord) DocumentDTO {
	return DocumentDTO{
		ID:                 d.ID,
		Filename:           d.Filename,
		MimeType:           d.MimeType,
		Language:           d.Language,
		LanguageConfidence: round2(d.LanguageConfidence),
		ClauseCount:        d.ClauseCount,
		OverallRisk:        d.OverallRisk,
		HighRiskClauses:    d.HighRiskClauses,
		Types:              d.Types(),
		ProcessingTimeMs:   d.ProcessingTimeMs,
		CreatedAt:          d.CreatedAt,
	}
}

// JobFromModel converts a store.AnalysisJob into a DTO.
func JobFromModel(j store.AnalysisJob) JobDTO {
	return JobDTO{
		JobID:       j.JobID,
		DocumentID:  j.DocumentID,
		Filename:    j.Filename,
		Language:    j.Language,
		Status:      j.Status,
		Message:     j.Message,
		ClauseCount: j.ClauseCount,
		Running:     j.Status == store.JobRunning,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
