package store

import (
	"encoding/json"
	"strings"
	"time"
)

// Job statuses.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// CacheEntry holds one serialized result bundle keyed by (document, language).
type CacheEntry struct {
	Key        string `gorm:"column:cache_key;primaryKey;size:255"`
	DocumentID string `gorm:"size:64;index"`
	Language   string `gorm:"size:16"`
	Payload    []byte
	ExpiresAt  *time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

// Expired reports whether the entry is past its expiry at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// DocumentRecord is the persisted metadata of an analyzed document.
type DocumentRecord struct {
	ID                 string `gorm:"primaryKey;size:64"`
	Filename           string `gorm:"size:256"`
	MimeType           string `gorm:"size:128"`
	Language           string `gorm:"size:16;index"`
	LanguageConfidence float64
	ClauseCount        int
	OverallRisk        string `gorm:"size:16;index"`
	HighRiskClauses    int
	TypesJSON          string `gorm:"type:text"`
	ProcessingTimeMs   int64
	CreatedAt          time.Time `gorm:"autoCreateTime"`
}

// SetTypes stores the clause type list as JSON.
func (d *DocumentRecord) SetTypes(types []string) {
	if types == nil {
		d.TypesJSON = "[]"
		return
	}
	payload, _ := json.Marshal(types)
	d.TypesJSON = string(payload)
}

// Types returns the decoded clause type list.
func (d *DocumentRecord) Types() []string {
	if strings.TrimSpace(d.TypesJSON) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(d.TypesJSON), &out); err != nil {
		return nil
	}
	return out
}

// AnalysisJob persists asynchronous analysis job metadata across restarts.
type AnalysisJob struct {
	JobID       string `gorm:"primaryKey;size:64"`
	DocumentID  string `gorm:"size:64;index"`
	Filename    string `gorm:"size:256"`
	Language    string `gorm:"size:16"`
	Status      string `gorm:"size:32;index"`
	Message     string `gorm:"size:255"`
	ClauseCount int
	StartedAt   time.Time
	FinishedAt  *time.Time
	UpdatedAt   time.Time
	CreatedAt   time.Time
}
