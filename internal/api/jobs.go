package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lexplain/backend/internal/analysis"
	"lexplain/backend/internal/metrics"
	"lexplain/backend/internal/store"
)

var errTooManyJobs = errors.New("too many analysis jobs running")

// analysisJob tracks a running asynchronous analysis.
type analysisJob struct {
	id         string
	documentID string
	cancel     context.CancelFunc
	startedAt  time.Time
}

// startJob records and launches a job. The caller must hold s.jobMu.
func (s *Server) startJob(in analysisInput) (*analysisJob, error) {
	if len(s.jobs) >= s.maxJobs {
		return nil, errTooManyJobs
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &analysisJob{
		id:         uuid.NewString(),
		documentID: uuid.NewString(),
		cancel:     cancel,
		startedAt:  time.Now().UTC(),
	}
	record := &store.AnalysisJob{
		JobID:      job.id,
		DocumentID: job.documentID,
		Filename:   in.filename,
		Language:   in.language,
		Status:     store.JobRunning,
		StartedAt:  job.startedAt,
	}
	if err := s.db.CreateJob(record); err != nil {
		cancel()
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.jobs[job.id] = job
	s.jobsWG.Add(1)
	metrics.JobsInFlight.Inc()
	go s.runJob(ctx, job, in)
	return job, nil
}

func (s *Server) runJob(ctx context.Context, job *analysisJob, in analysisInput) {
	log := logrus.WithFields(logrus.Fields{"job": job.id, "document_id": job.documentID})
	defer func() {
		job.cancel()
		s.jobsWG.Done()
	}()

	s.notifier.Broadcast(JobEvent{
		Type:       EventStarted,
		JobID:      job.id,
		DocumentID: job.documentID,
		Message:    "analysis started",
	})
	log.WithField("filename", in.filename).Info("analysis job started")

	report, err := s.pipeline.Analyze(ctx, analysis.Request{
		DocumentID: job.documentID,
		Filename:   in.filename,
		MimeType:   in.mimeType,
		Text:       in.text,
		Language:   in.language,
		Progress: func(ev analysis.Event) {
			s.notifier.Broadcast(JobEvent{
				Type:       EventProgress,
				JobID:      job.id,
				DocumentID: job.documentID,
				Stage:      ev.Stage,
				Clauses:    ev.Clauses,
				Message:    ev.Message,
			})
		},
	})

	// leave the running set before the terminal status becomes visible
	s.jobMu.Lock()
	delete(s.jobs, job.id)
	s.jobMu.Unlock()
	metrics.JobsInFlight.Dec()

	duration := time.Since(job.startedAt).Round(time.Millisecond)
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		s.finishJob(job, store.JobCancelled, "analysis cancelled", 0)
		s.notifier.Broadcast(JobEvent{Type: EventCancelled, JobID: job.id, DocumentID: job.documentID, Message: "analysis cancelled"})
		log.Warn("analysis job cancelled")
	case err != nil:
		s.finishJob(job, store.JobFailed, err.Error(), 0)
		s.notifier.Broadcast(JobEvent{Type: EventFailed, JobID: job.id, DocumentID: job.documentID, Message: err.Error()})
		log.WithError(err).Error("analysis job failed")
	default:
		message := fmt.Sprintf("analysis finished in %s", duration)
		if report.FallbackClauses > 0 || report.SummaryFallback {
			message += fmt.Sprintf(" (%d clauses used fallback text)", report.FallbackClauses)
		}
		s.finishJob(job, store.JobCompleted, message, len(report.Bundle.Clauses))
		s.notifier.Broadcast(JobEvent{
			Type:        EventCompleted,
			JobID:       job.id,
			DocumentID:  job.documentID,
			Clauses:     len(report.Bundle.Clauses),
			OverallRisk: report.Overall.Category,
			Message:     message,
		})
		log.WithFields(logrus.Fields{
			"clauses":  len(report.Bundle.Clauses),
			"duration": duration,
		}).Info("analysis job completed")
	}
}

func (s *Server) finishJob(job *analysisJob, status, message string, clauses int) {
	if err := s.db.UpdateJob(job.id, status, message, clauses, job.documentID); err != nil {
		logrus.WithError(err).WithField("job", job.id).Warn("update job")
	}
}

// Shutdown cancels running jobs and waits for them to record their final state.
func (s *Server) Shutdown(ctx context.Context) error {
	s.jobMu.Lock()
	for _, job := range s.jobs {
		job.cancel()
	}
	s.jobMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.jobsWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleStartJob(c *gin.Context) {
	in, status, err := s.readInput(c)
	if err != nil {
		s.renderError(c, status, err)
		return
	}

	s.jobMu.Lock()
	job, err := s.startJob(in)
	s.jobMu.Unlock()
	if err != nil {
		if errors.Is(err, errTooManyJobs) {
			s.renderError(c, http.StatusTooManyRequests, err)
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusAccepted, StartJobResponse{
		JobID:      job.id,
		DocumentID: job.documentID,
		StartedAt:  job.startedAt,
	})
}

func (s *Server) handleListJobs(c *gin.Context) {
	rows, err := s.db.ListJobs(queryInt(c, "limit", 50))
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	items := make([]JobDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, s.jobDTO(row))
	}
	c.JSON(http.StatusOK, JobsResponse{Items: items})
}

func (s *Server) handleGetJob(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("id"))
	row, err := s.db.GetJob(jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("job %s not found", jobID))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, s.jobDTO(*row))
}

func (s *Server) handleCancelJob(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("id"))

	s.jobMu.Lock()
	job, ok := s.jobs[jobID]
	if ok {
		job.cancel()
		s.notifier.Broadcast(JobEvent{
			Type:       EventProgress,
			JobID:      job.id,
			DocumentID: job.documentID,
			Message:    "cancellation requested",
		})
	}
	s.jobMu.Unlock()

	if !ok {
		if _, err := s.db.GetJob(jobID); err == nil {
			s.renderError(c, http.StatusConflict, fmt.Errorf("job %s is not running", jobID))
		} else {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("job %s not found", jobID))
		}
		return
	}
	logrus.WithField("job", jobID).Info("analysis cancellation requested")
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

func (s *Server) jobDTO(row store.AnalysisJob) JobDTO {
	dto := JobFromModel(row)
	if ev, ok := s.notifier.LastEvent(row.JobID); ok && dto.Running {
		dto.Stage = ev.Stage
	}
	return dto
}
