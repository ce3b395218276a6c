package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tailorjd/tailorjd-be/internal/api/dto"
	"github.com/tailorjd/tailorjd-be/internal/api/middleware"
	"github.com/tailorjd/tailorjd-be/internal/domain"
)

// SubmitRewrite handles POST /api/rewrites
// Enqueues a rewrite job for the caller's resume against one job description
func (h *RewriteHandler) SubmitRewrite(c *gin.Context) {
	var req dto.SubmitRewriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	h.submit(c, h.rewriteQueue, domain.JobPayload{
		UserID:     middleware.UserID(c),
		UserResume: req.UserResume,
		JD:         req.JD,
	})
}

// SubmitDraft handles POST /api/rewrites/draft
// Enqueues a draft job that builds a resume from three job descriptions
func (h *RewriteHandler) SubmitDraft(c *gin.Context) {
	var req dto.SubmitDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	h.submit(c, h.draftQueue, domain.JobPayload{
		UserID: middleware.UserID(c),
		JD1:    req.JD1,
		JD2:    req.JD2,
		JD3:    req.JD3,
	})
}

// submit runs the shared admission path: reject callers with no credits
// before a job record exists, then enqueue. The balance is re-checked when
// the job actually starts; this check only keeps obviously unpayable work
// out of the queue.
func (h *RewriteHandler) submit(c *gin.Context, queue Enqueuer, payload domain.JobPayload) {
	balance, err := h.ledger.Balance(c.Request.Context(), payload.UserID)
	if err != nil {
		h.logger.Error("Failed to read credit balance",
			slog.String("user_id", payload.UserID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to check credits",
		})
		return
	}

	if balance <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "You have insufficient credits.",
		})
		return
	}

	jobID, err := queue.Enqueue(c.Request.Context(), payload)
	if err != nil {
		h.logger.Error("Failed to enqueue job",
			slog.String("job_type", string(queue.JobType())),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit job",
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.SubmitJobResponse{
		JobID:  jobID,
		Status: domain.JobStatusProcessing,
	})
}

// JobStatus handles GET /api/rewrites/job-status/:job_id
// Returns the current state of a job; clients poll this until terminal
func (h *RewriteHandler) JobStatus(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	// A job belonging to someone else is indistinguishable from a missing one.
	if job.UserID != middleware.UserID(c) && !middleware.IsAdmin(c) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}

	if job.Status == domain.JobStatusProcessing {
		c.JSON(http.StatusAccepted, gin.H{
			"job_id": job.JobID,
			"status": job.Status,
		})
		return
	}

	resp := gin.H{
		"job_id":       job.JobID,
		"status":       job.Status,
		"completed_at": job.CompletedAt,
	}
	if job.Status == domain.JobStatusCompleted {
		resp["result"] = json.RawMessage(job.Result)
	} else {
		resp["error_message"] = job.ErrorMessage
	}

	c.JSON(http.StatusOK, resp)
}

// CancelJob handles POST /api/rewrites/cancel/:job_id
// Aborts a job's upstream calls if it is currently running
func (h *RewriteHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	if job.UserID != middleware.UserID(c) && !middleware.IsAdmin(c) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}

	queue := h.rewriteQueue
	if job.JobType == h.draftQueue.JobType() {
		queue = h.draftQueue
	}

	if !queue.Cancel(jobID) {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Job is not currently running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id": jobID,
		"status": "canceling",
	})
}

// DocCollections handles GET /api/rewrites/doc-collections
// Lists the caller's document collections with their documents, newest first
func (h *RewriteHandler) DocCollections(c *gin.Context) {
	userID := middleware.UserID(c)

	collections, err := h.docs.ListCollectionsByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list doc collections",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list doc collections",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"collections": collections,
	})
}
