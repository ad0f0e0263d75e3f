package controller

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"ojengine/internal/judge/model"
	appErr "ojengine/pkg/errors"
	"ojengine/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// SubmissionReader loads one submission; nil means not found.
type SubmissionReader interface {
	GetSubmission(ctx context.Context, id int64) (*model.Submission, error)
}

// Pinger is a dependency pinged by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SubmissionView is the read-only verdict view. Source code is never exposed.
type SubmissionView struct {
	ID           int64           `json:"id"`
	ProblemID    int64           `json:"problem_id"`
	Language     string          `json:"language"`
	Verdict      string          `json:"verdict"`
	Diagnostic   string          `json:"diagnostic,omitempty"`
	FailedCaseID *int64          `json:"failed_case_id,omitempty"`
	BugAnalysis  string          `json:"bug_analysis,omitempty"`
	Similarity   *SimilarityView `json:"similarity,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SimilarityView names the earlier source an accepted submission closely matches.
type SimilarityView struct {
	Score       float64 `json:"score"`
	Source      string  `json:"source"`
	ReferenceID int64   `json:"reference_id"`
}

// JudgeController serves the worker's ops endpoints.
type JudgeController struct {
	submissions SubmissionReader
	checks      map[string]Pinger
}

// NewJudgeController creates a new controller.
func NewJudgeController(submissions SubmissionReader, checks map[string]Pinger) *JudgeController {
	return &JudgeController{submissions: submissions, checks: checks}
}

// GetSubmission returns the verdict view of one submission.
func (h *JudgeController) GetSubmission(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	sub, err := h.submissions.GetSubmission(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if sub == nil {
		response.Error(c, appErr.New(appErr.SubmissionNotFound))
		return
	}
	response.Success(c, SubmissionView{
		ID:           sub.ID,
		ProblemID:    sub.ProblemID,
		Language:     sub.Language,
		Verdict:      sub.Verdict.Code(),
		Diagnostic:   sub.Diagnostic,
		FailedCaseID: sub.FailedCaseID,
		BugAnalysis:  sub.BugAnalysis,
		Similarity:   similarityView(sub.Similarity),
		CreatedAt:    sub.CreatedAt,
		UpdatedAt:    sub.UpdatedAt,
	})
}

func similarityView(m *model.SimilarityMatch) *SimilarityView {
	if m == nil {
		return nil
	}
	return &SimilarityView{Score: m.Score, Source: string(m.Kind), ReferenceID: m.ID}
}

// Healthz pings every dependency and reports 503 when any of them fails.
func (h *JudgeController) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		response.ErrorWithDetails(c, appErr.New(appErr.ServiceUnavailable), status)
		return
	}
	response.Success(c, status)
}

// RegisterRoutes mounts the ops endpoints. metrics may be nil.
func RegisterRoutes(router gin.IRouter, h *JudgeController, metrics http.Handler) {
	router.GET("/healthz", h.Healthz)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	api := router.Group("/api/v1/judge")
	api.GET("/submissions/:id", h.GetSubmission)
}
