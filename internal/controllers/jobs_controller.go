package controllers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/dtos"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/engine"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

type JobsController struct {
	engine *engine.Engine
}

func NewJobsController(e *engine.Engine) *JobsController {
	return &JobsController{engine: e}
}

type jobAction func(ctx context.Context, staff models.Staff, jobID string, expected *models.Revision) (*models.Job, error)

// handleAction runs one of the body-only staff actions.
func (c *JobsController) handleAction(w http.ResponseWriter, r *http.Request, name string, action jobAction) {
	staff, ok := staffFromRequest(w, r)
	if !ok {
		return
	}
	var req dtos.JobActionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	job, err := action(r.Context(), staff, req.JobID, req.Expected())
	if err != nil {
		utils.Logger.WithError(err).WithFields(logrus.Fields{
			"action": name, "staff_id": staff.ID, "job_id": req.JobID,
		}).Debug("Job action rejected")
		respondJobError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.JobResponse{Job: job})
}

// ----------------------------------------------------------------
// POST /api/v1/jobs/claim
// ----------------------------------------------------------------
func (c *JobsController) ClaimJobHandler(w http.ResponseWriter, r *http.Request) {
	c.handleAction(w, r, "claim", c.engine.ClaimJob)
}

// ----------------------------------------------------------------
// POST /api/v1/jobs/accept
// ----------------------------------------------------------------
func (c *JobsController) AcceptJobHandler(w http.ResponseWriter, r *http.Request) {
	c.handleAction(w, r, "accept", c.engine.AcceptJob)
}

// ----------------------------------------------------------------
// POST /api/v1/jobs/start
// ----------------------------------------------------------------
func (c *JobsController) StartJobHandler(w http.ResponseWriter, r *http.Request) {
	c.handleAction(w, r, "start", c.engine.StartJob)
}

// ----------------------------------------------------------------
// POST /api/v1/jobs/release
// ----------------------------------------------------------------
func (c *JobsController) ReleaseJobHandler(w http.ResponseWriter, r *http.Request) {
	c.handleAction(w, r, "release", c.engine.ReleaseJob)
}

// ----------------------------------------------------------------
// POST /api/v1/jobs/complete
// ----------------------------------------------------------------
func (c *JobsController) CompleteJobHandler(w http.ResponseWriter, r *http.Request) {
	staff, ok := staffFromRequest(w, r)
	if !ok {
		return
	}
	var req dtos.CompleteJobRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	job, err := c.engine.CompleteJob(r.Context(), staff, req.JobID, req.CompletionRecord, req.Expected())
	if err != nil {
		respondJobError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.JobResponse{Job: job})
}

// ----------------------------------------------------------------
// POST /api/v1/jobs/cancel
// ----------------------------------------------------------------
func (c *JobsController) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	staff, ok := staffFromRequest(w, r)
	if !ok {
		return
	}
	var req dtos.CancelJobRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	job, err := c.engine.CancelJob(r.Context(), staff, req.JobID, req.Reason, req.Expected())
	if err != nil {
		respondJobError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.JobResponse{Job: job})
}

// ----------------------------------------------------------------
// GET /api/v1/jobs/{id}
// ----------------------------------------------------------------
func (c *JobsController) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	staff, ok := staffFromRequest(w, r)
	if !ok {
		return
	}
	job, err := c.engine.GetJobFor(r.Context(), staff, mux.Vars(r)["id"])
	if err != nil {
		respondJobError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.JobResponse{Job: job})
}
