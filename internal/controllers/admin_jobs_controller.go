package controllers

import (
	"net/http"
	"time"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/dtos"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/engine"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

type AdminJobsController struct {
	engine *engine.Engine
}

func NewAdminJobsController(e *engine.Engine) *AdminJobsController {
	return &AdminJobsController{engine: e}
}

// POST /api/v1/admin/jobs
func (c *AdminJobsController) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	admin, ok := staffFromRequest(w, r)
	if !ok {
		return
	}
	var req dtos.CreateJobRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	job, err := c.engine.CreateJob(r.Context(), admin, req.Draft())
	if err != nil {
		respondJobError(w, err)
		return
	}
	utils.Logger.WithField("job_id", job.ID).WithField("admin_id", admin.ID).Info("Job created")
	utils.RespondWithJSON(w, http.StatusCreated, dtos.JobResponse{Job: job})
}

// POST /api/v1/admin/jobs/offer
func (c *AdminJobsController) OfferJobHandler(w http.ResponseWriter, r *http.Request) {
	admin, ok := staffFromRequest(w, r)
	if !ok {
		return
	}
	var req dtos.OfferJobRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	job, err := c.engine.OfferJob(r.Context(), admin, req.JobID, ttl, req.Expected())
	if err != nil {
		respondJobError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.JobResponse{Job: job})
}
