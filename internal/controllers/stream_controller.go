package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/constants"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/engine"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

const sseEventName = "job_change"

/*
StreamController serves the two subscriptions as Server-Sent Events. Each
JobChangeEvent is one "job_change" event whose data is the JSON event.
*/
type StreamController struct {
	engine    *engine.Engine
	heartbeat time.Duration
}

func NewStreamController(e *engine.Engine) *StreamController {
	return &StreamController{engine: e, heartbeat: constants.StreamHeartbeat}
}

// GET /api/v1/jobs/my/stream
func (c *StreamController) MyJobsStreamHandler(w http.ResponseWriter, r *http.Request) {
	staff, ok := staffFromRequest(w, r)
	if !ok {
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeStreamingNotAllowed, "Streaming unsupported", nil)
		return
	}
	events, err := c.engine.SubscribeToMyJobs(r.Context(), staff)
	if err != nil {
		respondJobError(w, err)
		return
	}
	c.serve(w, r, events)
}

// GET /api/v1/jobs/claimable/stream?role=cleaner
func (c *StreamController) ClaimableJobsStreamHandler(w http.ResponseWriter, r *http.Request) {
	staff, ok := staffFromRequest(w, r)
	if !ok {
		return
	}
	role := models.RoleTag(r.URL.Query().Get("role"))
	if role == "" {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, "Query parameter 'role' is required", nil)
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeStreamingNotAllowed, "Streaming unsupported", nil)
		return
	}
	events, err := c.engine.SubscribeToClaimableJobs(r.Context(), staff, role)
	if err != nil {
		respondJobError(w, err)
		return
	}
	c.serve(w, r, events)
}

func (c *StreamController) serve(w http.ResponseWriter, r *http.Request, events <-chan engine.JobChangeEvent) {
	flusher := w.(http.Flusher)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				// feed dropped us; the client reconnects and gets a fresh snapshot
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				utils.Logger.WithError(err).Error("Failed to encode job change event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", sseEventName, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
