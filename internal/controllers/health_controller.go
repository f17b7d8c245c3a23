package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/dtos"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

// Pinger is satisfied by *app.App.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	pinger Pinger
}

func NewHealthController(p Pinger) *HealthController {
	return &HealthController{pinger: p}
}

func (c *HealthController) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := c.pinger.Ping(ctx); err != nil {
		utils.Logger.WithError(err).Error("Backend unreachable")
		utils.RespondErrorWithCode(
			w,
			http.StatusServiceUnavailable,
			utils.ErrCodeStoreUnavailable,
			"Backend unreachable",
			nil,
			err,
		)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, dtos.HealthCheckResponse{Status: "OK"})
}
