package controllers

import (
	"crypto/rsa"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/engine"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/middleware"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/routes"
)

// NewRouter wires every route. metricsHandler may be nil.
func NewRouter(e *engine.Engine, pinger Pinger, pub *rsa.PublicKey, metricsHandler http.Handler) *mux.Router {
	healthCtrl := NewHealthController(pinger)
	jobsCtrl := NewJobsController(e)
	adminCtrl := NewAdminJobsController(e)
	streamCtrl := NewStreamController(e)

	router := mux.NewRouter()

	// Public
	router.HandleFunc(routes.Health, healthCtrl.HealthCheckHandler).Methods(http.MethodGet)
	if metricsHandler != nil {
		router.Handle(routes.Metrics, metricsHandler).Methods(http.MethodGet)
	}

	// Staff
	secured := router.NewRoute().Subrouter()
	secured.Use(middleware.AuthMiddleware(pub))
	secured.HandleFunc(routes.JobsClaim, jobsCtrl.ClaimJobHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.JobsAccept, jobsCtrl.AcceptJobHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.JobsStart, jobsCtrl.StartJobHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.JobsComplete, jobsCtrl.CompleteJobHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.JobsCancel, jobsCtrl.CancelJobHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.JobsRelease, jobsCtrl.ReleaseJobHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.JobsMyStream, streamCtrl.MyJobsStreamHandler).Methods(http.MethodGet)
	secured.HandleFunc(routes.JobsClaimable, streamCtrl.ClaimableJobsStreamHandler).Methods(http.MethodGet)
	secured.HandleFunc(routes.JobByID, jobsCtrl.GetJobHandler).Methods(http.MethodGet)

	// Admin
	admin := router.NewRoute().Subrouter()
	admin.Use(middleware.AuthMiddleware(pub), middleware.AdminOnly)
	admin.HandleFunc(routes.AdminJobsBase, adminCtrl.CreateJobHandler).Methods(http.MethodPost)
	admin.HandleFunc(routes.AdminJobsOffer, adminCtrl.OfferJobHandler).Methods(http.MethodPost)

	return router
}
