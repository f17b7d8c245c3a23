package routes

const (
	// Health
	Health  = "/health"
	Metrics = "/metrics"

	// Staff endpoints
	JobsBase      = "/api/v1/jobs"
	JobsClaim     = "/api/v1/jobs/claim"
	JobsAccept    = "/api/v1/jobs/accept"
	JobsStart     = "/api/v1/jobs/start"
	JobsComplete  = "/api/v1/jobs/complete"
	JobsCancel    = "/api/v1/jobs/cancel"
	JobsRelease   = "/api/v1/jobs/release"
	JobsMyStream  = "/api/v1/jobs/my/stream"
	JobsClaimable = "/api/v1/jobs/claimable/stream"
	JobByID       = "/api/v1/jobs/{id}"

	// Admin endpoints
	AdminJobsBase  = "/api/v1/admin/jobs"
	AdminJobsOffer = "/api/v1/admin/jobs/offer"
)
