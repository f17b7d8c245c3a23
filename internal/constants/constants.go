package constants

import "time"

// HTTP
const (
	MaxRequestBodyBytes = 1 << 20
	StreamHeartbeat     = 25 * time.Second
)

// Scheduler specs (robfig/cron)
const (
	ExpireOffersSchedule      = "@every 1m"
	RelocateCompletedSchedule = "@every 5m"
	SweepTimeout              = 30 * time.Second
)
