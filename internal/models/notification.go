package models

import "time"

type NotificationKind string

const (
	NotificationJobOffered   NotificationKind = "job_offered"
	NotificationJobAssigned  NotificationKind = "job_assigned"
	NotificationJobAccepted  NotificationKind = "job_accepted"
	NotificationJobStarted   NotificationKind = "job_started"
	NotificationJobCompleted NotificationKind = "job_completed"
	NotificationJobCancelled NotificationKind = "job_cancelled"
	NotificationJobReleased  NotificationKind = "job_released"
)

// NotificationKindFor maps the status a job just entered to the alert it triggers.
func NotificationKindFor(status JobStatus) NotificationKind {
	switch status {
	case JobStatusOffered:
		return NotificationJobOffered
	case JobStatusAssigned:
		return NotificationJobAssigned
	case JobStatusAccepted:
		return NotificationJobAccepted
	case JobStatusInProgress:
		return NotificationJobStarted
	case JobStatusCompleted:
		return NotificationJobCompleted
	case JobStatusCancelled:
		return NotificationJobCancelled
	default:
		return NotificationJobReleased
	}
}

type NotificationEvent struct {
	TargetStaffID string           `json:"target_staff_id"`
	JobID         string           `json:"job_id"`
	Kind          NotificationKind `json:"kind"`
	DedupeKey     string           `json:"dedupe_key"`
}

// ClaimAttempt is ephemeral; it only lives for the duration of one claim.
type ClaimAttempt struct {
	JobID            string
	StaffID          string
	ExpectedStatus   JobStatus
	RequestedStatus  JobStatus
	RequestTimestamp time.Time
}
