package model

import "time"

type JobStatus string

const (
	JobStatusSeeding JobStatus = "SEEDING"
	JobStatusActive  JobStatus = "ACTIVE"
	JobStatusStopped JobStatus = "STOPPED"
)

type JobSnapshot struct {
	Root      string     `json:"root"`
	Remote    string     `json:"remote"`
	Status    JobStatus  `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	Synced    int        `json:"synced"`
	Failed    int        `json:"failed"`
	Skipped   int        `json:"skipped"`
	LastSync  *time.Time `json:"last_sync"`
}
