package dto

import "time"

// TriggerRunRequest is the optional body for manual batch run endpoints.
// AsOf pins the evaluation instant, defaulting to the current time.
type TriggerRunRequest struct {
	AsOf *time.Time `json:"as_of" binding:"omitempty"`
}

// SweepRunResponse reports the outcome of an overdue sweep run
type SweepRunResponse struct {
	AsOf         time.Time `json:"as_of"`
	Scanned      int       `json:"scanned"`
	Transitioned int       `json:"transitioned"`
	Failed       int       `json:"failed"`
}

// CloneRunResponse reports the outcome of a cycle cloner run
type CloneRunResponse struct {
	AsOf      time.Time `json:"as_of"`
	Templates int       `json:"templates"`
	Cloned    int       `json:"cloned"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
}

// BillCountsResponse reports bill counts per status
type BillCountsResponse struct {
	Counts map[string]int64 `json:"counts"`
}
