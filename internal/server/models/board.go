package models

import "time"

type Board struct {
	ID              string
	TenantID        string
	ExternalBoardID string
	CreatedAt       time.Time
}

// BoardSummary is a board with its file totals.
type BoardSummary struct {
	Board
	FileCount int64
	FileBytes int64
}
