package models

import "time"

// Note is the single shared document of a board.
type Note struct {
	BoardID string
	HTML    string
	// IsEmpty is true when HTML carries no text and no images.
	IsEmpty   bool
	UpdatedBy string
	UpdatedAt time.Time
}

// NoteSnapshot is one daily capture of a note.
type NoteSnapshot struct {
	ID        string
	BoardID   string
	Day       time.Time
	HTML      string
	CreatedAt time.Time
}
