package models

import "time"

// File is a stored artifact on disk: either a customer upload under the
// upload directory or a generated result spreadsheet under the output
// directory. Path is always relative to the owning directory.
type File struct {
	ID        int64     `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	Path      string    `db:"path"       json:"path"`
	Size      int64     `db:"size"       json:"size"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
