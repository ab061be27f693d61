package db

import (
	"database/sql"
)

type Credential struct {
	SpotifyID    string
	AccessToken  string
	RefreshToken string
	TokenExpiry  sql.NullInt64
	CreatedAt    int64
	UpdatedAt    int64
}
