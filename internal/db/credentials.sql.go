package db

import (
	"context"
	"database/sql"
)

const getCredential = `-- name: GetCredential :one
SELECT spotify_id, access_token, refresh_token, token_expiry, created_at, updated_at
FROM credentials
WHERE spotify_id = ?
`

func (q *Queries) GetCredential(ctx context.Context, spotifyID string) (Credential, error) {
	row := q.db.QueryRowContext(ctx, getCredential, spotifyID)
	var i Credential
	err := row.Scan(
		&i.SpotifyID,
		&i.AccessToken,
		&i.RefreshToken,
		&i.TokenExpiry,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertCredential = `-- name: UpsertCredential :exec
INSERT INTO credentials (spotify_id, access_token, refresh_token, token_expiry, created_at, updated_at)
VALUES (?1, ?2, ?3, ?4, ?5, ?5)
ON CONFLICT (spotify_id) DO UPDATE SET
    access_token = excluded.access_token,
    refresh_token = CASE WHEN excluded.refresh_token = '' THEN credentials.refresh_token ELSE excluded.refresh_token END,
    token_expiry = excluded.token_expiry,
    updated_at = excluded.updated_at
`

type UpsertCredentialParams struct {
	SpotifyID    string
	AccessToken  string
	RefreshToken string
	TokenExpiry  sql.NullInt64
	Now          int64
}

func (q *Queries) UpsertCredential(ctx context.Context, arg UpsertCredentialParams) error {
	_, err := q.db.ExecContext(ctx, upsertCredential,
		arg.SpotifyID,
		arg.AccessToken,
		arg.RefreshToken,
		arg.TokenExpiry,
		arg.Now,
	)
	return err
}
