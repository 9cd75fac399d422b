package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/rtprovision/internal/domain/model"
	"github.com/ericfisherdev/rtprovision/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// Token and cookie blob are encrypted with AES-256-GCM before write and
// decrypted after read. Timestamps are stored as unix milliseconds.
type CredentialRepo struct {
	db     *DB
	sealer sealer
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for
// AES-256-GCM, or nil, in which case every operation that touches secrets
// returns driven.ErrEncryptionKeyNotSet.
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, sealer: sealer{key: key}}
}

// Save deactivates all active credentials and inserts cred as the active one
// inside a single transaction on the writer connection.
func (r *CredentialRepo) Save(ctx context.Context, cred model.Credential) (model.Credential, error) {
	token, err := r.sealer.seal(cred.Token)
	if err != nil {
		return model.Credential{}, err
	}
	cookies, err := r.sealer.seal(cred.CookieBlob)
	if err != nil {
		return model.Credential{}, err
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return model.Credential{}, fmt.Errorf("begin save credential: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE session_credentials SET active = 0 WHERE active = 1`); err != nil {
		return model.Credential{}, fmt.Errorf("deactivate credentials: %w", err)
	}

	const insert = `INSERT INTO session_credentials (token, cookie_blob, issued_at, expires_at, active) VALUES (?, ?, ?, ?, 1)`
	res, err := tx.ExecContext(ctx, insert, token, cookies, cred.IssuedAt.UnixMilli(), cred.ExpiresAt.UnixMilli())
	if err != nil {
		return model.Credential{}, fmt.Errorf("insert credential: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return model.Credential{}, fmt.Errorf("credential id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Credential{}, fmt.Errorf("commit save credential: %w", err)
	}

	cred.ID = id
	cred.Active = true
	return cred, nil
}

// GetActive returns the active credential that expires after now.
// Returns (nil, nil) if there is none.
func (r *CredentialRepo) GetActive(ctx context.Context, now time.Time) (*model.Credential, error) {
	const query = `SELECT id, token, cookie_blob, issued_at, expires_at, active
		FROM session_credentials
		WHERE active = 1 AND expires_at > ?
		ORDER BY issued_at DESC
		LIMIT 1`

	cred, err := r.scan(r.db.Reader.QueryRowContext(ctx, query, now.UnixMilli()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active credential: %w", err)
	}
	return &cred, nil
}

// List returns every stored credential, newest first.
func (r *CredentialRepo) List(ctx context.Context) ([]model.Credential, error) {
	const query = `SELECT id, token, cookie_blob, issued_at, expires_at, active
		FROM session_credentials
		ORDER BY id DESC`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	creds := []model.Credential{}
	for rows.Next() {
		cred, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// PurgeAll deletes every credential and returns the number of rows removed.
func (r *CredentialRepo) PurgeAll(ctx context.Context) (int64, error) {
	res, err := r.db.Writer.ExecContext(ctx, `DELETE FROM session_credentials`)
	if err != nil {
		return 0, fmt.Errorf("purge credentials: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge credentials rows affected: %w", err)
	}
	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (r *CredentialRepo) scan(row rowScanner) (model.Credential, error) {
	var (
		cred                model.Credential
		token, cookies      string
		issuedAt, expiresAt int64
		active              int
	)
	if err := row.Scan(&cred.ID, &token, &cookies, &issuedAt, &expiresAt, &active); err != nil {
		return model.Credential{}, err
	}

	var err error
	if cred.Token, err = r.sealer.open(token); err != nil {
		return model.Credential{}, fmt.Errorf("decrypt token for credential %d: %w", cred.ID, err)
	}
	if cred.CookieBlob, err = r.sealer.open(cookies); err != nil {
		return model.Credential{}, fmt.Errorf("decrypt cookies for credential %d: %w", cred.ID, err)
	}

	cred.IssuedAt = time.UnixMilli(issuedAt).UTC()
	cred.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	cred.Active = active == 1
	return cred, nil
}
