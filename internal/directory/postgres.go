package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/globetalk/matchmaking/internal/apperr"
	"github.com/globetalk/matchmaking/internal/profile"
	"github.com/lib/pq"
)

// PostgresStore is the PostgreSQL-backed user directory. Profiles live in
// the user_profiles table created by the embedded migrations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a directory backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectProfile = `
	SELECT id, username, languages, region, hobbies, bio, matched_with
	FROM user_profiles`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*profile.UserProfile, error) {
	var p profile.UserProfile
	err := row.Scan(
		&p.ID,
		&p.Username,
		pq.Array(&p.Languages),
		&p.Region,
		pq.Array(&p.Hobbies),
		&p.Bio,
		pq.Array(&p.MatchedWith),
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Get returns the profile with the given id, or apperr.ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id string) (*profile.UserProfile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, selectProfile+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("directory: user %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Backend("directory: get "+id, err)
	}
	return p, nil
}

// FindByLanguageRegion returns every profile whose languages array contains
// language and whose region equals region, both compared exactly.
func (s *PostgresStore) FindByLanguageRegion(ctx context.Context, language, region string) ([]profile.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		selectProfile+` WHERE languages @> ARRAY[$1]::text[] AND region = $2`,
		language, region)
	if err != nil {
		return nil, apperr.Backend("directory: query candidates", err)
	}
	defer rows.Close()

	var out []profile.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, apperr.Backend("directory: scan candidate", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Backend("directory: iterate candidates", err)
	}
	return out, nil
}

// LinkMatch adds each id to the other's matched_with inside one transaction.
// Both rows are locked in id order so concurrent links of overlapping pairs
// cannot deadlock. Returns apperr.ErrConflict if either side already lists the
// other and apperr.ErrNotFound if either profile is missing.
func (s *PostgresStore) LinkMatch(ctx context.Context, a, b string) error {
	ids := []string{a, b}
	sort.Strings(ids)

	var conflict, missing bool
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, matched_with
			FROM user_profiles
			WHERE id = ANY($1)
			ORDER BY id
			FOR UPDATE`, pq.Array(ids))
		if err != nil {
			return err
		}
		history := make(map[string][]string, 2)
		for rows.Next() {
			var id string
			var matched []string
			if err := rows.Scan(&id, pq.Array(&matched)); err != nil {
				rows.Close()
				return err
			}
			history[id] = matched
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		histA, okA := history[a]
		histB, okB := history[b]
		if !okA || !okB {
			missing = true
			return errAbort
		}
		if contains(histA, b) || contains(histB, a) {
			conflict = true
			return errAbort
		}

		const appendMatch = `
			UPDATE user_profiles
			SET matched_with = array_append(matched_with, $2), updated_at = NOW()
			WHERE id = $1`
		if _, err := tx.ExecContext(ctx, appendMatch, a, b); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, appendMatch, b, a); err != nil {
			return err
		}
		return nil
	})

	switch {
	case missing:
		return fmt.Errorf("directory: link %s/%s: %w", a, b, apperr.ErrNotFound)
	case conflict:
		return fmt.Errorf("directory: %s and %s already matched: %w", a, b, apperr.ErrConflict)
	case err != nil:
		return apperr.Backend("directory: link match", err)
	}
	return nil
}

// errAbort rolls a transaction back without being reported as a storage failure.
var errAbort = errors.New("directory: abort")

// withTx runs fn inside a transaction, committing on nil and rolling back on
// error or panic.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
