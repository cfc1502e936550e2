package accounting

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mohit83k/hotspot-console/internal/errs"
	"github.com/mohit83k/hotspot-console/internal/model"
)

const credentialColumns = `rc.id, rc.username, rc.attribute, rc.op, rc.value,
  COALESCE((SELECT g.groupname FROM radusergroup g WHERE g.username = rc.username ORDER BY g.priority, g.id LIMIT 1), ''),
  rc.created_at, rc.updated_at`

// CreateCredential inserts the password row and the group membership row for
// a new username in one transaction.
func (s *Store) CreateCredential(ctx context.Context, username, password, group string) (cred model.Credential, err error) {
	const op = "accounting.CreateCredential"
	defer s.observe(op, time.Now(), &err)

	now := s.now()
	cred = model.Credential{Username: username, Group: group, CreatedAt: now, UpdatedAt: now}

	err = s.withTx(ctx, op, func(ctx context.Context, tx *sql.Tx) error {
		exists, err := credentialExists(ctx, tx, username)
		if err != nil {
			return storeErr(op, "failed to check username", err)
		}
		if exists {
			return errs.E(errs.KindDuplicateUsername, op, "username already exists: "+username, nil)
		}

		var id int64
		err = tx.QueryRowContext(ctx,
			`INSERT INTO radcheck (username, attribute, op, value, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			username, model.AttrCleartextPassword, model.OpSet, password, now, now,
		).Scan(&id)
		if err != nil {
			return storeErr(op, "failed to insert password", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO radusergroup (username, groupname, priority) VALUES ($1, $2, 1)`,
			username, group,
		); err != nil {
			return storeErr(op, "failed to insert group membership", err)
		}

		cred.Attributes = []model.CheckAttribute{{
			ID:        id,
			Attribute: model.AttrCleartextPassword,
			Op:        model.OpSet,
			Value:     password,
		}}
		return nil
	})
	if err != nil {
		return model.Credential{}, err
	}
	return cred, nil
}

// UpdateCredential changes the password and/or the group of an existing
// username. Fields left nil are not touched. Missing rows for a provided
// field are inserted.
func (s *Store) UpdateCredential(ctx context.Context, username string, upd model.CredentialUpdate) (err error) {
	const op = "accounting.UpdateCredential"
	defer s.observe(op, time.Now(), &err)

	now := s.now()
	return s.withTx(ctx, op, func(ctx context.Context, tx *sql.Tx) error {
		exists, err := credentialExists(ctx, tx, username)
		if err != nil {
			return storeErr(op, "failed to check username", err)
		}
		if !exists {
			return errs.E(errs.KindNotFound, op, "no such user: "+username, nil)
		}

		if upd.Password != nil {
			res, err := tx.ExecContext(ctx,
				`UPDATE radcheck SET value = $1, op = $2, updated_at = $3 WHERE username = $4 AND attribute = $5`,
				*upd.Password, model.OpSet, now, username, model.AttrCleartextPassword,
			)
			if err != nil {
				return storeErr(op, "failed to update password", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO radcheck (username, attribute, op, value, created_at, updated_at)
					 VALUES ($1, $2, $3, $4, $5, $6)`,
					username, model.AttrCleartextPassword, model.OpSet, *upd.Password, now, now,
				); err != nil {
					return storeErr(op, "failed to insert password", err)
				}
			}
		}

		if upd.Group != nil {
			if err := setPrimaryGroup(ctx, tx, username, *upd.Group); err != nil {
				return storeErr(op, "failed to update group", err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE radcheck SET updated_at = $1 WHERE username = $2`, now, username,
			); err != nil {
				return storeErr(op, "failed to touch credential", err)
			}
		}
		return nil
	})
}

// DeleteCredential removes the username's check rows, group rows and its
// whole accounting history in one transaction.
func (s *Store) DeleteCredential(ctx context.Context, username string) (err error) {
	const op = "accounting.DeleteCredential"
	defer s.observe(op, time.Now(), &err)

	var checks, groups, history int64
	err = s.withTx(ctx, op, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		if checks, err = execCount(ctx, tx, `DELETE FROM radcheck WHERE username = $1`, username); err != nil {
			return storeErr(op, "failed to delete check attributes", err)
		}
		if groups, err = execCount(ctx, tx, `DELETE FROM radusergroup WHERE username = $1`, username); err != nil {
			return storeErr(op, "failed to delete group membership", err)
		}
		if checks+groups == 0 {
			return errs.E(errs.KindNotFound, op, "no such user: "+username, nil)
		}
		if history, err = execCount(ctx, tx, `DELETE FROM radacct WHERE username = $1`, username); err != nil {
			return storeErr(op, "failed to delete accounting history", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.WithFields(map[string]any{
		"username":        username,
		"check_rows":      checks,
		"group_rows":      groups,
		"accounting_rows": history,
	}).Info("Credential deleted")
	return nil
}

// GetUserByUsername returns the username's check attributes and group.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (cred model.Credential, err error) {
	const op = "accounting.GetUserByUsername"
	defer s.observe(op, time.Now(), &err)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM radcheck rc WHERE rc.username = $1 ORDER BY rc.id`, username)
	if err != nil {
		return model.Credential{}, storeErr(op, "failed to query user", err)
	}
	defer rows.Close()

	creds, err := scanCredentials(rows)
	if err != nil {
		return model.Credential{}, storeErr(op, "failed to read user", err)
	}
	if len(creds) == 0 {
		return model.Credential{}, errs.E(errs.KindNotFound, op, "no such user: "+username, nil)
	}
	return creds[0], nil
}

// Users lists every credential ordered by username.
func (s *Store) Users(ctx context.Context) (creds []model.Credential, err error) {
	const op = "accounting.Users"
	defer s.observe(op, time.Now(), &err)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM radcheck rc ORDER BY rc.username, rc.id`)
	if err != nil {
		return nil, storeErr(op, "failed to query users", err)
	}
	defer rows.Close()

	creds, err = scanCredentials(rows)
	if err != nil {
		return nil, storeErr(op, "failed to read users", err)
	}
	return creds, nil
}

// scanCredentials folds rows ordered by username into one Credential per
// username.
func scanCredentials(rows *sql.Rows) ([]model.Credential, error) {
	var out []model.Credential
	for rows.Next() {
		var (
			attr             model.CheckAttribute
			username, group  string
			created, updated sql.NullTime
		)
		if err := rows.Scan(&attr.ID, &username, &attr.Attribute, &attr.Op, &attr.Value, &group, &created, &updated); err != nil {
			return nil, err
		}

		if n := len(out); n == 0 || out[n-1].Username != username {
			out = append(out, model.Credential{Username: username, Group: group})
		}
		cur := &out[len(out)-1]
		cur.Attributes = append(cur.Attributes, attr)
		if created.Valid && (cur.CreatedAt.IsZero() || created.Time.Before(cur.CreatedAt)) {
			cur.CreatedAt = created.Time.UTC()
		}
		if updated.Valid && updated.Time.After(cur.UpdatedAt) {
			cur.UpdatedAt = updated.Time.UTC()
		}
	}
	return out, rows.Err()
}

// setPrimaryGroup rewrites the user's highest-priority membership, the one
// credential reads report, and drops other rows that already name group.
// Secondary memberships are kept.
func setPrimaryGroup(ctx context.Context, tx *sql.Tx, username, group string) error {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM radusergroup WHERE username = $1 ORDER BY priority, id LIMIT 1`, username,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO radusergroup (username, groupname, priority) VALUES ($1, $2, 1)`, username, group)
		return err
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE radusergroup SET groupname = $1 WHERE id = $2`, group, id); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM radusergroup WHERE username = $1 AND groupname = $2 AND id <> $3`, username, group, id)
	return err
}

func credentialExists(ctx context.Context, tx *sql.Tx, username string) (bool, error) {
	var n int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM radcheck WHERE username = $1`, username).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func execCount(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
