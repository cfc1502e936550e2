package accounting

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohit83k/hotspot-console/internal/errs"
	"github.com/mohit83k/hotspot-console/internal/model"
)

const acctColumns = `radacctid, acctsessionid, username, nasipaddress, COALESCE(nasportid, ''),
  acctstarttime, acctstoptime, COALESCE(acctsessiontime, 0),
  COALESCE(acctinputoctets, 0), COALESCE(acctoutputoctets, 0),
  COALESCE(acctterminatecause, ''), COALESCE(framedipaddress, ''), COALESCE(callingstationid, '')`

const nasColumns = `id, nasname, COALESCE(shortname, ''), type, COALESCE(ports, 0), secret,
  COALESCE(server, ''), COALESCE(community, ''), COALESCE(description, '')`

// ActiveSessions returns every open accounting session, newest first.
func (s *Store) ActiveSessions(ctx context.Context) (recs []model.AccountingRecord, err error) {
	const op = "accounting.ActiveSessions"
	defer s.observe(op, time.Now(), &err)

	return s.queryAccounting(ctx, op,
		`SELECT `+acctColumns+` FROM radacct WHERE acctstoptime IS NULL ORDER BY acctstarttime DESC, radacctid DESC`)
}

// SessionsForUser returns the username's sessions, newest first. A
// non-positive limit means 50.
func (s *Store) SessionsForUser(ctx context.Context, username string, limit int) (recs []model.AccountingRecord, err error) {
	const op = "accounting.SessionsForUser"
	defer s.observe(op, time.Now(), &err)

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.queryAccounting(ctx, op,
		`SELECT `+acctColumns+` FROM radacct WHERE username = $1 ORDER BY acctstarttime DESC, radacctid DESC LIMIT $2`,
		username, limit)
}

// BillingHistory returns closed sessions, newest first. A non-positive
// limit means 100.
func (s *Store) BillingHistory(ctx context.Context, limit int) (recs []model.AccountingRecord, err error) {
	const op = "accounting.BillingHistory"
	defer s.observe(op, time.Now(), &err)

	if limit <= 0 {
		limit = defaultBillingLimit
	}
	return s.queryAccounting(ctx, op,
		`SELECT `+acctColumns+` FROM radacct WHERE acctstoptime IS NOT NULL ORDER BY acctstarttime DESC, radacctid DESC LIMIT $1`,
		limit)
}

func (s *Store) queryAccounting(ctx context.Context, op, query string, args ...any) ([]model.AccountingRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, "failed to query sessions", err)
	}
	defer rows.Close()

	recs := []model.AccountingRecord{}
	for rows.Next() {
		var (
			r           model.AccountingRecord
			start, stop sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Username, &r.NASIPAddress, &r.NASPortID,
			&start, &stop, &r.SessionTime, &r.InputOctets, &r.OutputOctets,
			&r.TerminateCause, &r.FramedIPAddress, &r.CallingStationID); err != nil {
			return nil, storeErr(op, "failed to read session", err)
		}
		r.StartTime = nullTimePtr(start)
		r.StopTime = nullTimePtr(stop)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, "failed to read sessions", err)
	}
	return recs, nil
}

// NASList returns every registered NAS ordered by address.
func (s *Store) NASList(ctx context.Context) (list []model.NAS, err error) {
	const op = "accounting.NASList"
	defer s.observe(op, time.Now(), &err)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+nasColumns+` FROM nas ORDER BY nasname`)
	if err != nil {
		return nil, storeErr(op, "failed to query nas", err)
	}
	defer rows.Close()

	list = []model.NAS{}
	for rows.Next() {
		n, err := scanNAS(rows)
		if err != nil {
			return nil, storeErr(op, "failed to read nas", err)
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, "failed to read nas", err)
	}
	return list, nil
}

// NASByAddress looks a NAS up by its nasname, which holds its IP address.
func (s *Store) NASByAddress(ctx context.Context, addr string) (n model.NAS, err error) {
	const op = "accounting.NASByAddress"
	defer s.observe(op, time.Now(), &err)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err = scanNAS(s.db.QueryRowContext(ctx, `SELECT `+nasColumns+` FROM nas WHERE nasname = $1`, addr))
	if errors.Is(err, sql.ErrNoRows) {
		return model.NAS{}, errs.E(errs.KindNotFound, op, "no such nas: "+addr, nil)
	}
	if err != nil {
		return model.NAS{}, storeErr(op, "failed to query nas", err)
	}
	return n, nil
}

// CreateNAS registers a NAS.
func (s *Store) CreateNAS(ctx context.Context, n model.NAS) (created model.NAS, err error) {
	const op = "accounting.CreateNAS"
	defer s.observe(op, time.Now(), &err)

	if n.Name == "" || n.Secret == "" {
		return model.NAS{}, errs.E(errs.KindValidation, op, "nas address and secret are required", nil)
	}
	if n.Type == "" {
		n.Type = "other"
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO nas (nasname, shortname, type, ports, secret, server, community, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		n.Name, n.ShortName, n.Type, n.Ports, n.Secret, n.Server, n.Community, n.Description,
	).Scan(&n.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return model.NAS{}, errs.E(errs.KindValidation, op, "nas already registered: "+n.Name, err)
		}
		return model.NAS{}, storeErr(op, "failed to insert nas", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNAS(row rowScanner) (model.NAS, error) {
	var n model.NAS
	err := row.Scan(&n.ID, &n.Name, &n.ShortName, &n.Type, &n.Ports, &n.Secret, &n.Server, &n.Community, &n.Description)
	return n, err
}

// DistinctGroups returns every group name in use, sorted.
func (s *Store) DistinctGroups(ctx context.Context) (groups []string, err error) {
	const op = "accounting.DistinctGroups"
	defer s.observe(op, time.Now(), &err)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT groupname FROM radusergroup ORDER BY groupname`)
	if err != nil {
		return nil, storeErr(op, "failed to query groups", err)
	}
	defer rows.Close()

	groups = []string{}
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, storeErr(op, "failed to read group", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, "failed to read groups", err)
	}
	return groups, nil
}

// GroupMemberships returns every username to group row.
func (s *Store) GroupMemberships(ctx context.Context) (list []model.GroupMembership, err error) {
	const op = "accounting.GroupMemberships"
	defer s.observe(op, time.Now(), &err)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT username, groupname, priority FROM radusergroup ORDER BY username, priority, id`)
	if err != nil {
		return nil, storeErr(op, "failed to query memberships", err)
	}
	defer rows.Close()

	list = []model.GroupMembership{}
	for rows.Next() {
		var m model.GroupMembership
		if err := rows.Scan(&m.Username, &m.Groupname, &m.Priority); err != nil {
			return nil, storeErr(op, "failed to read membership", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, "failed to read memberships", err)
	}
	return list, nil
}

// DashboardCounters runs the four counts concurrently. They are independent
// reads, not one snapshot.
func (s *Store) DashboardCounters(ctx context.Context) (c model.DashboardCounters, err error) {
	const op = "accounting.DashboardCounters"
	defer s.observe(op, time.Now(), &err)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).UTC()

	count := func(dst *int64, query string, args ...any) func() error {
		return func() error {
			if err := s.db.QueryRowContext(ctx, query, args...).Scan(dst); err != nil {
				return storeErr(op, "failed to count", err)
			}
			return nil
		}
	}

	var g errgroup.Group
	g.Go(count(&c.TotalUsers, `SELECT COUNT(DISTINCT username) FROM radcheck`))
	g.Go(count(&c.ActiveSessions, `SELECT COUNT(*) FROM radacct WHERE acctstoptime IS NULL`))
	g.Go(count(&c.TotalNAS, `SELECT COUNT(*) FROM nas`))
	g.Go(count(&c.TodaySessions, `SELECT COUNT(*) FROM radacct WHERE acctstarttime >= $1`, today))
	if err := g.Wait(); err != nil {
		return model.DashboardCounters{}, err
	}
	return c, nil
}
