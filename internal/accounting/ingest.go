package accounting

import (
	"context"
	"database/sql"
	"time"

	"github.com/mohit83k/hotspot-console/internal/errs"
	"github.com/mohit83k/hotspot-console/internal/model"
)

// NAS lifecycle status types. Either one closes every session the NAS still
// has open.
const (
	AcctStatusOn  = "Accounting-On"
	AcctStatusOff = "Accounting-Off"
)

const causeNASReboot = "NAS-Reboot"

// ApplyAccounting records one Accounting-Request. Start opens a row, Interim
// refreshes counters on the open row and Stop closes it. A closed row is
// never modified again, so late or retransmitted packets for a closed
// session are dropped.
func (s *Store) ApplyAccounting(ctx context.Context, req model.AccountingRequest) (err error) {
	const op = "accounting.ApplyAccounting"
	defer s.observe(op, time.Now(), &err)

	if req.EventTime.IsZero() {
		req.EventTime = s.now()
	}
	req.EventTime = req.EventTime.UTC()

	switch req.StatusType {
	case model.AcctStatusStart, model.AcctStatusInterim, model.AcctStatusStop:
		if req.SessionID == "" || req.NASIPAddress == "" {
			return errs.E(errs.KindValidation, op, "session id and nas address are required", nil)
		}
	case AcctStatusOn, AcctStatusOff:
		if req.NASIPAddress == "" {
			return errs.E(errs.KindValidation, op, "nas address is required", nil)
		}
		return s.closeNASSessions(ctx, op, req)
	default:
		return errs.E(errs.KindValidation, op, "unsupported status type: "+req.StatusType, nil)
	}

	return s.withTx(ctx, op, func(ctx context.Context, tx *sql.Tx) error {
		state, err := sessionState(ctx, tx, req)
		if err != nil {
			return storeErr(op, "failed to look up session", err)
		}

		if state == sessionClosed {
			s.log.WithFields(map[string]any{
				"session_id": req.SessionID,
				"username":   req.Username,
				"status":     req.StatusType,
			}).Warn("Dropping accounting update for closed session")
			return nil
		}

		switch req.StatusType {
		case model.AcctStatusStart:
			if state == sessionOpen {
				return nil
			}
			return insertSession(ctx, tx, op, req, req.EventTime, nil)

		case model.AcctStatusInterim:
			if state == sessionMissing {
				return insertSession(ctx, tx, op, req, startFromElapsed(req), nil)
			}
			_, err := tx.ExecContext(ctx,
				`UPDATE radacct SET acctsessiontime = $1, acctinputoctets = $2, acctoutputoctets = $3,
				   framedipaddress = COALESCE(NULLIF($4, ''), framedipaddress)
				 WHERE acctsessionid = $5 AND username = $6 AND nasipaddress = $7 AND acctstoptime IS NULL`,
				req.SessionTime, req.InputOctets, req.OutputOctets, req.FramedIPAddress,
				req.SessionID, req.Username, req.NASIPAddress,
			)
			if err != nil {
				return storeErr(op, "failed to update session", err)
			}
			return nil

		default: // Stop
			if state == sessionMissing {
				stop := req.EventTime
				return insertSession(ctx, tx, op, req, startFromElapsed(req), &stop)
			}
			_, err := tx.ExecContext(ctx,
				`UPDATE radacct SET acctstoptime = $1, acctsessiontime = $2, acctinputoctets = $3,
				   acctoutputoctets = $4, acctterminatecause = $5
				 WHERE acctsessionid = $6 AND username = $7 AND nasipaddress = $8 AND acctstoptime IS NULL`,
				req.EventTime, req.SessionTime, req.InputOctets, req.OutputOctets, req.TerminateCause,
				req.SessionID, req.Username, req.NASIPAddress,
			)
			if err != nil {
				return storeErr(op, "failed to close session", err)
			}
			return nil
		}
	})
}

func (s *Store) closeNASSessions(ctx context.Context, op string, req model.AccountingRequest) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE radacct SET acctstoptime = $1, acctterminatecause = $2
		 WHERE nasipaddress = $3 AND acctstoptime IS NULL`,
		req.EventTime, causeNASReboot, req.NASIPAddress,
	)
	if err != nil {
		return storeErr(op, "failed to close nas sessions", err)
	}
	n, _ := res.RowsAffected()
	s.log.WithFields(map[string]any{
		"nas":    req.NASIPAddress,
		"status": req.StatusType,
		"closed": n,
	}).Info("Closed open sessions for NAS")
	return nil
}

type sessionStatus int

const (
	sessionMissing sessionStatus = iota
	sessionOpen
	sessionClosed
)

func sessionState(ctx context.Context, tx *sql.Tx, req model.AccountingRequest) (sessionStatus, error) {
	var open, closed int64
	err := tx.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN acctstoptime IS NULL THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN acctstoptime IS NOT NULL THEN 1 ELSE 0 END), 0)
		 FROM radacct WHERE acctsessionid = $1 AND username = $2 AND nasipaddress = $3`,
		req.SessionID, req.Username, req.NASIPAddress,
	).Scan(&open, &closed)
	switch {
	case err != nil:
		return sessionMissing, err
	case open > 0:
		return sessionOpen, nil
	case closed > 0:
		return sessionClosed, nil
	default:
		return sessionMissing, nil
	}
}

func insertSession(ctx context.Context, tx *sql.Tx, op string, req model.AccountingRequest, start time.Time, stop *time.Time) error {
	var stopArg any
	if stop != nil {
		stopArg = *stop
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO radacct (acctsessionid, username, nasipaddress, nasportid, acctstarttime, acctstoptime,
		   acctsessiontime, acctinputoctets, acctoutputoctets, acctterminatecause,
		   framedipaddress, callingstationid, calledstationid)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		req.SessionID, req.Username, req.NASIPAddress, req.NASPortID, start, stopArg,
		req.SessionTime, req.InputOctets, req.OutputOctets, req.TerminateCause,
		req.FramedIPAddress, req.CallingStationID, req.CalledStationID,
	)
	if err != nil {
		return storeErr(op, "failed to insert session", err)
	}
	return nil
}

// startFromElapsed back-dates the start of a session first seen mid-flight.
func startFromElapsed(req model.AccountingRequest) time.Time {
	return req.EventTime.Add(-time.Duration(req.SessionTime) * time.Second)
}
