package accounting

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/mohit83k/hotspot-console/internal/errs"
	"github.com/mohit83k/hotspot-console/internal/model"
)

// stalledDriver accepts transactions but never answers a statement until
// the statement's own context is done.
type stalledDriver struct{}

func (stalledDriver) Open(string) (driver.Conn, error) { return stalledConn{}, nil }

type stalledConn struct{}

func (stalledConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}
func (stalledConn) Close() error              { return nil }
func (stalledConn) Begin() (driver.Tx, error) { return stalledTx{}, nil }
func (stalledConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return stalledTx{}, nil
}
func (stalledConn) QueryContext(ctx context.Context, _ string, _ []driver.NamedValue) (driver.Rows, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (stalledConn) ExecContext(ctx context.Context, _ string, _ []driver.NamedValue) (driver.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type stalledTx struct{}

func (stalledTx) Commit() error   { return nil }
func (stalledTx) Rollback() error { return nil }

func init() {
	sql.Register("stalled", stalledDriver{})
}

func TestWrites_FailWhenDatabaseStalls(t *testing.T) {
	db, err := sql.Open("stalled", "")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := NewStore(db, "postgres", 200*time.Millisecond, &mockLogger{})
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"read", func() error { _, err := s.ActiveSessions(ctx); return err }},
		{"create", func() error { _, err := s.CreateCredential(ctx, "alice", "pw", "users"); return err }},
		{"update", func() error {
			return s.UpdateCredential(ctx, "alice", model.CredentialUpdate{Password: strPtr("pw2")})
		}},
		{"delete", func() error { return s.DeleteCredential(ctx, "alice") }},
		{"accounting", func() error {
			return s.ApplyAccounting(ctx, model.AccountingRequest{
				StatusType: model.AcctStatusStart, SessionID: "s1", Username: "alice", NASIPAddress: "10.0.0.1",
			})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan error, 1)
			go func() { done <- tt.call() }()

			select {
			case err := <-done:
				if !errs.Is(err, errs.KindStoreUnavailable) {
					t.Errorf("expected store unavailable, got %v", err)
				}
			case <-time.After(3 * time.Second):
				t.Fatal("still blocked 3s after a 200ms query timeout")
			}
		})
	}
}
