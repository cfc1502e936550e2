package accounting

import (
	"context"
	"time"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS radcheck (
  id BIGSERIAL PRIMARY KEY,
  username VARCHAR(64) NOT NULL DEFAULT '',
  attribute VARCHAR(64) NOT NULL DEFAULT '',
  op VARCHAR(2) NOT NULL DEFAULT '==',
  value VARCHAR(253) NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE,
  updated_at TIMESTAMP WITH TIME ZONE
);
CREATE UNIQUE INDEX IF NOT EXISTS radcheck_username_attribute ON radcheck (username, attribute);

CREATE TABLE IF NOT EXISTS radusergroup (
  id BIGSERIAL PRIMARY KEY,
  username VARCHAR(64) NOT NULL DEFAULT '',
  groupname VARCHAR(64) NOT NULL DEFAULT '',
  priority INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS radusergroup_username ON radusergroup (username);

CREATE TABLE IF NOT EXISTS radacct (
  radacctid BIGSERIAL PRIMARY KEY,
  acctsessionid VARCHAR(64) NOT NULL DEFAULT '',
  username VARCHAR(253) NOT NULL DEFAULT '',
  nasipaddress VARCHAR(45) NOT NULL DEFAULT '',
  nasportid VARCHAR(32),
  acctstarttime TIMESTAMP WITH TIME ZONE,
  acctstoptime TIMESTAMP WITH TIME ZONE,
  acctsessiontime BIGINT,
  acctinputoctets BIGINT,
  acctoutputoctets BIGINT,
  acctterminatecause VARCHAR(32),
  framedipaddress VARCHAR(45),
  callingstationid VARCHAR(50),
  calledstationid VARCHAR(50)
);
CREATE INDEX IF NOT EXISTS radacct_username ON radacct (username);
CREATE INDEX IF NOT EXISTS radacct_start ON radacct (acctstarttime);
CREATE INDEX IF NOT EXISTS radacct_session ON radacct (acctsessionid, nasipaddress);

CREATE TABLE IF NOT EXISTS nas (
  id BIGSERIAL PRIMARY KEY,
  nasname VARCHAR(128) NOT NULL UNIQUE,
  shortname VARCHAR(32),
  type VARCHAR(30) NOT NULL DEFAULT 'other',
  ports INTEGER,
  secret VARCHAR(60) NOT NULL,
  server VARCHAR(64),
  community VARCHAR(50),
  description VARCHAR(200)
);`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS radcheck (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  username TEXT NOT NULL DEFAULT '',
  attribute TEXT NOT NULL DEFAULT '',
  op TEXT NOT NULL DEFAULT '==',
  value TEXT NOT NULL DEFAULT '',
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS radcheck_username_attribute ON radcheck (username, attribute);

CREATE TABLE IF NOT EXISTS radusergroup (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  username TEXT NOT NULL DEFAULT '',
  groupname TEXT NOT NULL DEFAULT '',
  priority INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS radusergroup_username ON radusergroup (username);

CREATE TABLE IF NOT EXISTS radacct (
  radacctid INTEGER PRIMARY KEY AUTOINCREMENT,
  acctsessionid TEXT NOT NULL DEFAULT '',
  username TEXT NOT NULL DEFAULT '',
  nasipaddress TEXT NOT NULL DEFAULT '',
  nasportid TEXT,
  acctstarttime DATETIME,
  acctstoptime DATETIME,
  acctsessiontime INTEGER,
  acctinputoctets INTEGER,
  acctoutputoctets INTEGER,
  acctterminatecause TEXT,
  framedipaddress TEXT,
  callingstationid TEXT,
  calledstationid TEXT
);
CREATE INDEX IF NOT EXISTS radacct_username ON radacct (username);
CREATE INDEX IF NOT EXISTS radacct_start ON radacct (acctstarttime);
CREATE INDEX IF NOT EXISTS radacct_session ON radacct (acctsessionid, nasipaddress);

CREATE TABLE IF NOT EXISTS nas (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  nasname TEXT NOT NULL UNIQUE,
  shortname TEXT,
  type TEXT NOT NULL DEFAULT 'other',
  ports INTEGER,
  secret TEXT NOT NULL,
  server TEXT,
  community TEXT,
  description TEXT
);`

// Migrate creates the accounting tables when they do not exist yet. An
// existing FreeRADIUS schema is left as is.
func (s *Store) Migrate(ctx context.Context) (err error) {
	const op = "accounting.Migrate"
	defer s.observe(op, time.Now(), &err)

	ddl := postgresSchema
	if s.dialect == DialectSQLite {
		ddl = sqliteSchema
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return storeErr(op, "failed to create schema", err)
	}
	s.log.WithFields(map[string]any{"dialect": string(s.dialect)}).Info("Accounting schema ready")
	return nil
}
