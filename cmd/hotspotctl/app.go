package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/mohit83k/hotspot-console/internal/accounting"
	"github.com/mohit83k/hotspot-console/internal/coa"
	"github.com/mohit83k/hotspot-console/internal/config"
	"github.com/mohit83k/hotspot-console/internal/correlation"
	"github.com/mohit83k/hotspot-console/internal/database"
	"github.com/mohit83k/hotspot-console/internal/device"
	"github.com/mohit83k/hotspot-console/internal/errs"
	"github.com/mohit83k/hotspot-console/internal/logger"
	"github.com/mohit83k/hotspot-console/internal/provisioning"
	"github.com/mohit83k/hotspot-console/internal/redisclient"
)

// app builds backends on first use so a command only touches what it needs.
type app struct {
	cfg   config.Config
	log   logger.Logger
	actor string

	db      *sql.DB
	store   *accounting.Store
	rdb     *redis.Client
	session *device.Session
	client  *device.Client
}

func newApp(cfg config.Config, log logger.Logger, actor string) *app {
	return &app{cfg: cfg, log: log, actor: actor}
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
}

func (a *app) accounting(ctx context.Context) (*accounting.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	db, err := database.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, errs.E(errs.KindStoreUnavailable, "hotspotctl", "accounting database unreachable", err)
	}
	a.db = db
	a.store = accounting.NewStore(db, a.cfg.Database.Driver, a.cfg.Database.QueryTimeout, a.log)
	return a.store, nil
}

// redis returns nil when no Redis address is configured.
func (a *app) redis() *redis.Client {
	if a.rdb == nil && a.cfg.Redis.Addr != "" {
		a.rdb = redisclient.NewClient(a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
	}
	return a.rdb
}

func (a *app) device() *device.Client {
	if a.client != nil {
		return a.client
	}
	sc := device.SessionConfig{
		BaseURL:  a.cfg.Device.BaseURL(),
		Username: a.cfg.Device.Username,
		Password: a.cfg.Device.Password,
		Timeout:  a.cfg.Device.Timeout,
	}
	if rdb := a.redis(); rdb != nil {
		sc.TokenCache = redisclient.NewTokenCache(rdb)
	}
	a.session = device.NewSession(sc, a.log)
	a.client = device.NewClient(a.session, a.log)
	return a.client
}

func (a *app) engine(ctx context.Context) (*correlation.Engine, error) {
	store, err := a.accounting(ctx)
	if err != nil {
		return nil, err
	}
	return correlation.NewEngine(a.device(), store, a.log), nil
}

func (a *app) workflow(ctx context.Context) (*provisioning.Workflow, error) {
	store, err := a.accounting(ctx)
	if err != nil {
		return nil, err
	}
	opts := []provisioning.Option{
		provisioning.WithDisconnector(coa.NewDisconnector(store, a.cfg.Radius.CoAPort, a.cfg.Radius.CoATimeout, a.log)),
	}
	if rdb := a.redis(); rdb != nil {
		opts = append(opts, provisioning.WithAudit(redisclient.NewAuditStore(rdb)))
	}
	return provisioning.NewWorkflow(store, a.log, opts...), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}
