package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	flag "github.com/spf13/pflag"

	"github.com/mohit83k/hotspot-console/internal/config"
	"github.com/mohit83k/hotspot-console/internal/logger"
	"github.com/mohit83k/hotspot-console/internal/redisclient"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	cfg, err := config.Resolve(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	log, err := logger.NewLogrusLogger(cfg.LogFilePath, cfg.LogLevel)
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}

	rdb := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	audit := redisclient.NewAuditStore(rdb)

	// Requires notify-keyspace-events to include "E$" on the server.
	pubsub := rdb.PSubscribe(ctx, "__keyevent@*__:set")
	log.Info("Started Redis subscriber for audit journal SET events")

	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down Redis subscriber")
			_ = pubsub.Close()
			return

		case msg := <-pubsub.Channel():
			if !strings.HasPrefix(msg.Payload, redisclient.AuditKeyPrefix) {
				continue
			}

			fields := map[string]any{
				"timestamp": time.Now().Format("2006-01-02 15:04:05.000000"),
				"key":       msg.Payload,
			}
			ev, err := audit.Get(ctx, msg.Payload)
			if err != nil {
				log.WithFields(fields).Warn("Audit key changed but could not be read: " + err.Error())
				continue
			}
			fields["event_id"] = ev.ID
			fields["action"] = ev.Action
			fields["username"] = ev.Username
			fields["groupname"] = ev.Group
			fields["actor"] = ev.Actor
			log.WithFields(fields).Info("Provisioning event")
		}
	}
}
