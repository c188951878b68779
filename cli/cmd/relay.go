package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/telhawk-systems/telhawk-beacon/common/logging"
	beaconnats "github.com/telhawk-systems/telhawk-beacon/common/messaging/nats"
	"github.com/telhawk-systems/telhawk-beacon/internal/client"
	"github.com/telhawk-systems/telhawk-beacon/internal/relay"
)

// relayConn is a relay module with the connections it runs on.
type relayConn struct {
	js     *beaconnats.JetStreamClient
	store  *relay.Store
	stream beaconnats.StreamConfig
	module *relay.Module
}

func (a *app) natsConfig() beaconnats.Config {
	natsCfg := beaconnats.DefaultConfig()
	natsCfg.URL = a.cfg.Relay.NATSURL
	natsCfg.Name = "beacon-cli"
	natsCfg.MaxReconnects = 3
	natsCfg.Timeout = a.cfg.Relay.Timeout
	natsCfg.Logger = a.logger
	return natsCfg
}

// connectRelay connects to NATS and Redis and builds the relay module.
func (a *app) connectRelay(ctx context.Context) (*relayConn, error) {
	js, err := beaconnats.NewJetStreamClient(a.natsConfig())
	if err != nil {
		return nil, err
	}

	store, err := relay.NewStore(ctx, a.cfg.Relay.RedisURL, relay.DefaultKeyPrefix)
	if err != nil {
		_ = js.Close()
		return nil, err
	}

	stream := beaconnats.EnvelopesStream(a.cfg.Relay.Stream, a.cfg.Relay.SubjectPrefix)
	publisher := relay.NewJetStreamPublisher(js, stream)

	return &relayConn{
		js:     js,
		store:  store,
		stream: stream,
		module: relay.New(a.cfg.RelayOptions(), store, publisher, a.logger),
	}, nil
}

func (r *relayConn) Close() error {
	return errors.Join(r.store.Close(), r.js.Drain())
}

// startClient builds a client on the relay and starts its native layer.
func (a *app) startClient(ctx context.Context, conn *relayConn) (*client.Client, error) {
	opts := a.cfg.ClientOptions()
	var initErr error
	opts.OnNativeInitFailure = func(err error) { initErr = err }

	c := client.New(conn.module, opts, a.logger)
	if !c.Init(ctx) {
		_ = c.Close(ctx)
		if initErr != nil {
			return nil, fmt.Errorf("native layer failed to start: %w", initErr)
		}
		return nil, errors.New("native layer failed to start")
	}
	a.logger.DebugContext(ctx, "client started", logging.Component("cli"), "release", opts.Release)
	return c, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
