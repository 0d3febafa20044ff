// Command tripmaster runs one TM replica. Invocation takes a single
// positional argument, the replica id (§6); everything else is
// provisioned via environment variables, since configuration parsing
// proper is out of scope for this engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/spire-resilient-systems/spire-sub004/tm"
	"github.com/spire-resilient-systems/spire-sub004/tm/bench"
	"github.com/spire-resilient-systems/spire-sub004/tm/rsasig"
	"github.com/spire-resilient-systems/spire-sub004/tm/scheduler"
	"github.com/spire-resilient-systems/spire-sub004/tm/threshold"
	"github.com/spire-resilient-systems/spire-sub004/tmlog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tripmaster:", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) != 2 {
		return fmt.Errorf("usage: %s <replica-id>", os.Args[0])
	}
	idArg, err := strconv.ParseUint(os.Args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid replica id %q: %w", os.Args[1], err)
	}

	cfg, err := loadConfigFromEnv()
	if err != nil {
		return err
	}

	log, err := tmlog.New()
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	params, err := tm.NewParams(uint32(idArg), cfg.n, cfg.f, cfg.k, cfg.mode)
	if err != nil {
		return fmt.Errorf("misconfiguration: %w", err)
	}

	reg := prometheus.NewRegistry()
	stats, err := bench.NewStats(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	inbound := make(chan tm.Inbound, 256)
	transport, err := tm.NewUDPTransport(cfg.relaySocketPath, cfg.externalAddr, cfg.internalAddr, cfg.proxyAddr, cfg.peerAddrs, inbound, log)
	if err != nil {
		return fmt.Errorf("binding sockets: %w", err)
	}

	sched := scheduler.NewQueue()
	replica := tm.NewReplica(params, log, tm.SystemClock, transport, sched, stats)

	switch params.Mode {
	case tm.ModeThresholdFlood:
		pub, err := threshold.LoadPublicPoly(cfg.thresholdPubPath)
		if err != nil {
			return fmt.Errorf("crypto init: %w", err)
		}
		ownTrip, err := threshold.LoadPrivateShare(cfg.thresholdShareTripPath, int(params.ID)-1)
		if err != nil {
			return fmt.Errorf("crypto init: %w", err)
		}
		ownClose, err := threshold.LoadPrivateShare(cfg.thresholdShareClosePath, int(params.ID)-1)
		if err != nil {
			return fmt.Errorf("crypto init: %w", err)
		}
		scheme := threshold.NewScheme(pub)
		tripAgg := threshold.NewAggregator(scheme, params.N, params.SharesPerMsg, int(params.ID), params.Quorum())
		closeAgg := threshold.NewAggregator(scheme, params.N, params.SharesPerMsg, int(params.ID), params.Quorum())
		replica.WithThreshold(scheme, tripAgg, closeAgg, ownTrip, ownClose)
	case tm.ModeRelaySigned:
		priv, err := rsasig.LoadPrivateKeyPEM(cfg.rsaPrivatePath)
		if err != nil {
			return fmt.Errorf("crypto init: %w", err)
		}
		ks := rsasig.NewKeyStore(priv)
		for id, path := range cfg.rsaPeerPublicPaths {
			pub, err := rsasig.LoadPublicKeyPEM(path)
			if err != nil {
				return fmt.Errorf("crypto init: loading public key for replica %d: %w", id, err)
			}
			ks.AddPublicKey(id, pub)
		}
		replica.WithRSA(ks)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	recovery := tm.NewRecovery(replica, sched, func() error {
		return transport.SendToProxy(tm.Message{Header: tm.Header{Type: tm.MsgRecoveryQuery, SenderID: params.ID}})
	})
	recovery.Start(time.Now().UnixNano())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatchLoop(ctx, sched, inbound, replica, recovery, log)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	log.Infof("replica %d: shutting down", params.ID)
	return nil
}

// dispatchLoop is the single-threaded event loop of §5: it blocks until
// either a decoded frame arrives on inbound or the next scheduled timer
// is due, and dispatches exactly one of those per iteration before
// looping again. All replica/recovery state mutation happens on this one
// goroutine.
func dispatchLoop(ctx context.Context, sched *scheduler.Queue, inbound <-chan tm.Inbound, replica *tm.Replica, recovery *tm.Recovery, log tmlog.Logger) error {
	for {
		var timer *time.Timer
		if deadline, ok := sched.NextDeadline(); ok {
			d := time.Until(time.Unix(0, deadline))
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case in := <-inbound:
			if timer != nil {
				timer.Stop()
			}
			dispatchInbound(in, replica, recovery, log)
		case <-timerC(timer):
			sched.FireDue(time.Now().UnixNano())
		}
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func dispatchInbound(in tm.Inbound, replica *tm.Replica, recovery *tm.Recovery, log tmlog.Logger) {
	msg := in.Msg
	var err error
	inRecovery := replica.State() == tm.StateRecovery

	switch {
	case msg.Type == tm.MsgLRTrip || msg.Type == tm.MsgLRClose:
		state := msg.Type.CBStateOf()
		if inRecovery {
			err = recovery.HandleRelayEvent(state, msg.DTS)
		} else {
			err = replica.HandleLR(state, msg.DTS)
		}
	case msg.Type.IsAck():
		state := msg.Type.CBStateOf()
		if inRecovery {
			err = recovery.HandleProxyAck(state, msg.DTS)
		} else {
			err = replica.HandleAck(state, msg.DTS)
		}
	case msg.Type.IsShare():
		err = replica.HandleShare(msg.SenderID, msg.Type, msg.DTS, msg.Payload)
	default:
		log.Debugf("ignoring unhandled message type %s from %s", msg.Type, in.Source)
	}

	if err != nil {
		log.Errorf("dispatch error: %v", err)
	}
}

type config struct {
	n, f, k int
	mode    tm.Mode

	relaySocketPath string
	externalAddr    string
	internalAddr    string
	proxyAddr       string
	peerAddrs       []string

	thresholdPubPath        string
	thresholdShareTripPath  string
	thresholdShareClosePath string

	rsaPrivatePath      string
	rsaPeerPublicPaths  map[uint32]string
}

func loadConfigFromEnv() (config, error) {
	var cfg config
	var err error
	if cfg.n, err = envInt("TM_N", 4); err != nil {
		return cfg, err
	}
	if cfg.f, err = envInt("TM_F", 1); err != nil {
		return cfg, err
	}
	if cfg.k, err = envInt("TM_K", 0); err != nil {
		return cfg, err
	}
	cfg.mode = tm.ModeRelaySigned
	if os.Getenv("TM_MODE") == "v1" {
		cfg.mode = tm.ModeThresholdFlood
	}

	cfg.relaySocketPath = envStr("TM_RELAY_SOCKET", "/tmp/tm_relay.sock")
	cfg.externalAddr = envStr("TM_EXTERNAL_ADDR", "127.0.0.1:5100")
	cfg.internalAddr = envStr("TM_INTERNAL_ADDR", "127.0.0.1:5200")
	cfg.proxyAddr = envStr("TM_PROXY_ADDR", "127.0.0.1:5000")
	if peers := os.Getenv("TM_PEER_ADDRS"); peers != "" {
		cfg.peerAddrs = strings.Split(peers, ",")
	}

	cfg.thresholdPubPath = envStr("TM_THRESHOLD_PUBKEY", "tm_keys/pubkey_1.pem")
	cfg.thresholdShareTripPath = envStr("TM_THRESHOLD_SHARE_TRIP", "tm_keys/share_trip.bin")
	cfg.thresholdShareClosePath = envStr("TM_THRESHOLD_SHARE_CLOSE", "tm_keys/share_close.bin")

	cfg.rsaPrivatePath = envStr("TM_RSA_PRIVATE", "tm_keys/rsa_private.pem")
	cfg.rsaPeerPublicPaths = make(map[uint32]string)
	if peers := os.Getenv("TM_RSA_PEER_PUBLIC"); peers != "" {
		for _, pair := range strings.Split(peers, ",") {
			parts := strings.SplitN(pair, "=", 2)
			if len(parts) != 2 {
				return cfg, fmt.Errorf("malformed TM_RSA_PEER_PUBLIC entry %q", pair)
			}
			id, err := strconv.ParseUint(parts[0], 10, 32)
			if err != nil {
				return cfg, fmt.Errorf("malformed TM_RSA_PEER_PUBLIC replica id %q: %w", parts[0], err)
			}
			cfg.rsaPeerPublicPaths[uint32(id)] = parts[1]
		}
	}
	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}
