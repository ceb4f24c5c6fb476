// File: facade/hioload.go
// Unified facade over the netmap library.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Netmap aggregates one registered session, the reactor driving it, the
// ring streams selected by configuration, metrics and debug probes. It is
// the entry point used by cmd/netmapctl and the examples.

package facade

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-netmap/api"
	"github.com/momentics/hioload-netmap/control"
	"github.com/momentics/hioload-netmap/core/netmap"
	"github.com/momentics/hioload-netmap/reactor"
	"github.com/momentics/hioload-netmap/stream"
)

// Config is the facade configuration.
type Config = control.Config

// DefaultConfig returns default configuration values.
func DefaultConfig() Config { return control.DefaultConfig() }

// Option customises New.
type Option func(*options)

type options struct {
	opener netmap.Opener
	logger *logrus.Logger
}

// WithOpener replaces the kernel device.
func WithOpener(op netmap.Opener) Option { return func(o *options) { o.opener = op } }

// WithLogger logs through l and sets its level from Config.LogLevel. By
// default the facade builds its own logger and leaves the global one alone.
func WithLogger(l *logrus.Logger) Option { return func(o *options) { o.logger = l } }

// Netmap is the main facade type.
type Netmap struct {
	store   *control.ConfigStore
	logger  *logrus.Logger
	log     *logrus.Entry
	sess    *netmap.Session
	loop    *reactor.Loop
	metrics *control.Metrics
	probes  *control.DebugProbes
	streams map[api.RingID]*stream.RingStream

	mu     sync.Mutex
	closed bool
}

// Ensure compliance with api.GracefulShutdown.
var _ api.GracefulShutdown = (*Netmap)(nil)

// New opens the configured interface, creates the reactor and one stream
// per selected ring.
func New(cfg Config, opts ...Option) (*Netmap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
	}
	lvl, _ := logrus.ParseLevel(cfg.LogLevel)
	o.logger.SetLevel(lvl)

	n := &Netmap{
		store:   control.NewConfigStore(cfg),
		logger:  o.logger,
		log:     logrus.NewEntry(o.logger).WithField("component", "facade"),
		metrics: control.NewMetrics(),
		probes:  control.NewDebugProbes(),
		streams: make(map[api.RingID]*stream.RingStream),
	}
	n.store.OnReload(n.applyReload)
	control.RegisterPlatformProbes(n.probes)

	sopts := []netmap.Option{
		netmap.WithDevicePath(cfg.DevicePath),
		netmap.WithLogger(logrus.NewEntry(o.logger)),
		netmap.WithLinkCheck(cfg.LinkCheck),
	}
	if o.opener != nil {
		sopts = append(sopts, netmap.WithOpener(o.opener))
	}
	sess, err := netmap.Open(cfg.Interface, sopts...)
	if err != nil {
		return nil, err
	}
	n.sess = sess

	ropts := reactor.DefaultOptions()
	ropts.MaxEvents = cfg.MaxEvents
	ropts.CPU = cfg.ReactorCPU
	ropts.Logger = logrus.NewEntry(o.logger)
	loop, err := reactor.New(ropts)
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("reactor init failure: %w", err)
	}
	n.loop = loop

	ids := make([]api.RingID, 0, len(cfg.RxRings)+len(cfg.TxRings))
	for _, i := range cfg.RxRings {
		ids = append(ids, api.RxRing(i))
	}
	for _, i := range cfg.TxRings {
		ids = append(ids, api.TxRing(i))
	}
	for _, id := range ids {
		if _, dup := n.streams[id]; dup {
			continue
		}
		h, err := stream.OpenRing(sess, id)
		if err != nil {
			n.Shutdown()
			return nil, err
		}
		n.streams[id] = stream.New(h, loop, stream.WithObserver(n.metrics), stream.WithLogger(sess.Logger()))
	}
	n.registerProbes()

	n.log.WithFields(logrus.Fields{
		"iface":   cfg.Interface,
		"streams": len(n.streams),
	}).Info("netmap facade ready")
	return n, nil
}

func (n *Netmap) applyReload(cfg Config) {
	lvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return
	}
	if lvl != n.logger.GetLevel() {
		n.logger.SetLevel(lvl)
		n.log.WithField("level", lvl.String()).Info("log level changed")
	}
}

// registerProbes exposes session and ring state. Ring cursors are read
// without synchronisation; values are advisory while the reactor runs.
func (n *Netmap) registerProbes() {
	n.probes.RegisterProbe("session", func() any { return n.sess.String() })
	n.probes.RegisterProbe("session.request", func() any { return n.sess.Request().String() })
	for id, st := range n.streams {
		st := st
		n.probes.RegisterProbe("ring."+id.String(), func() any {
			return map[string]any{
				"ring":  st.Handle().Ring().String(),
				"stats": st.Stats(),
			}
		})
	}
}

// Stream returns the stream opened for id.
func (n *Netmap) Stream(id api.RingID) (*stream.RingStream, bool) {
	st, ok := n.streams[id]
	return st, ok
}

// Streams returns the open stream IDs in ring order, transmit first.
func (n *Netmap) Streams() []api.RingID {
	ids := make([]api.RingID, 0, len(n.streams))
	for id := range n.streams {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Dir != ids[j].Dir {
			return ids[i].Dir < ids[j].Dir
		}
		return ids[i].Index < ids[j].Index
	})
	return ids
}

// Spawn schedules t on the reactor.
func (n *Netmap) Spawn(t reactor.Task) (*reactor.JoinHandle, error) {
	return n.loop.Spawn(t)
}

// Run drives the reactor on the calling goroutine until every spawned
// task finishes or ctx ends.
func (n *Netmap) Run(ctx context.Context) error {
	return n.loop.Run(ctx)
}

// Stop makes a running Run return.
func (n *Netmap) Stop() { n.loop.Stop() }

// Session returns the registered session.
func (n *Netmap) Session() *netmap.Session { return n.sess }

// Loop returns the reactor.
func (n *Netmap) Loop() *reactor.Loop { return n.loop }

// Metrics returns the Prometheus metrics.
func (n *Netmap) Metrics() *control.Metrics { return n.metrics }

// Probes returns the debug probe registry.
func (n *Netmap) Probes() *control.DebugProbes { return n.probes }

// Config returns the configuration store.
func (n *Netmap) Config() *control.ConfigStore { return n.store }

// Shutdown implements api.GracefulShutdown: it closes every stream,
// detaches the descriptor from the reactor and drops the session. The
// mapping stays until outstanding packets are released. The reactor must
// not be running.
func (n *Netmap) Shutdown() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	var errs []error
	for id, st := range n.streams {
		if err := st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stream %s: %w", id, err))
		}
		n.probes.RemoveProbe("ring." + id.String())
	}
	if n.loop != nil {
		if err := n.loop.Forget(n.sess.Fd()); err != nil {
			errs = append(errs, err)
		}
		if err := n.loop.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := n.sess.Close(); err != nil {
		errs = append(errs, err)
	}
	n.log.Info("netmap facade shut down")
	return errors.Join(errs...)
}
