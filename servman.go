// Package servman supervises one long-running development server
// process: start, stop, restart, status, persisted configuration, port
// inspection, and live output relay with fatal-bind detection.
package servman

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/servman/servman/internal/config"
	"github.com/servman/servman/internal/event"
	"github.com/servman/servman/internal/history"
	"github.com/servman/servman/internal/metrics"
	"github.com/servman/servman/internal/portprobe"
	iapi "github.com/servman/servman/internal/server"
	"github.com/servman/servman/internal/sigguard"
	"github.com/servman/servman/internal/supervisor"
)

// Re-export core types for external consumers. These are aliases, so
// conversions are zero-cost.

type Status = supervisor.Status

type Config = config.Config

type ServiceSpec = supervisor.ServiceSpec

type Output = event.Output

type Event = event.Event

type EventSink = event.Sink

type Listener = portprobe.Listener

type HistoryStore = history.Store

type HistorySink = history.Sink

// Manager is a thin facade over the internal supervisor plus the port
// prober. It provides a stable public API for embedding.
type Manager struct {
	sup    *supervisor.Supervisor
	prober *portprobe.Prober
}

// Options configures a Manager. The zero value is usable: the config
// store defaults to the user config directory and everything else is
// optional.
type Options struct {
	ConfigPath string // overrides the default config location
	Spec       ServiceSpec
	Sink       EventSink
	History    HistoryStore
	Exports    []HistorySink
	Logger     *slog.Logger
}

func New(opts Options) (*Manager, error) {
	var store *config.Store
	var err error
	if opts.ConfigPath != "" {
		store = config.NewStoreAt(opts.ConfigPath, opts.Logger)
	} else {
		store, err = config.NewStore(opts.Logger)
		if err != nil {
			return nil, err
		}
	}
	sup := supervisor.New(supervisor.Options{
		Store:   store,
		Spec:    opts.Spec,
		Sink:    opts.Sink,
		History: opts.History,
		Exports: opts.Exports,
		Logger:  opts.Logger,
	})
	return &Manager{sup: sup, prober: portprobe.New(opts.Logger)}, nil
}

func (m *Manager) Start(port *int) (Status, error)   { return m.sup.Start(port) }
func (m *Manager) Stop() (Status, error)             { return m.sup.Stop() }
func (m *Manager) Restart(port *int) (Status, error) { return m.sup.Restart(port) }
func (m *Manager) Status() Status                    { return m.sup.Status() }
func (m *Manager) Config() Config                    { return m.sup.Config() }
func (m *Manager) SetConfig(c Config) (Config, error) {
	return m.sup.SetConfig(c)
}

// Cleanup force-kills the supervised process tree. Safe to call
// repeatedly; wired into the signal guard by Guard.
func (m *Manager) Cleanup() { m.sup.Cleanup() }

func (m *Manager) CheckPort(port int) ([]Listener, error) { return m.prober.Check(port) }
func (m *Manager) EvictPort(port int) ([]Listener, error) { return m.prober.Evict(port) }

// Guard installs the signal interception guard: the first fatal signal
// kills the supervised process before the program dies, a repeat exits
// immediately. The returned guard's Shutdown is the orderly-exit hook.
func (m *Manager) Guard(log *slog.Logger) *sigguard.Guard {
	g := sigguard.New(m.sup.Cleanup, log)
	g.Start()
	return g
}

// NewHTTPServer starts the management API on addr.
func NewHTTPServer(addr, basePath string, m *Manager, bus *event.Bus, hist HistoryStore, log *slog.Logger) *http.Server {
	r := iapi.NewRouter(m.sup, m.prober, bus, hist, basePath, log)
	return iapi.NewServer(addr, r)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
