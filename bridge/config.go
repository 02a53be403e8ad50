package bridge

import (
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wippyai/xml-bridge/engine"
	"github.com/wippyai/xml-bridge/pin"
	"github.com/wippyai/xml-bridge/vm"
)

// Config holds configuration for a Bridge. The zero value is usable.
type Config struct {
	// Engine configures the foreign heap. nil uses engine defaults.
	Engine *engine.Config

	// VM configures the foreign runtime. nil uses runtime defaults.
	VM *vm.Config

	// Features are document builder features set on every parse.
	// See vm.FeatureDisallowDoctype and vm.FeatureRequireDeclaration.
	Features map[string]bool

	// MaxInputBytes bounds how much input is materialized before it is
	// copied into the foreign heap. 0 means unlimited.
	MaxInputBytes int64

	// Logger receives foreign exception reports. nil uses Logger().
	Logger *zap.Logger

	// Diagnostics receives foreign stack traces. nil means os.Stderr;
	// use io.Discard to silence them.
	Diagnostics io.Writer

	// Registerer registers the bridge metrics. nil leaves them unregistered;
	// they are still readable through Bridge.Metrics.
	Registerer prometheus.Registerer

	// Registry builds the pin registry over the runtime's roots.
	// nil uses pin.NewTable.
	Registry func(pin.Rooter) pin.Registry
}

func (c *Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return Logger()
}

func (c *Config) diagnostics() io.Writer {
	if c.Diagnostics != nil {
		return c.Diagnostics
	}
	return os.Stderr
}

func (c *Config) registry(r pin.Rooter) pin.Registry {
	if c.Registry != nil {
		return c.Registry(r)
	}
	return pin.NewTable(r)
}
