package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wippyai/xml-bridge/bridge"
	"github.com/wippyai/xml-bridge/engine"
	"github.com/wippyai/xml-bridge/pin"
	"github.com/wippyai/xml-bridge/vm"
)

// options are the flags shared by every command.
type options struct {
	features         []string
	maxInputBytes    int64
	memoryLimitPages uint32
	gcThreshold      int
	verbose          bool
	quiet            bool
}

func (o *options) bind(fs *pflag.FlagSet) {
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log runtime activity to stderr")
	fs.BoolVarP(&o.quiet, "quiet", "q", false, "do not print foreign stack traces")
	fs.Uint32Var(&o.memoryLimitPages, "memory-limit-pages", 0, "maximum foreign heap size in 64KiB pages (0 = 4GiB)")
	fs.Int64Var(&o.maxInputBytes, "max-input-bytes", 0, "refuse inputs larger than this (0 = unlimited)")
	fs.IntVar(&o.gcThreshold, "gc-threshold", 0, "allocations between foreign collections (0 = default, -1 = only when full)")
	fs.StringSliceVar(&o.features, "feature", nil, "document builder feature, as name or name=bool (repeatable)")
}

// parseFeatures turns "name" and "name=bool" flags into a feature map.
func parseFeatures(flags []string) (map[string]bool, error) {
	out := make(map[string]bool, len(flags))
	for _, f := range flags {
		name, value, hasValue := strings.Cut(f, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("empty feature name in %q", f)
		}
		on := true
		if hasValue {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("feature %s: %w", name, err)
			}
			on = b
		}
		out[name] = on
	}
	return out, nil
}

func (o *options) logger() (*zap.Logger, error) {
	if !o.verbose {
		return zap.NewNop(), nil
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	engine.SetLogger(l.Named("engine"))
	vm.SetLogger(l.Named("vm"))
	pin.SetLogger(l.Named("pin"))
	return l, nil
}

// config builds the bridge configuration. diag receives foreign stack traces.
func (o *options) config(diag io.Writer, reg prometheus.Registerer) (*bridge.Config, error) {
	features, err := parseFeatures(o.features)
	if err != nil {
		return nil, err
	}
	log, err := o.logger()
	if err != nil {
		return nil, err
	}
	if o.quiet {
		diag = io.Discard
	}
	return &bridge.Config{
		Engine:        &engine.Config{MemoryLimitPages: o.memoryLimitPages},
		VM:            &vm.Config{GCThreshold: o.gcThreshold},
		Features:      features,
		MaxInputBytes: o.maxInputBytes,
		Logger:        log,
		Diagnostics:   diag,
		Registerer:    reg,
	}, nil
}
