package bridge

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/xml-bridge/engine"
	"github.com/wippyai/xml-bridge/errors"
	"github.com/wippyai/xml-bridge/pin"
	"github.com/wippyai/xml-bridge/vm"
)

// Bridge owns one foreign runtime and the documents parsed in it.
// It is safe for concurrent use. The runtime starts on first use.
type Bridge struct {
	cfg      Config
	log      *zap.Logger
	metrics  *Metrics
	features map[string]bool

	once    sync.Once
	initErr error

	engine   *engine.Engine
	vm       *vm.VM
	registry pin.Registry

	// countPins is set when the registry cannot be observed, so the pinned
	// gauge is refreshed from Count instead.
	countPins bool

	diagMu sync.Mutex
	diag   io.Writer

	// lifeMu is held for reading by every operation that touches the runtime
	// and for writing by Close, so teardown never overlaps one.
	lifeMu sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// New creates a bridge. It does not start the foreign runtime.
func New(cfg *Config) *Bridge {
	if cfg == nil {
		cfg = &Config{}
	}
	b := &Bridge{
		cfg:      *cfg,
		log:      cfg.logger(),
		metrics:  newMetrics(),
		features: make(map[string]bool, len(cfg.Features)),
		diag:     cfg.diagnostics(),
	}
	for name, on := range cfg.Features {
		b.features[name] = on
	}
	if cfg.Registerer != nil {
		if err := b.metrics.register(cfg.Registerer); err != nil {
			b.log.Warn("bridge metrics not registered", zap.Error(err))
		}
	}
	return b
}

var (
	defaultBridge *Bridge
	defaultOnce   sync.Once
)

// Default returns the process-wide bridge used by the package-level functions.
func Default() *Bridge {
	defaultOnce.Do(func() {
		defaultBridge = New(nil)
	})
	return defaultBridge
}

func errBridgeClosed() error {
	return errors.New(errors.PhaseBootstrap, errors.KindDisposed).Detail("bridge closed").Build()
}

// Parse parses input with the default bridge.
func Parse(ctx context.Context, input any) (*Document, error) {
	return Default().Parse(ctx, input)
}

// ParseFile parses the file at path with the default bridge.
func ParseFile(ctx context.Context, path string) (*Document, error) {
	return Default().ParseFile(ctx, path)
}

// ensureReady starts the foreign runtime once. A failure is permanent.
func (b *Bridge) ensureReady(ctx context.Context) error {
	if b.closed.Load() {
		return errBridgeClosed()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.once.Do(func() {
		eng, err := engine.Start(ctx, b.cfg.Engine)
		if err != nil {
			b.initErr = errors.Initialization("start foreign heap", err)
			b.log.Error("foreign runtime failed to start", zap.Error(err))
			return
		}
		b.engine = eng
		b.vm = vm.New(eng.Memory(), eng.Heap(), b.cfg.VM)
		b.registry = b.cfg.registry(b.vm)

		if s, ok := b.registry.(interface{ Subscribe(pin.Observer) }); ok {
			s.Subscribe(b.metrics)
		} else {
			b.countPins = true
		}
		b.metrics.observe(b.vm.Stats())
		b.ready.Store(true)
		b.log.Debug("foreign runtime started")
	})
	return b.initErr
}

// Parse parses an XML document. input is a []byte, a string or an io.Reader,
// which is drained before parsing. On success the document stays pinned until
// the returned handle is closed.
func (b *Bridge) Parse(ctx context.Context, input any) (*Document, error) {
	if err := b.ensureReady(ctx); err != nil {
		return nil, err
	}
	data, err := materialize(input, b.cfg.MaxInputBytes)
	if err != nil {
		b.metrics.parsed(entryBytes, resultInvalid)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.invoke(entryBytes, func(t *vm.Thread) (vm.Ref, *vm.Throwable) {
		buf, thr := toForeignBuffer(t, data)
		if thr != nil {
			return 0, thr
		}
		return parseBytes(t, buf, b.features)
	})
}

// ParseFile parses the file at path. The file is read by the foreign runtime.
func (b *Bridge) ParseFile(ctx context.Context, path string) (*Document, error) {
	if err := b.ensureReady(ctx); err != nil {
		return nil, err
	}
	return b.invoke(entryFile, func(t *vm.Thread) (vm.Ref, *vm.Throwable) {
		return parseFile(t, path, b.features)
	})
}

// invoke runs call on an attached thread and pins the document it returns
// before the thread's local frame is dropped.
func (b *Bridge) invoke(entry string, call func(*vm.Thread) (vm.Ref, *vm.Throwable)) (*Document, error) {
	b.lifeMu.RLock()
	defer b.lifeMu.RUnlock()
	if b.closed.Load() {
		return nil, errBridgeClosed()
	}

	t, err := b.vm.AttachCurrentThread()
	if err != nil {
		return nil, errors.Initialization("attach thread", err)
	}
	defer t.Detach()

	ref, thr := guard(t, call)
	if thr != nil {
		b.metrics.parsed(entry, resultForeign)
		b.metrics.observe(b.vm.Stats())
		return nil, b.translate(errors.PhaseParse, thr)
	}

	doc, err := b.wrap(ref)
	if err != nil {
		b.metrics.parsed(entry, resultForeign)
		return nil, err
	}
	b.metrics.parsed(entry, resultOK)
	b.metrics.observe(b.vm.Stats())
	return doc, nil
}

// translate reports a foreign exception and converts it to an error.
// Only the class and message survive; the throwable is dropped. path names
// the host operation that raised it, if any.
func (b *Bridge) translate(phase errors.Phase, thr *vm.Throwable, path ...string) error {
	b.diagMu.Lock()
	thr.PrintStackTrace(b.diag)
	b.diagMu.Unlock()

	fields := []zap.Field{
		zap.String("phase", string(phase)),
		zap.String("class", thr.Class),
		zap.String("message", thr.Message),
		zap.Strings("stack", thr.StackLines()),
	}
	if thr.Line > 0 {
		fields = append(fields, zap.Int("line", thr.Line))
	}
	if thr.Cause != nil {
		fields = append(fields, zap.String("cause", thr.Cause.Error()))
	}
	b.log.Error("foreign exception", fields...)

	if len(path) == 0 {
		return errors.ForeignException(phase, thr.Class, thr.Message)
	}
	return errors.New(phase, errors.KindForeignException).
		Path(path...).
		Foreign(thr.Class).
		Detail("%s", thr.Message).
		Build()
}

// Collect runs a foreign collection and returns the number of objects freed.
func (b *Bridge) Collect(ctx context.Context) (int, error) {
	if err := b.ensureReady(ctx); err != nil {
		return 0, err
	}
	b.lifeMu.RLock()
	defer b.lifeMu.RUnlock()
	if b.closed.Load() {
		return 0, errBridgeClosed()
	}
	freed := b.vm.Collect()
	b.metrics.observe(b.vm.Stats())
	return freed, nil
}

// Pinned returns the number of documents currently anchored.
// It is 0 before the runtime has started.
func (b *Bridge) Pinned() int {
	if !b.ready.Load() {
		return 0
	}
	return b.registry.Count()
}

// Stats returns a snapshot of the foreign runtime.
func (b *Bridge) Stats(ctx context.Context) (vm.Stats, error) {
	if err := b.ensureReady(ctx); err != nil {
		return vm.Stats{}, err
	}
	b.lifeMu.RLock()
	defer b.lifeMu.RUnlock()
	if b.closed.Load() {
		return vm.Stats{}, errBridgeClosed()
	}
	return b.vm.Stats(), nil
}

// Metrics returns the bridge's collectors.
func (b *Bridge) Metrics() *Metrics {
	return b.metrics
}

// Close releases every pinned document and shuts the runtime down.
// Handles still open afterwards report ErrDisposed.
func (b *Bridge) Close(ctx context.Context) error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	// Keeps a later ensureReady from starting a runtime nobody will close.
	b.once.Do(func() {})
	if b.vm == nil {
		return nil
	}

	var err error
	if c, ok := b.registry.(interface{ Close() error }); ok {
		err = c.Close()
	}
	b.vm.Close()
	err = multierr.Append(err, b.engine.Close(ctx))
	b.log.Debug("foreign runtime closed")
	return err
}
