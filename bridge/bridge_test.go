package bridge

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/xml-bridge/engine"
	"github.com/wippyai/xml-bridge/errors"
	"github.com/wippyai/xml-bridge/vm"
)

type testEnv struct {
	b    *Bridge
	logs *observer.ObservedLogs
	diag *bytes.Buffer
	ctx  context.Context
}

func newTestEnv(t *testing.T, cfg *Config) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	core, logs := observer.New(zapcore.DebugLevel)
	diag := &bytes.Buffer{}
	cfg.Logger = zap.New(core)
	cfg.Diagnostics = diag

	ctx := context.Background()
	b := New(cfg)
	t.Cleanup(func() { b.Close(ctx) })
	return &testEnv{b: b, logs: logs, diag: diag, ctx: ctx}
}

func (e *testEnv) parse(t *testing.T, input any) *Document {
	t.Helper()
	doc, err := e.b.Parse(e.ctx, input)
	require.NoError(t, err)
	require.NotNil(t, doc)
	t.Cleanup(func() { doc.Close() })
	return doc
}

// summary is everything a handle exposes.
type summary struct {
	Encoding      string
	Declared      bool
	Version       string
	InputEncoding string
	Root          string
	Standalone    string
	Elements      int
}

func describe(t *testing.T, doc *Document) summary {
	t.Helper()
	var s summary
	var err error
	s.Encoding, s.Declared, err = doc.LookupEncoding()
	require.NoError(t, err)
	s.Version, err = doc.Version()
	require.NoError(t, err)
	s.InputEncoding, err = doc.InputEncoding()
	require.NoError(t, err)
	s.Root, err = doc.RootName()
	require.NoError(t, err)
	s.Standalone, err = doc.Standalone()
	require.NoError(t, err)
	s.Elements, err = doc.ElementCount()
	require.NoError(t, err)
	return s
}

const declaredUTF8 = `<?xml version="1.0" encoding="UTF-8"?><root><child/></root>`

func TestParse_DeclaredUTF8(t *testing.T) {
	env := newTestEnv(t, nil)
	doc := env.parse(t, []byte(declaredUTF8))

	enc, err := doc.Encoding()
	require.NoError(t, err)
	require.Equal(t, "UTF-8", enc)
	require.Equal(t, 1, env.b.Pinned())
}

func TestParse_NoDeclaration(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, input := range []string{`<root/>`, `<?xml version="1.0"?><root/>`} {
		doc := env.parse(t, input)

		enc, err := doc.Encoding()
		require.NoError(t, err)
		require.Equal(t, "", enc)

		_, declared, err := doc.LookupEncoding()
		require.NoError(t, err)
		require.False(t, declared, "input %q", input)
	}
}

func TestParse_Malformed(t *testing.T) {
	env := newTestEnv(t, nil)

	doc, err := env.b.Parse(env.ctx, []byte("<a><b></a>"))
	require.Nil(t, doc)
	require.Error(t, err)
	require.True(t, stderrors.Is(err, errors.ErrForeignParse), "got %v", err)

	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	require.Equal(t, vm.ClassParseException, e.Foreign)

	entries := env.logs.FilterMessage("foreign exception").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, vm.ClassParseException, fields["class"])
	require.Equal(t, string(errors.PhaseParse), fields["phase"])
	require.Equal(t, zapcore.ErrorLevel, entries[0].Level)

	require.Contains(t, env.diag.String(), "ParseException")
	require.Contains(t, env.diag.String(), "\tat DocumentBuilder.parse")
	require.Equal(t, 0, env.b.Pinned())
}

func TestEncoding_Idempotent(t *testing.T) {
	env := newTestEnv(t, nil)

	inputs := []string{
		declaredUTF8,
		`<r/>`,
		`<?xml version="1.0" encoding="ISO-8859-1"?><r/>`,
		`<?xml version="1.0" encoding="windows-1252" standalone="yes"?><r/>`,
	}
	for _, input := range inputs {
		doc := env.parse(t, input)
		first, err := doc.Encoding()
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			again, err := doc.Encoding()
			require.NoError(t, err)
			require.Equal(t, first, again)
		}
	}
}

func TestClose_Twice(t *testing.T) {
	env := newTestEnv(t, nil)

	first, err := env.b.Parse(env.ctx, declaredUTF8)
	require.NoError(t, err)
	second := env.parse(t, `<?xml version="1.0" encoding="ISO-8859-1"?><other/>`)
	require.Equal(t, 2, env.b.Pinned())

	require.NoError(t, first.Close())
	require.NoError(t, first.Close())
	require.True(t, first.Closed())
	require.Equal(t, 1, env.b.Pinned())

	_, err = first.Encoding()
	require.True(t, stderrors.Is(err, errors.ErrDisposed), "got %v", err)

	// The surviving handle is unaffected, also after a collection.
	_, err = env.b.Collect(env.ctx)
	require.NoError(t, err)
	enc, err := second.Encoding()
	require.NoError(t, err)
	require.Equal(t, "ISO-8859-1", enc)

	third := env.parse(t, `<third/>`)
	root, err := third.RootName()
	require.NoError(t, err)
	require.Equal(t, "third", root)
	require.Equal(t, 2, env.b.Pinned())
}

func TestEncoding_RoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, label := range []string{"UTF-8", "UTF-16", "ISO-8859-1", "utf-8", "iso-8859-1", "Windows-1252"} {
		t.Run(label, func(t *testing.T) {
			input := fmt.Sprintf(`<?xml version="1.0" encoding="%s"?><doc/>`, label)
			doc := env.parse(t, []byte(input))
			got, err := doc.Encoding()
			require.NoError(t, err)
			require.Equal(t, label, got)
		})
	}
}

func TestParse_ReaderMatchesBytes(t *testing.T) {
	env := newTestEnv(t, nil)
	want := describe(t, env.parse(t, []byte(declaredUTF8)))

	readers := map[string]func() any{
		"bytes.Reader":   func() any { return bytes.NewReader([]byte(declaredUTF8)) },
		"strings.Reader": func() any { return strings.NewReader(declaredUTF8) },
		"one byte":       func() any { return iotest.OneByteReader(strings.NewReader(declaredUTF8)) },
		"string":         func() any { return declaredUTF8 },
	}
	for name, input := range readers {
		t.Run(name, func(t *testing.T) {
			got := describe(t, env.parse(t, input()))
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("summary mismatch (-bytes +%s):\n%s", name, diff)
			}
		})
	}
}

func TestParse_Concurrent(t *testing.T) {
	env := newTestEnv(t, nil)
	labels := []string{"UTF-8", "UTF-16", "ISO-8859-1", ""}

	g, ctx := errgroup.WithContext(env.ctx)
	for i := 0; i < 48; i++ {
		g.Go(func() error {
			label := labels[i%len(labels)]
			root := fmt.Sprintf("root%d", i)
			decl := `<?xml version="1.0"?>`
			if label != "" {
				decl = fmt.Sprintf(`<?xml version="1.0" encoding="%s"?>`, label)
			}

			if i%5 == 0 {
				doc, err := env.b.Parse(ctx, decl+"<"+root+"><x></"+root+">")
				if doc != nil || !stderrors.Is(err, errors.ErrForeignParse) {
					return fmt.Errorf("call %d: malformed input gave %v, %v", i, doc, err)
				}
				return nil
			}

			doc, err := env.b.Parse(ctx, decl+"<"+root+"/>")
			if err != nil {
				return fmt.Errorf("call %d: %w", i, err)
			}
			defer doc.Close()

			gotRoot, err := doc.RootName()
			if err != nil {
				return err
			}
			gotEnc, err := doc.Encoding()
			if err != nil {
				return err
			}
			if gotRoot != root || gotEnc != label {
				return fmt.Errorf("call %d: got (%s, %q), want (%s, %q)", i, gotRoot, gotEnc, root, label)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 0, env.b.Pinned())
}

func TestParse_InvalidInputKind(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, input := range []any{42, nil, struct{}{}, []rune("<a/>")} {
		doc, err := env.b.Parse(env.ctx, input)
		require.Nil(t, doc)
		require.True(t, stderrors.Is(err, errors.ErrInvalidInputKind), "input %T: %v", input, err)
	}
	require.Empty(t, env.logs.FilterMessage("foreign exception").All())
}

func TestParse_MaxInputBytes(t *testing.T) {
	env := newTestEnv(t, &Config{MaxInputBytes: 16})

	_, err := env.b.Parse(env.ctx, declaredUTF8)
	kind, _ := errors.KindOf(err)
	require.Equal(t, errors.KindTooLarge, kind)

	_, err = env.b.Parse(env.ctx, strings.NewReader(declaredUTF8))
	kind, _ = errors.KindOf(err)
	require.Equal(t, errors.KindTooLarge, kind)

	// Exactly at the limit is accepted.
	doc := env.parse(t, strings.NewReader("<abcdefghijklm/>"))
	root, err := doc.RootName()
	require.NoError(t, err)
	require.Equal(t, "abcdefghijklm", root)
}

func TestParse_ReaderError(t *testing.T) {
	env := newTestEnv(t, nil)
	boom := stderrors.New("disk on fire")

	_, err := env.b.Parse(env.ctx, iotest.ErrReader(boom))
	kind, _ := errors.KindOf(err)
	require.Equal(t, errors.KindIO, kind)
	require.ErrorIs(t, err, boom)
}

func TestParse_Features(t *testing.T) {
	env := newTestEnv(t, &Config{Features: map[string]bool{vm.FeatureRequireDeclaration: true}})

	_, err := env.b.Parse(env.ctx, `<a/>`)
	require.True(t, stderrors.Is(err, errors.ErrForeignParse))

	doc := env.parse(t, `<?xml version="1.0"?><a/>`)
	require.False(t, doc.Closed())

	env = newTestEnv(t, &Config{Features: map[string]bool{"bogus": true}})
	_, err = env.b.Parse(env.ctx, `<a/>`)
	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	require.Equal(t, vm.ClassConfigurationException, e.Foreign)
}

func TestParseFile(t *testing.T) {
	env := newTestEnv(t, nil)
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.xml")
	require.NoError(t, os.WriteFile(path, []byte(declaredUTF8), 0o644))

	doc, err := env.b.ParseFile(env.ctx, path)
	require.NoError(t, err)
	defer doc.Close()

	got := describe(t, doc)
	want := describe(t, env.parse(t, declaredUTF8))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("file and bytes differ (-bytes +file):\n%s", diff)
	}
	require.Equal(t, 2, env.b.Pinned())

	_, err = env.b.ParseFile(env.ctx, filepath.Join(dir, "missing.xml"))
	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	require.Equal(t, vm.ClassFileNotFoundException, e.Foreign)
}

func TestParse_OutOfMemory(t *testing.T) {
	env := newTestEnv(t, &Config{Engine: &engine.Config{MemoryLimitPages: 1}})

	big := "<a>" + strings.Repeat("x", 2*engine.PageSize) + "</a>"
	_, err := env.b.Parse(env.ctx, big)
	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	require.Equal(t, vm.ClassOutOfMemoryError, e.Foreign)

	// The bridge keeps working after a failed allocation.
	doc := env.parse(t, declaredUTF8)
	enc, err := doc.Encoding()
	require.NoError(t, err)
	require.Equal(t, "UTF-8", enc)
}

func TestInitializationFailure(t *testing.T) {
	env := newTestEnv(t, &Config{Engine: &engine.Config{InitialPages: 4, MemoryLimitPages: 2}})

	_, err := env.b.Parse(env.ctx, declaredUTF8)
	require.True(t, stderrors.Is(err, errors.ErrInitialization), "got %v", err)

	_, again := env.b.Parse(env.ctx, declaredUTF8)
	require.Same(t, err, again)
	require.Equal(t, 0, env.b.Pinned())
}

func TestBridge_Close(t *testing.T) {
	env := newTestEnv(t, nil)
	doc, err := env.b.Parse(env.ctx, declaredUTF8)
	require.NoError(t, err)

	require.NoError(t, env.b.Close(env.ctx))
	require.NoError(t, env.b.Close(env.ctx))

	_, err = doc.Encoding()
	require.True(t, stderrors.Is(err, errors.ErrDisposed))
	require.NoError(t, doc.Close())

	_, err = env.b.Parse(env.ctx, declaredUTF8)
	kind, _ := errors.KindOf(err)
	require.Equal(t, errors.KindDisposed, kind)
}

func TestParse_CanceledContext(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(env.ctx)
	cancel()

	_, err := env.b.Parse(ctx, declaredUTF8)
	require.ErrorIs(t, err, context.Canceled)

	// A canceled first call does not poison bootstrap.
	env.parse(t, declaredUTF8)
}

func TestGuard_RecoversPanic(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.b.Stats(env.ctx)
	require.NoError(t, err)

	th, err := env.b.vm.AttachCurrentThread()
	require.NoError(t, err)
	defer th.Detach()

	ref, thr := guard(th, func(*vm.Thread) (vm.Ref, *vm.Throwable) {
		panic("boom")
	})
	require.Zero(t, ref)
	require.NotNil(t, thr)
	require.Equal(t, vm.ClassInternalError, thr.Class)
	require.Equal(t, "boom", thr.Message)
}

func TestDefault(t *testing.T) {
	require.Same(t, Default(), Default())

	doc, err := Parse(context.Background(), declaredUTF8)
	require.NoError(t, err)
	defer doc.Close()
	enc, err := doc.Encoding()
	require.NoError(t, err)
	require.Equal(t, "UTF-8", enc)
}

func TestCollect_FreesReleasedDocument(t *testing.T) {
	env := newTestEnv(t, nil)
	doc, err := env.b.Parse(env.ctx, declaredUTF8)
	require.NoError(t, err)

	// The input buffer is garbage once parsing returns.
	_, err = env.b.Collect(env.ctx)
	require.NoError(t, err)
	st, err := env.b.Stats(env.ctx)
	require.NoError(t, err)
	// The document plus its encoding, version, input encoding and root name.
	require.Equal(t, 5, st.Objects)
	require.NotZero(t, st.Heap.Used)

	require.NoError(t, doc.Close())
	freed, err := env.b.Collect(env.ctx)
	require.NoError(t, err)
	require.Equal(t, 5, freed)

	st, err = env.b.Stats(env.ctx)
	require.NoError(t, err)
	require.Zero(t, st.Objects)
	require.Zero(t, st.Heap.Used)
}

func TestBridge_CloseDuringReads(t *testing.T) {
	env := newTestEnv(t, nil)

	docs := make([]*Document, 8)
	for i := range docs {
		docs[i] = env.parse(t, declaredUTF8)
	}

	disposed := func(err error) bool {
		kind, ok := errors.KindOf(err)
		return ok && kind == errors.KindDisposed
	}

	var g errgroup.Group
	for i, doc := range docs {
		g.Go(func() error {
			for j := 0; j < 50; j++ {
				if _, err := doc.RootName(); err != nil && !disposed(err) {
					return fmt.Errorf("RootName: %w", err)
				}
				if _, err := env.b.Collect(env.ctx); err != nil && !disposed(err) {
					return fmt.Errorf("Collect: %w", err)
				}
				extra, err := env.b.Parse(env.ctx, `<r/>`)
				if err != nil {
					if !disposed(err) {
						return fmt.Errorf("Parse: %w", err)
					}
					continue
				}
				if err := extra.Close(); err != nil {
					return fmt.Errorf("Close: %w", err)
				}
			}
			if i%2 == 0 {
				return doc.Close()
			}
			return nil
		})
	}
	g.Go(func() error { return env.b.Close(env.ctx) })
	require.NoError(t, g.Wait())

	for _, doc := range docs {
		require.NoError(t, doc.Close())
		require.True(t, doc.Closed())
	}
}

func TestTranslate_AccessPath(t *testing.T) {
	env := newTestEnv(t, nil)
	thr := &vm.Throwable{
		Class:   vm.ClassIllegalStateException,
		Message: "no such object",
		Stack:   []vm.Frame{{Class: "VM", Method: "lookup"}},
	}

	err := env.b.translate(errors.PhaseAccess, thr, "Document", "RootName")
	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	require.Equal(t, []string{"Document", "RootName"}, e.Path)
	require.Equal(t, vm.ClassIllegalStateException, e.Foreign)
	require.Contains(t, err.Error(), "at Document.RootName")
	require.Contains(t, env.diag.String(), "no such object")
}
