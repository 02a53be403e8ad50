package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/xml-bridge/bridge"
)

func newParseCmd(opts *options) *cobra.Command {
	var (
		concurrency int
		metrics     bool
	)

	cmd := &cobra.Command{
		Use:   "parse [file...]",
		Short: "Parse XML documents and print their declared encoding",
		Long: `Parse each file and print one line per document:

  doc.xml  encoding=UTF-8 version=1.0 input=UTF-8 root=catalog elements=12

A document without an encoding declaration prints encoding=-.
With no arguments, or with "-", the document is read from stdin; "-" may
appear only once.
Files are opened by the foreign runtime itself; stdin is drained first and
copied into foreign memory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"-"}
			}
			if err := checkStdinOnce(args); err != nil {
				return err
			}
			var reg *prometheus.Registry
			if metrics {
				reg = prometheus.NewRegistry()
			}
			cfg, err := opts.config(cmd.ErrOrStderr(), registerer(reg))
			if err != nil {
				return err
			}
			p := &parseRun{
				bridge:      bridge.New(cfg),
				stdin:       cmd.InOrStdin(),
				concurrency: concurrency,
			}
			defer p.bridge.Close(context.Background())

			failed := p.run(cmd.Context(), args, cmd.OutOrStdout())
			if reg != nil {
				if err := writeMetrics(cmd.OutOrStdout(), reg); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", runtime.GOMAXPROCS(0), "documents parsed at once")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "print bridge metrics in Prometheus text format when done")

	return cmd
}

// registerer avoids handing a typed nil to the bridge.
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

type parseRun struct {
	bridge      *bridge.Bridge
	stdin       io.Reader
	concurrency int
}

type parseResult struct {
	line string
	err  error
}

// run parses every source and prints results in argument order.
// It returns the number of failures.
func (p *parseRun) run(ctx context.Context, sources []string, w io.Writer) int {
	results := make([]parseResult, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	if p.concurrency > 0 {
		g.SetLimit(p.concurrency)
	}
	for i, src := range sources {
		g.Go(func() error {
			line, err := p.one(ctx, src)
			results[i] = parseResult{line: line, err: err}
			return nil
		})
	}
	g.Wait()

	failed := 0
	for i, r := range results {
		name := displayName(sources[i])
		if r.err != nil {
			failed++
			fmt.Fprintf(w, "%s\terror: %v\n", name, r.err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", name, r.line)
	}
	return failed
}

func (p *parseRun) one(ctx context.Context, src string) (string, error) {
	var (
		doc *bridge.Document
		err error
	)
	if src == "-" {
		doc, err = p.bridge.Parse(ctx, p.stdin)
	} else {
		doc, err = p.bridge.ParseFile(ctx, src)
	}
	if err != nil {
		return "", err
	}
	defer doc.Close()
	return summarize(doc)
}

// summarize renders the metadata of doc as key=value pairs.
func summarize(doc *bridge.Document) (string, error) {
	enc, declared, err := doc.LookupEncoding()
	if err != nil {
		return "", err
	}
	if !declared {
		enc = "-"
	}
	version, err := doc.Version()
	if err != nil {
		return "", err
	}
	input, err := doc.InputEncoding()
	if err != nil {
		return "", err
	}
	root, err := doc.RootName()
	if err != nil {
		return "", err
	}
	elements, err := doc.ElementCount()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "encoding=%s version=%s input=%s root=%s elements=%d", enc, version, input, root, elements)
	if sa, err := doc.Standalone(); err == nil && sa != "" {
		fmt.Fprintf(&b, " standalone=%s", sa)
	}
	return b.String(), nil
}

// checkStdinOnce rejects "-" given more than once, since stdin can only be
// drained by one parse.
func checkStdinOnce(args []string) error {
	seen := false
	for _, a := range args {
		if a != "-" {
			continue
		}
		if seen {
			return fmt.Errorf("stdin (\"-\") can only be read once")
		}
		seen = true
	}
	return nil
}

func displayName(src string) string {
	if src == "-" {
		return "<stdin>"
	}
	return src
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	return writeFamilies(w, mfs)
}

func writeFamilies(w io.Writer, mfs []*dto.MetricFamily) error {
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
