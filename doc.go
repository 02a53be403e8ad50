// Package xmlbridge lets Go code parse XML documents inside a separate,
// garbage-collected object runtime and hold the results through opaque handles.
//
// The parser, its documents and its strings live in the foreign runtime. Their
// bytes are stored in a WebAssembly linear memory and reclaimed by the runtime's
// own collector. The host only ever sees a *bridge.Document, which keeps its
// foreign document pinned until it is closed.
//
// # Architecture Overview
//
//	xmlbridge/           Root package with the Memory and Allocator interfaces
//	├── bridge/          Host API: Parse, ParseFile, Document handles, metrics
//	├── pin/             Pin table that anchors documents for the collector
//	├── vm/              Foreign runtime: objects, threads, collector, parser
//	├── engine/          wazero heap module, linear memory and block allocator
//	├── errors/          Structured error types
//	└── cmd/xmlbridge/   Command-line host with an interactive inspector
//
// # Quick Start
//
//	ctx := context.Background()
//	b := bridge.New(nil)
//	defer b.Close(ctx)
//
//	doc, err := b.Parse(ctx, []byte(`<?xml version="1.0" encoding="UTF-8"?><a/>`))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer doc.Close()
//
//	enc, _ := doc.Encoding()
//	fmt.Println(enc) // "UTF-8"
//
// # Failure Signals
//
// A failed parse returns a nil document and an error tagged with a Phase and
// Kind from the errors package. Foreign exceptions never cross the boundary:
// their stack trace is printed to the configured diagnostics writer and logged,
// and only the class name and message are kept in the returned error.
package xmlbridge
