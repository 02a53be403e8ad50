// Package bridge is the host side of the XML bridge.
//
// A Bridge starts the foreign runtime on first use, copies host input into
// foreign memory, parses it with a fresh foreign DocumentBuilder and hands back
// a *Document. The foreign document stays pinned (anchored by a global
// reference) until the handle is closed:
//
//	b := bridge.New(&bridge.Config{MaxInputBytes: 1 << 20})
//	defer b.Close(ctx)
//
//	doc, err := b.Parse(ctx, data) // []byte, string or io.Reader
//	if err != nil {
//	    return err
//	}
//	defer doc.Close()
//
//	enc, err := doc.Encoding()
//
// # Errors
//
// Foreign exceptions never cross the boundary. Their stack trace is printed to
// Config.Diagnostics, a structured entry is logged, and Parse returns an
// *errors.Error with Kind foreign_exception carrying the exception class and
// message. Test with errors.Is against errors.ErrForeignParse,
// errors.ErrInvalidInputKind, errors.ErrInitialization and errors.ErrDisposed.
//
// # Concurrency
//
// Parse may be called from many goroutines. Each call attaches its goroutine,
// locked to its OS thread, to the runtime for the duration of the call only.
// Documents are independent. A Document's accessors may be called
// concurrently; once it is closed they return errors.ErrDisposed.
package bridge
