// Package vm is the foreign managed runtime hosting the XML parser.
//
// Objects (byte arrays, strings, documents) are identified by opaque Refs and
// stored in the engine heap. They stay alive only while reachable from a root:
//
//	global references   NewGlobalRef / DeleteGlobalRef, used for pinning
//	local frames        every object created through an attached Thread,
//	                    released by Thread.Detach
//
// Collect runs a mark and sweep over those roots; it also runs automatically
// every Config.GCThreshold allocations and when the heap is full.
//
// Foreign code reports failures as *Throwable values carrying a class name,
// a message and a stack trace. They belong to the runtime: callers on the host
// side translate them and let them go.
//
//	t, err := v.AttachCurrentThread()
//	if err != nil {
//	    return err
//	}
//	defer t.Detach()
//
//	buf, thr := t.NewByteArray(data)
//	in, thr := NewByteArrayInputStream(t, buf)
//	builder, thr := NewDocumentBuilderFactory().NewDocumentBuilder(t)
//	doc, thr := builder.Parse(in)
package vm
