package vm

import (
	"fmt"
	"io"
	"strings"
)

// Foreign exception classes thrown by the runtime.
const (
	ClassParseException         = "ParseException"
	ClassIOException            = "IOException"
	ClassFileNotFoundException  = "FileNotFoundException"
	ClassEncodingException      = "UnsupportedEncodingException"
	ClassConfigurationException = "ParserConfigurationException"
	ClassOutOfMemoryError       = "OutOfMemoryError"
	ClassIllegalStateException  = "IllegalStateException"
	ClassInternalError          = "InternalError"
)

// Frame is one entry of a foreign stack trace.
type Frame struct {
	Class  string
	Method string
}

func (f Frame) String() string {
	return f.Class + "." + f.Method
}

// Throwable is a foreign exception. It is only meaningful inside the runtime;
// callers across the boundary must translate it and drop it.
type Throwable struct {
	Cause   *Throwable
	Class   string
	Message string
	Stack   []Frame // innermost first
	Line    int     // source line for parse errors, 0 if unknown
}

func (t *Throwable) Error() string {
	if t.Message == "" {
		return t.Class
	}
	return t.Class + ": " + t.Message
}

// StackLines renders the stack trace one frame per line.
func (t *Throwable) StackLines() []string {
	lines := make([]string, len(t.Stack))
	for i, f := range t.Stack {
		lines[i] = "at " + f.String()
	}
	return lines
}

// PrintStackTrace writes the exception, its stack and its causes to w.
func (t *Throwable) PrintStackTrace(w io.Writer) {
	var b strings.Builder
	for cur, first := t, true; cur != nil; cur, first = cur.Cause, false {
		if !first {
			b.WriteString("Caused by: ")
		}
		b.WriteString(cur.Error())
		b.WriteByte('\n')
		for _, line := range cur.StackLines() {
			b.WriteString("\t")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	io.WriteString(w, b.String())
}

// throwf builds a Throwable carrying a snapshot of the thread's frames.
func (t *Thread) throwf(class, format string, args ...any) *Throwable {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Throwable{
		Class:   class,
		Message: msg,
		Stack:   t.snapshot(),
	}
}
