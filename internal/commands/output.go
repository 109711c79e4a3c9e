package commands

import (
	"fmt"
	"io"
	"os"
)

// Output receives user-facing command messages
type Output interface {
	Printf(format string, args ...any)
	Println(args ...any)
}

type defaultOutput struct {
	w io.Writer
}

func (o *defaultOutput) Printf(format string, args ...any) {
	fmt.Fprintf(o.writer(), format, args...)
}

func (o *defaultOutput) Println(args ...any) {
	fmt.Fprintln(o.writer(), args...)
}

func (o *defaultOutput) writer() io.Writer {
	if o.w == nil {
		return os.Stdout
	}
	return o.w
}
