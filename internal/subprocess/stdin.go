package subprocess

import (
	"bytes"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newByteReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}
