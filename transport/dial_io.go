package transport

import (
	"io"
	"os"
)

// DialIO joins a WriteCloser and a ReadCloser into one connection.
func DialIO(out io.WriteCloser, in io.ReadCloser) io.ReadWriteCloser {
	return &ioduplex{out, in}
}

// DialStdio is DialIO over Stdout and Stdin.
func DialStdio() io.ReadWriteCloser {
	return DialIO(os.Stdout, os.Stdin)
}
