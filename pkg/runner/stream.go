package runner

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// prefixedWriter adds a prefix to each line written.
type prefixedWriter struct {
	prefix string
	writer io.Writer
	buf    []byte
}

func (w *prefixedWriter) Write(p []byte) (n int, err error) {
	n = len(p)
	w.buf = append(w.buf, p...)

	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx == -1 {
			break
		}

		line := w.buf[:idx+1]
		w.buf = w.buf[idx+1:]

		if _, err := fmt.Fprintf(w.writer, "%s%s", w.prefix, line); err != nil {
			return n, err
		}
	}

	return n, nil
}

// Flush writes a trailing partial line.
func (w *prefixedWriter) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}

	_, err := fmt.Fprintf(w.writer, "%s%s\n", w.prefix, w.buf)
	w.buf = nil

	return err
}

// copyLines copies r to w one line at a time, in order, until EOF. Lines
// of any length are kept whole. Invalid UTF-8 is passed through.
func copyLines(w io.Writer, r io.Reader) error {
	br := bufio.NewReader(r)

	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			if _, werr := w.Write(line); werr != nil {
				return werr
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}
	}
}
