// Copyright © 2018 The ELPS authors

package sandbox

import (
	"bytes"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// logWriter is the interpreter's stderr.  Complete lines are logged at debug
// level.
type logWriter struct {
	log *logrus.Entry
	mu  sync.Mutex
	buf []byte
}

var _ io.Writer = (*logWriter)(nil)

func newLogWriter(log *logrus.Entry) *logWriter {
	return &logWriter{log: log.WithField("stream", "stderr")}
}

func (w *logWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			return len(b), nil
		}
		w.log.Debug(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
}
