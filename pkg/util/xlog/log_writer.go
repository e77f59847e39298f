package xlog

import (
	"strings"

	"github.com/DragonSecurity/podrelay/pkg/util"
)

// LogWriter forwards writes to a component logger at a fixed level.
// It lets stdlib consumers such as http.Server.ErrorLog share the relay's log output.
type LogWriter struct {
	logFunc func(string)
}

func (w LogWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.logFunc(msg)
	}
	return len(p), nil
}

func NewDebugWriter(l *util.Logger) LogWriter {
	return LogWriter{logFunc: func(msg string) { l.Debugf("%s", msg) }}
}

func NewInfoWriter(l *util.Logger) LogWriter {
	return LogWriter{logFunc: func(msg string) { l.Infof("%s", msg) }}
}

func NewWarnWriter(l *util.Logger) LogWriter {
	return LogWriter{logFunc: func(msg string) { l.Warnf("%s", msg) }}
}

func NewErrorWriter(l *util.Logger) LogWriter {
	return LogWriter{logFunc: func(msg string) { l.Errorf("%s", msg) }}
}
