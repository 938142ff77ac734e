package hybridhook

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Engine failures surface as the zero sentinel; the trace log is the only
// place their causes appear. It is discarded unless debugging is switched
// on.
var log = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.DebugLevel)
	return l
}()

// SetDebug routes install/remove traces and failure causes to stderr.
func SetDebug(on bool) {
	if on {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}
}

// SetLogger replaces the package trace logger, for hosts that want the
// traces in their own sink.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}
