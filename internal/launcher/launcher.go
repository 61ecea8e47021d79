// Package launcher dispatches URIs to the application the operating system
// has registered for their scheme, e.g. an authenticator for otpauth://.
package launcher

import (
	"io"

	"github.com/pkg/browser"
	"go.uber.org/zap"
)

// Launcher implements presenter.URIOpener on top of the OS dispatcher.
type Launcher struct {
	log  *zap.Logger
	open func(uri string) error
}

// New returns a Launcher using xdg-open, open or rundll32 depending on the OS.
// Output of the helper program is discarded so it cannot garble a terminal UI.
func New(log *zap.Logger) *Launcher {
	if log == nil {
		log = zap.NewNop()
	}
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return &Launcher{log: log, open: browser.OpenURL}
}

// OpenURI hands uri to the OS. Failures, such as no registered handler, are
// logged and otherwise ignored.
func (l *Launcher) OpenURI(uri string) {
	if err := l.open(uri); err != nil {
		l.log.Warn("failed to open uri", zap.Error(err))
		return
	}
	l.log.Debug("opened uri")
}
