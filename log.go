package socketcan

import (
	"log/slog"

	"github.com/lion187chen/socketcan-go/v2/internal/logging"
)

// SetLogger routes the package's debug logs (socket lifecycle, swallowed
// close errors, netlink requests) to l.
func SetLogger(l *slog.Logger) { logging.Set(l) }

// Logger returns the logger the package currently writes to.
func Logger() *slog.Logger { return logging.L() }
