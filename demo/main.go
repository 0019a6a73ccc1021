// Command demo answers every frame on vcan0 with the same payload under
// the next identifier.
package main

import (
	"log/slog"
	"os"
	"time"

	socketcan "github.com/lion187chen/socketcan-go/v2"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	socketcan.SetLogger(logger)

	sock, err := socketcan.OpenCan("vcan0")
	if err != nil {
		logger.Error("open failed", "error", err)
		os.Exit(1)
	}
	defer sock.Close()
	if err := sock.SetReadTimeout(100 * time.Millisecond); err != nil {
		logger.Error("set read timeout failed", "error", err)
		return
	}

	for {
		f, err := sock.ReadFrame()
		if socketcan.ShouldRetry(err) {
			continue
		}
		if err != nil {
			logger.Error("read failed", "error", err)
			return
		}
		if !f.IsError() && !f.IsRemote() {
			reply, err := socketcan.NewCanFrame(f.ID().Add(1), f.Data())
			if err != nil {
				logger.Error("build reply failed", "error", err)
				continue
			}
			if err := sock.WriteFrameInsist(reply); err != nil {
				logger.Error("write failed", "error", err)
				return
			}
		}
	}
}
