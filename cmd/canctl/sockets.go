package main

import (
	"fmt"
	"strconv"
	"strings"

	socketcan "github.com/lion187chen/socketcan-go/v2"
	"github.com/lion187chen/socketcan-go/v2/async"
	"github.com/lion187chen/socketcan-go/v2/internal/metrics"
)

// parseFilter reads the candump filter syntax: <id>:<mask> matches when
// received_id & mask == id & mask, <id>~<mask> inverts the match. An 8
// digit id selects extended frames only.
func parseFilter(s string) (socketcan.Filter, error) {
	sep := strings.IndexAny(s, ":~")
	if sep < 0 {
		return socketcan.Filter{}, fmt.Errorf("filter %q: want <id>:<mask> or <id>~<mask>", s)
	}
	idStr, maskStr := s[:sep], s[sep+1:]
	id, err := strconv.ParseUint(idStr, 16, 32)
	if err != nil {
		return socketcan.Filter{}, fmt.Errorf("filter %q: id: %w", s, err)
	}
	mask, err := strconv.ParseUint(maskStr, 16, 32)
	if err != nil {
		return socketcan.Filter{}, fmt.Errorf("filter %q: mask: %w", s, err)
	}
	f := socketcan.NewFilter(uint32(id), uint32(mask))
	if len(idStr) == 8 {
		f.ID |= socketcan.CAN_EFF_FLAG
		f.Mask |= socketcan.CAN_EFF_FLAG
	}
	if s[sep] == '~' {
		f.ID |= socketcan.CAN_INV_FILTER
	}
	return f, nil
}

func parseFilters(ss []string) ([]socketcan.Filter, error) {
	var fs []socketcan.Filter
	for _, s := range ss {
		f, err := parseFilter(s)
		if err != nil {
			return nil, err
		}
		fs = append(fs, f)
	}
	return fs, nil
}

// rawOptions is the option surface shared by CanSocket and CanFdSocket.
type rawOptions interface {
	SetFilters([]socketcan.Filter) error
	SetErrorFilter(mask uint32) error
	SetJoinFilters(on bool) error
}

func configure(s rawOptions, filters []socketcan.Filter, join bool, errMask uint32) error {
	if len(filters) > 0 {
		if err := s.SetFilters(filters); err != nil {
			return err
		}
		if join {
			if err := s.SetJoinFilters(true); err != nil {
				return err
			}
		}
	}
	return s.SetErrorFilter(errMask)
}

// openAsync opens a blocking socket, applies the receive options and hands
// the descriptor to the poller.
func openAsync(iface string, fd bool, filters []socketcan.Filter, join bool, errMask uint32) (*async.Socket, error) {
	if fd {
		c, err := socketcan.OpenCanFd(iface)
		if err != nil {
			return nil, err
		}
		if err := configure(c, filters, join, errMask); err != nil {
			c.Close()
			return nil, err
		}
		return async.FromCanFdSocket(c)
	}
	c, err := socketcan.OpenCan(iface)
	if err != nil {
		return nil, err
	}
	if err := configure(c, filters, join, errMask); err != nil {
		c.Close()
		return nil, err
	}
	return async.FromCanSocket(c)
}

// frameWriter is satisfied by CanSocket and CanFdSocket.
type frameWriter interface {
	WriteFrameInsist(socketcan.Frame) error
	Close() error
}

func openWriter(iface string, fd bool) (frameWriter, error) {
	if fd {
		s, err := socketcan.OpenCanFd(iface)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := socketcan.OpenCan(iface)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func frameKind(f socketcan.Frame) string {
	switch f.(type) {
	case socketcan.FdFrame:
		return metrics.KindFD
	case socketcan.ErrorFrame:
		return metrics.KindError
	}
	return metrics.KindClassic
}

// observe counts f and, for error frames, logs the decoded bus error.
func observe(iface string, f socketcan.Frame) *socketcan.CanError {
	metrics.IncRx(iface, frameKind(f))
	if !f.IsError() {
		return nil
	}
	ce, err := socketcan.DecodeErrorFrame(f)
	if err != nil {
		metrics.IncError(metrics.ErrParse)
		return nil
	}
	metrics.IncBusError(ce.Class.String())
	log.Warn("bus_error", "iface", iface, "class", ce.Class.String(), "error", ce)
	return ce
}
