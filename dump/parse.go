package dump

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	socketcan "github.com/lion187chen/socketcan-go/v2"
)

var errSyntax = errors.New("malformed frame")

// ParseFrame parses the cansend / candump frame syntax:
//
//	<id>#{data}          classic data frame
//	<id>#R{len}          remote frame, len is 0..8
//	<id>##<flags>{data}  FD frame, flags is one hex digit
//
// A 3 digit id is standard, an 8 digit id is extended. An 8 digit id with
// CAN_ERR_FLAG set yields an error frame. Data bytes are two hex digits and
// may be separated by dots.
func ParseFrame(s string) (socketcan.Frame, error) {
	idPart, rest, ok := strings.Cut(s, "#")
	if !ok {
		return nil, fmt.Errorf("%w: %q has no '#'", errSyntax, s)
	}

	word, err := strconv.ParseUint(idPart, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: id %q: %w", errSyntax, idPart, err)
	}
	var id socketcan.ID
	switch len(idPart) {
	case 3:
		id, err = socketcan.StandardID(uint16(word))
	case 8:
		if uint32(word)&socketcan.CAN_ERR_FLAG != 0 {
			data, err := parseData(rest)
			if err != nil {
				return nil, err
			}
			return socketcan.NewErrorFrame(uint32(word)&socketcan.CAN_ERR_MASK, data)
		}
		id, err = socketcan.ExtendedID(uint32(word))
	default:
		return nil, fmt.Errorf("%w: id %q must have 3 or 8 digits", errSyntax, idPart)
	}
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasPrefix(rest, "#"):
		if len(rest) < 2 {
			return nil, fmt.Errorf("%w: FD frame %q has no flags", errSyntax, s)
		}
		flags, err := strconv.ParseUint(rest[1:2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: FD flags %q", errSyntax, rest[1:2])
		}
		data, err := parseData(rest[2:])
		if err != nil {
			return nil, err
		}
		return socketcan.NewFdFrame(id, data, socketcan.FdFlags(flags))
	case strings.HasPrefix(rest, "R") || strings.HasPrefix(rest, "r"):
		dlc := 0
		if len(rest) > 1 {
			if len(rest) != 2 || rest[1] < '0' || rest[1] > '8' {
				return nil, fmt.Errorf("%w: remote length %q", errSyntax, rest[1:])
			}
			dlc = int(rest[1] - '0')
		}
		return socketcan.NewRemoteFrame(id, dlc)
	}

	data, err := parseData(rest)
	if err != nil {
		return nil, err
	}
	return socketcan.NewCanFrame(id, data)
}

func parseData(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, ".", "")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of data digits in %q", errSyntax, s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errSyntax, err)
	}
	return b, nil
}

// FormatFrame renders f the way ParseFrame reads it.
func FormatFrame(f socketcan.Frame) string {
	var sb strings.Builder
	switch {
	case f.IsError():
		fmt.Fprintf(&sb, "%08X", f.IDWord()&(socketcan.CAN_ERR_FLAG|socketcan.CAN_ERR_MASK))
	case f.IsExtended():
		fmt.Fprintf(&sb, "%08X", f.RawID())
	default:
		fmt.Fprintf(&sb, "%03X", f.RawID())
	}
	sb.WriteByte('#')

	switch fr := f.(type) {
	case socketcan.FdFrame:
		fmt.Fprintf(&sb, "#%X%X", uint8(fr.Flags()), fr.Data())
	default:
		if f.IsRemote() {
			sb.WriteByte('R')
			if f.Len() > 0 {
				sb.WriteString(strconv.Itoa(f.Len()))
			}
			break
		}
		fmt.Fprintf(&sb, "%X", f.Data())
	}
	return sb.String()
}
