package query

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	headerSimple int32 = -1
	headerSplit  int32 = -2

	requestRules  = 0x56
	typeChallenge = 0x41
	typeRules     = 0x45

	maxPacketSize      = 65535
	maxChallengeRounds = 3
	maxSplitPackets    = 64
)

var noChallenge = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}

func rulesRequest(challenge [4]byte) []byte {
	req := []byte{0xFF, 0xFF, 0xFF, 0xFF, requestRules}
	return append(req, challenge[:]...)
}

// readResponse reads one logical response, reassembling split packets.
// The returned payload starts at the response type byte.
func readResponse(r io.Reader) ([]byte, error) {
	buf := make([]byte, maxPacketSize)

	n, err := r.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	pkt := buf[:n]
	if len(pkt) < 4 {
		return nil, errors.New("short packet")
	}

	switch int32(binary.LittleEndian.Uint32(pkt)) {
	case headerSimple:
		return append([]byte(nil), pkt[4:]...), nil
	case headerSplit:
		return readSplit(r, buf, pkt)
	default:
		return nil, errors.New("invalid packet header")
	}
}

// splitHeader is the Source engine multi-packet header.
type splitHeader struct {
	id     uint32
	total  int
	number int
}

func parseSplit(pkt []byte) (splitHeader, []byte, error) {
	// header(4) id(4) total(1) number(1) size(2)
	if len(pkt) < 12 {
		return splitHeader{}, nil, errors.New("short split packet")
	}
	h := splitHeader{
		id:     binary.LittleEndian.Uint32(pkt[4:8]),
		total:  int(pkt[8]),
		number: int(pkt[9]),
	}
	if h.id&0x80000000 != 0 {
		return splitHeader{}, nil, errors.New("compressed split packets are not supported")
	}
	if h.total == 0 || h.total > maxSplitPackets || h.number >= h.total {
		return splitHeader{}, nil, fmt.Errorf("invalid split packet %d/%d", h.number, h.total)
	}
	return h, pkt[12:], nil
}

func readSplit(r io.Reader, buf, first []byte) ([]byte, error) {
	h, body, err := parseSplit(first)
	if err != nil {
		return nil, err
	}

	parts := make([][]byte, h.total)
	parts[h.number] = append([]byte(nil), body...)
	received := 1

	for received < h.total {
		n, err := r.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("receive split %d/%d: %w", received, h.total, err)
		}
		next, body, err := parseSplit(buf[:n])
		if err != nil {
			return nil, err
		}
		if next.id != h.id || next.total != h.total {
			continue
		}
		if parts[next.number] == nil {
			parts[next.number] = append([]byte(nil), body...)
			received++
		}
	}

	var joined []byte
	for _, p := range parts {
		joined = append(joined, p...)
	}
	if len(joined) < 4 || int32(binary.LittleEndian.Uint32(joined)) != headerSimple {
		return nil, errors.New("invalid reassembled payload")
	}
	return joined[4:], nil
}
