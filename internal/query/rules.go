package query

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"strconv"

	"github.com/HendryAvila/modwatch/internal/mods"
)

type ruleSet struct {
	info mods.ServerInfo
	mods []mods.ModRef
}

// decodeRules parses an A2S_RULES payload: a u16 rule count followed by
// null-terminated key/value pairs.
func decodeRules(payload []byte) (ruleSet, error) {
	if len(payload) < 2 {
		return ruleSet{}, errors.New("short rules payload")
	}
	count := int(binary.LittleEndian.Uint16(payload))
	rest := payload[2:]

	chunks := map[int][]byte{}
	chunkTotal := 0
	var rs ruleSet

	for i := 0; i < count && len(rest) > 0; i++ {
		key, r, err := cstring(rest)
		if err != nil {
			return ruleSet{}, fmt.Errorf("rule %d key: %w", i, err)
		}
		value, r, err := cstring(r)
		if err != nil {
			return ruleSet{}, fmt.Errorf("rule %d value: %w", i, err)
		}
		rest = r

		if k := unescape(key); len(k) == 2 && k[0] < k[1] {
			chunks[int(k[0])] = value
			chunkTotal = int(k[1])
			continue
		}
		applyTextRule(&rs.info, string(key), string(value))
	}

	if chunkTotal == 0 {
		return rs, nil
	}
	if len(chunks) != chunkTotal {
		return ruleSet{}, fmt.Errorf("mod list incomplete: %d of %d chunks", len(chunks), chunkTotal)
	}

	idx := make([]int, 0, len(chunks))
	for i := range chunks {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	var blob []byte
	for _, i := range idx {
		blob = append(blob, chunks[i]...)
	}

	modList, err := decodeMods(unescape(blob))
	if err != nil {
		return ruleSet{}, err
	}
	rs.mods = modList
	rs.info.ModCount = len(modList)
	return rs, nil
}

func applyTextRule(info *mods.ServerInfo, key, value string) {
	switch key {
	case "island":
		info.Island = value
	case "platform":
		info.Platform = value
	case "dedicated":
		d := value == "1" || value == "true"
		info.Dedicated = &d
	case "timeLeft":
		if n, err := strconv.Atoi(value); err == nil {
			info.TimeLeft = n
		}
	}
}

func cstring(b []byte) ([]byte, []byte, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return nil, nil, errors.New("unterminated string")
	}
	return b[:i], b[i+1:], nil
}

// unescape reverses DayZ's rule escaping: 01 01 -> 01, 01 02 -> 00, 01 03 -> FF.
func unescape(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] == 0x01 && i+1 < len(b) {
			switch b[i+1] {
			case 0x01:
				out = append(out, 0x01)
				i++
				continue
			case 0x02:
				out = append(out, 0x00)
				i++
				continue
			case 0x03:
				out = append(out, 0xFF)
				i++
				continue
			}
		}
		out = append(out, b[i])
	}
	return out
}

// blobReader reads little-endian fields and remembers the first short read.
type blobReader struct {
	b   []byte
	err error
}

func (r *blobReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n > len(r.b) {
		r.err = fmt.Errorf("mod blob truncated: need %d bytes, have %d", n, len(r.b))
		return nil
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *blobReader) u8() int {
	if b := r.take(1); b != nil {
		return int(b[0])
	}
	return 0
}

func (r *blobReader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

// decodeMods parses the reassembled mod blob.
func decodeMods(blob []byte) ([]mods.ModRef, error) {
	r := &blobReader{b: blob}

	r.u8() // protocol version
	r.u8() // overflow flags
	dlcFlags := r.u16()
	r.take(4 * bits.OnesCount16(dlcFlags))

	count := r.u8()
	out := make([]mods.ModRef, 0, count)
	for i := 0; i < count; i++ {
		r.take(4) // hash
		idLen := r.u8() & 0x0F
		idBytes := r.take(idLen)
		nameLen := r.u8()
		name := r.take(nameLen)
		if r.err != nil {
			return nil, fmt.Errorf("mod %d: %w", i, r.err)
		}

		var id uint64
		for j := len(idBytes) - 1; j >= 0; j-- {
			id = id<<8 | uint64(idBytes[j])
		}
		out = append(out, mods.ModRef{
			Name:       string(name),
			WorkshopID: strconv.FormatUint(id, 10),
		})
	}
	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}
