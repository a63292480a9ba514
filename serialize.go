package paramstore

import (
	"bytes"

	art "github.com/plar/go-adaptive-radix-tree"
)

// Serialize writes every live entry into buf as a KEY=HEX line, uppercase
// two digits per payload byte, and terminates the text with a NUL. It
// returns the number of bytes written, terminator included. The buffer
// must be larger than the output; ErrBufferTooSmall otherwise.
func (s *Store) Serialize(buf []byte) (int, error) {
	fill := 0
	full := len(buf) == 0
	put := func(b byte) {
		if full {
			return
		}
		buf[fill] = b
		fill++
		full = fill == len(buf)
	}

	var entry entryHeader
	for offset := uint16(headerSize); offset < s.size; offset += entry.totalBytes() {
		var hbuf [entryHeaderSize]byte
		s.dev.Read(offset, hbuf[:])
		entry = decodeEntryHeader(hbuf[:])
		if entry.isFree() {
			continue
		}

		for i := 0; i < keySize && entry.name[i] != 0; i++ {
			put(entry.name[i])
		}
		put('=')

		value := make([]byte, entry.size)
		s.dev.Read(offset+entryHeaderSize, value)
		for _, b := range value {
			put(hexDigit(b >> 4))
			put(hexDigit(b))
		}
		put('\n')
		if full {
			return 0, ErrBufferTooSmall
		}
	}
	put(0)
	if full {
		return 0, ErrBufferTooSmall
	}
	return fill, nil
}

// Deserialize clears the store and loads KEY=HEX lines as produced by
// Serialize. Parsing stops at the first NUL. Every line is attempted even
// after a failure; ErrBadSerialization reports that at least one line did
// not parse or store.
func (s *Store) Deserialize(data []byte) error {
	// Reinitialise the chain the same way Begin does: spanning free
	// record first, format stamp last.
	s.dev.WriteUint16(offSize, s.size)
	s.writeFree(headerSize, s.size-headerSize)
	s.dev.WriteUint16(offFormat, formatVersion)
	s.keyDir = art.New()

	if n := bytes.IndexByte(data, 0); n >= 0 {
		data = data[:n]
	}

	ok := true
	rest := data
	for {
		nl := bytes.IndexByte(rest, '\n')
		if nl < 0 {
			break
		}
		ok = s.deserializeLine(rest[:nl]) && ok
		rest = rest[nl+1:]
	}
	// Final line with no terminator; an empty tail is not a line.
	if len(rest) > 0 {
		ok = s.deserializeLine(rest) && ok
	}
	if !ok {
		return ErrBadSerialization
	}
	return nil
}

func (s *Store) deserializeLine(line []byte) bool {
	eq := bytes.IndexByte(line, '=')
	if eq < 0 || eq > keySize {
		return false
	}
	key := string(line[:eq])
	digits := line[eq+1:]
	if len(digits)%2 != 0 {
		// Can't handle an odd number of hex digits.
		return false
	}
	value := make([]byte, len(digits)/2)
	for i := range value {
		value[i] = nibble(digits[2*i])<<4 | nibble(digits[2*i+1])
	}
	return s.Set(key, value) == nil
}

func hexDigit(b byte) byte {
	b &= 0x0F
	if b < 10 {
		return '0' + b
	}
	return 'A' + b - 10
}

func nibble(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	}
	return 0
}
