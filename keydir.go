package paramstore

import (
	art "github.com/plar/go-adaptive-radix-tree"
)

// The key directory maps key bytes to the offset of the live entry, so a
// Get does not pay for a full chain walk. The chain stays the source of
// truth: every directory hit is verified against the media and any
// disagreement falls back to the linear scan.

// lookup resolves name to the offset of a live entry of the given declared
// size, or the end marker.
func (s *Store) lookup(name [keySize]byte, size uint16) uint16 {
	if v, found := s.keyDir.Search(dirKey(name)); found {
		offset := v.(uint16)
		var buf [entryHeaderSize]byte
		s.dev.Read(offset, buf[:])
		entry := decodeEntryHeader(buf[:])
		if !entry.isFree() && entry.name == name && entry.size == size {
			return offset
		}
	}
	return s.findKey(0, name, true, size)
}

// rebuildKeyDir reindexes live entries once recovery has settled the chain.
func (s *Store) rebuildKeyDir() {
	s.keyDir = art.New()
	offset := uint16(headerSize)
	for offset < s.size {
		var buf [entryHeaderSize]byte
		s.dev.Read(offset, buf[:])
		entry := decodeEntryHeader(buf[:])
		if !entry.isFree() {
			s.keyDir.Insert(dirKey(entry.name), offset)
		}
		offset += entry.totalBytes()
	}
}

// dirKey trims the zero padding off a name, yielding the directory key.
func dirKey(name [keySize]byte) art.Key {
	n := 0
	for n < keySize && name[n] != 0 {
		n++
	}
	return art.Key(name[:n])
}
