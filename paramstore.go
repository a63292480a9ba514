// Package paramstore implements a crash-safe key-value parameter store on
// a small byte-addressable non-volatile memory. Keys are identifiers of up
// to eight bytes; values are small opaque byte strings.
//
// On-media format (all integers big-endian):
//
//	HEADER
//	 2  FORMAT   Layout version; 0 means freshly cleared.
//	 2  SIZE     Usable size the store was initialised with.
//	18  PLAN     Single-slot write-ahead record for the set in flight.
//	ENTRIES
//	 2  SIZE     Free record: bytes to the next record.
//	             Set/freed record: declared payload size.
//	 2  STATUS   First byte is the flag: 0 free, 1 set, 2 freed.
//	 8  KEY      Zero-padded name. Free records may keep stale bytes here;
//	             only the status flag marks a record as free.
//	 N  CONTENT
//	 P  PADDING  Up to the 4-byte alignment of N.
//	 4  CRC      Over the 12-byte header and the first N content bytes.
//
// Every set stages its intent in the plan before touching the chain, so a
// power loss at any byte leaves a state Begin can recover: each key still
// reads as either its previous value or its new one.
package paramstore

import (
	"encoding/binary"

	"github.com/ngaut/log"
	"github.com/pingcap/errors"
	art "github.com/plar/go-adaptive-radix-tree"

	"paramstore/nvram"
)

// Store is a parameter store bound to a single device. It assumes sole
// ownership of the device region; methods are not safe for concurrent use.
type Store struct {
	dev    *nvram.Device
	size   uint16
	keyDir art.Tree
}

// New binds a store to its device. Call Begin before any other method.
func New(dev *nvram.Device) *Store {
	size := dev.Size() &^ (unit - 1) // whole units only
	if size <= headerSize {
		panic("paramstore: device too small to hold a store")
	}
	return &Store{dev: dev, size: size, keyDir: art.New()}
}

// Begin validates the header, initialising a fresh device, and completes
// any interrupted write before returning.
func (s *Store) Begin() error {
	if err := s.dev.Begin(); err != nil {
		return errors.Wrap(err, "Device failed begin")
	}

	var hbuf [headerSize]byte
	s.dev.Read(0, hbuf[:])
	format := binary.BigEndian.Uint16(hbuf[offFormat : offFormat+2])
	switch {
	case format == 0:
		// Freshly cleared device. Format goes in last: a torn
		// initialisation still reads as format 0 and restarts here.
		log.Infof("Initializing store with format %d and size %d", formatVersion, s.size)
		s.dev.WriteUint16(offSize, s.size)
		s.writeFree(headerSize, s.size-headerSize)
		s.dev.WriteUint16(offFormat, formatVersion)
	case format != formatVersion:
		log.Errorf("Unrecognized store format: %d", format)
		return errors.Wrapf(ErrBadFormat, "format %d", format)
	default:
		if size := binary.BigEndian.Uint16(hbuf[offSize : offSize+2]); size != s.size {
			log.Errorf("Store header size %d does not match device size %d", size, s.size)
			return ErrSizeMismatch
		}
	}

	p := decodePlan(hbuf[offPlan : offPlan+planSize])
	if err := s.recoverPlan(&p); err != nil {
		return err
	}
	s.rebuildKeyDir()
	return nil
}

// Set stores value under key, atomically replacing any prior value for the
// same key. Interruption at any byte resolves, at the next Begin, to
// either the old value or the new one.
func (s *Store) Set(key string, value []byte) error {
	name, err := makeName(key)
	if err != nil {
		return err
	}
	if len(value) > maxValueSize {
		return ErrValueTooLarge
	}
	size := uint16(len(value))

	prior := s.findKey(0, name, false, 0)
	existing := prior < s.size

	length := uint16(entryHeaderSize) + roundUnit(size) + crcSize
	offset, foundSize := s.findFreeSpace(length)
	if offset >= s.size {
		return ErrInsufficientSpace
	}

	// Split the found record when the new entry does not use all of it.
	if extra := foundSize - length; extra > 0 {
		s.writeFree(offset+length, extra)
	}

	entry := newSetEntry(size, key)
	crc := entryCrc(&entry, value)

	// Stage the intent. The flag byte goes in last, so a torn plan can
	// never read as valid.
	p := plan{flag: flagSet, offset: offset, size: size, entryCrc: crc}
	s.dev.Read(offset, p.restore[:])
	p.seal()
	var pbuf [planSize]byte
	encodePlan(&p, pbuf[:])
	s.dev.Write(offPlan+1, pbuf[1:])
	s.dev.WriteByte(offPlanFlag, pbuf[0])

	s.writeEntry(offset, &entry, value, crc)

	if existing {
		s.dev.WriteByte(prior+offEntryFlag, flagFreed)
	}

	// Single-byte commit: an empty plan means the set is complete.
	s.dev.WriteByte(offPlanFlag, flagFree)

	s.keyDir.Insert(dirKey(name), offset)
	return nil
}

// SetUint32 stores the big-endian four-byte form of value under key.
func (s *Store) SetUint32(key string, value uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], value)
	return s.Set(key, buf[:])
}

// Get reads the value stored under key into buf. The stored value must be
// exactly len(buf) bytes; a size mismatch reads as ErrKeyNotFound.
func (s *Store) Get(key string, buf []byte) error {
	name, err := makeName(key)
	if err != nil {
		return err
	}
	if len(buf) > maxValueSize {
		return ErrValueTooLarge
	}

	offset := s.lookup(name, uint16(len(buf)))
	if offset >= s.size {
		return ErrKeyNotFound
	}
	s.dev.Read(offset+entryHeaderSize, buf)
	return nil
}

// GetUint32 reads a four-byte value stored under key.
func (s *Store) GetUint32(key string) (uint32, error) {
	var buf [4]byte
	if err := s.Get(key, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// findFreeSpace walks the chain for the first record whose space can be
// reclaimed and spans at least needed bytes. First fit; freed records
// qualify just like free ones. Returns the end marker when nothing is
// large enough, along with the found record's span for split decisions.
func (s *Store) findFreeSpace(needed uint16) (offset, foundSize uint16) {
	offset = headerSize
	for offset < s.size {
		var buf [4]byte
		s.dev.Read(offset, buf[:])
		entry := decodeEntryStub(buf[:])
		total := entry.totalBytes()
		if entry.isFree() && needed <= total {
			return offset, total
		}
		offset += total
	}
	return offset, 0
}

// findKey scans for the first live record named name at or past start.
// With checkSize, a live match whose declared size differs from size reads
// as not found, the contract Get relies on. Returns the end marker when
// there is no match.
func (s *Store) findKey(start uint16, name [keySize]byte, checkSize bool, size uint16) uint16 {
	offset := uint16(headerSize)
	for offset < s.size {
		var buf [entryHeaderSize]byte
		s.dev.Read(offset, buf[:])
		entry := decodeEntryHeader(buf[:])
		if offset >= start && !entry.isFree() && entry.name == name {
			if checkSize && entry.size != size {
				return s.size
			}
			return offset
		}
		offset += entry.totalBytes()
	}
	return offset
}

// writeFree stamps a free record head at offset spanning size bytes. Only
// the size and status words are written; free records carry no checksum.
func (s *Store) writeFree(offset, size uint16) {
	var buf [4]byte
	binary.BigEndian.PutUint16(buf[0:2], size)
	buf[2] = flagFree
	s.dev.Write(offset, buf[:])
}

// writeEntry lays down the header, the payload and the tail checksum.
// Padding bytes between payload and checksum are left untouched; the
// checksum does not cover them.
func (s *Store) writeEntry(offset uint16, e *entryHeader, payload []byte, crc uint32) {
	var hdr [entryHeaderSize]byte
	encodeEntryHeader(e, hdr[:])
	s.dev.Write(offset, hdr[:])
	if len(payload) > 0 {
		s.dev.Write(offset+entryHeaderSize, payload)
	}
	s.dev.WriteUint32(offset+entryHeaderSize+roundUnit(e.size), crc)
}

func makeName(key string) ([keySize]byte, error) {
	var name [keySize]byte
	if len(key) == 0 {
		return name, ErrEmptyKey
	}
	if len(key) > keySize {
		return name, ErrKeyTooLong
	}
	copy(name[:], key)
	return name, nil
}
