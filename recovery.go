package paramstore

import "github.com/ngaut/log"

// recoverPlan completes or rolls back whatever operation the plan left in
// flight. Re-running it after a further interruption reaches the same
// outcome; the single plan flag byte is the commit point.
func (s *Store) recoverPlan(p *plan) error {
	if p.isEmpty() {
		return nil
	}
	if p.flag != flagSet {
		log.Errorf("Recovery for plan kind %d unimplemented", p.flag)
		return ErrUnsupportedPlan
	}

	log.Infof("Recovering interrupted set of %d bytes at offset %d", p.size, p.offset)
	if name, ok := s.checkPlannedEntry(p); ok {
		// The new entry landed intact, so the set only missed its
		// cleanup. Tombstone the value it replaces, if one survives.
		found := s.findKey(0, name, false, 0)
		if found == p.offset {
			found = s.findKey(found+1, name, false, 0)
		}
		if found < s.size {
			s.dev.WriteByte(found+offEntryFlag, flagFreed)
		}
	} else if int(p.offset)+len(p.restore) <= int(s.size) {
		// Torn write: put back the record head the plan overwrote.
		s.dev.Write(p.offset, p.restore[:])
	}
	s.dev.WriteByte(offPlanFlag, flagFree)
	return nil
}

// checkPlannedEntry reads the candidate entry the plan names and accepts
// it only when the recomputed checksum matches both the plan and the
// checksum word at the entry's tail.
func (s *Store) checkPlannedEntry(p *plan) ([keySize]byte, bool) {
	var name [keySize]byte
	// Sized in int: a garbage plan that slipped past its checksum must
	// not wrap the 16-bit arithmetic into a bogus in-bounds read.
	dataSize := entryHeaderSize + (int(p.size)+unit-1)&^(unit-1)
	if int(p.offset)+dataSize+crcSize > int(s.size) {
		return name, false
	}
	buf := make([]byte, dataSize)
	s.dev.Read(p.offset, buf)
	copy(name[:], buf[offEntryName:offEntryName+keySize])
	dataCrc := calcCrc(crcSeed, buf[:entryHeaderSize+int(p.size)])
	readCrc := s.dev.ReadUint32(p.offset + uint16(dataSize))
	return name, p.entryCrc == dataCrc && p.entryCrc == readCrc
}
