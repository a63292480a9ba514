package paramstore

import "encoding/binary"

// On-media encoding of an entry header:
// +---------+----------+------------------+
// | size(2) | status(2)|     name(8)      |
// +---------+----------+------------------+
// Only the first status byte is interpreted; the second is reserved.
func encodeEntryHeader(e *entryHeader, buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], e.size)
	buf[2] = e.flag
	buf[3] = 0
	copy(buf[offEntryName:entryHeaderSize], e.name[:])
}

func decodeEntryHeader(buf []byte) entryHeader {
	var e entryHeader
	e.size = binary.BigEndian.Uint16(buf[0:2])
	e.flag = buf[2]
	copy(e.name[:], buf[offEntryName:entryHeaderSize])
	return e
}

// decodeEntryStub decodes just the size and status words, all the
// free-space walker needs.
func decodeEntryStub(buf []byte) entryHeader {
	return entryHeader{
		size: binary.BigEndian.Uint16(buf[0:2]),
		flag: buf[2],
	}
}

// On-media encoding of the plan:
// +---------+-----------+-----------+---------+--------------+------------+-------------+
// | flag(1) | unused(1) | offset(2) | size(2) | entry_crc(4) | restore(4) | plan_crc(4) |
// +---------+-----------+-----------+---------+--------------+------------+-------------+
// plan_crc covers the preceding 14 bytes.
func encodePlan(p *plan, buf []byte) {
	buf[0] = p.flag
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], p.offset)
	binary.BigEndian.PutUint16(buf[4:6], p.size)
	binary.BigEndian.PutUint32(buf[6:10], p.entryCrc)
	copy(buf[10:14], p.restore[:])
	binary.BigEndian.PutUint32(buf[14:planSize], p.crc)
}

func decodePlan(buf []byte) plan {
	var p plan
	p.flag = buf[0]
	p.offset = binary.BigEndian.Uint16(buf[2:4])
	p.size = binary.BigEndian.Uint16(buf[4:6])
	p.entryCrc = binary.BigEndian.Uint32(buf[6:10])
	copy(p.restore[:], buf[10:14])
	p.crc = binary.BigEndian.Uint32(buf[14:planSize])
	return p
}

// entryCrc checksums the encoded header followed by the payload. The
// header is checksummed as written, set flag included.
func entryCrc(e *entryHeader, payload []byte) uint32 {
	var hdr [entryHeaderSize]byte
	encodeEntryHeader(e, hdr[:])
	crc := calcCrc(crcSeed, hdr[:])
	return calcCrc(crc, payload)
}
