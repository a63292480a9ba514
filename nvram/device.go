// Package nvram adapts raw byte-addressable non-volatile media (FRAM,
// battery-backed SRAM, image files) into the addressing model the engine
// expects: a magic-stamped region whose usable space starts after the
// magic word and is accessed with big-endian integer helpers.
package nvram

import (
	"encoding/binary"
	"fmt"

	"github.com/ngaut/log"
)

// Magic marks the first four bytes of an initialised region. A region
// without it is considered blank and is cleared on Begin.
const Magic uint32 = 0xFADE0042

// dataOffset is where usable space starts: right after the magic word.
const dataOffset = 4

// Medium is a raw byte-addressable region of fixed capacity. Offsets are
// physical. A completed WriteRaw must be committed to the medium before it
// returns; a write interrupted by power loss may leave partial effects on
// the addressed range, which the engine tolerates.
type Medium interface {
	Capacity() uint16
	ReadRaw(offset uint16, buf []byte)
	WriteRaw(offset uint16, buf []byte)
}

// Device exposes the usable space of a Medium. All offsets taken by its
// methods are usable offsets; out-of-range access is a programming error
// and panics.
type Device struct {
	m Medium
}

func NewDevice(m Medium) *Device {
	if m.Capacity() <= dataOffset {
		panic(fmt.Sprintf("nvram: capacity %d leaves no usable space", m.Capacity()))
	}
	return &Device{m: m}
}

// Begin checks the magic word and clears the region when it is absent.
func (d *Device) Begin() error {
	if !d.isMagicSet() {
		log.Info("Did not find magic number, clearing storage")
		d.Reset()
	}
	return nil
}

// Size returns the usable size of the region.
func (d *Device) Size() uint16 {
	return d.m.Capacity() - dataOffset
}

// Reset fills the whole region with zeroes in small blocks, then rewrites
// the magic word.
func (d *Device) Reset() {
	var zeroes [100]byte
	capacity := d.m.Capacity()
	for off := uint16(0); off < capacity; {
		n := uint16(len(zeroes))
		if capacity-off < n {
			n = capacity - off
		}
		d.m.WriteRaw(off, zeroes[:n])
		off += n
	}
	var magic [4]byte
	binary.BigEndian.PutUint32(magic[:], Magic)
	d.m.WriteRaw(0, magic[:])
}

func (d *Device) isMagicSet() bool {
	var buf [4]byte
	d.m.ReadRaw(0, buf[:])
	return binary.BigEndian.Uint32(buf[:]) == Magic
}

func (d *Device) check(offset uint16, n int) {
	if int(offset)+n > int(d.Size()) {
		panic(fmt.Sprintf("nvram: access [%d,%d) outside usable size %d", offset, int(offset)+n, d.Size()))
	}
}

func (d *Device) Read(offset uint16, buf []byte) {
	d.check(offset, len(buf))
	d.m.ReadRaw(dataOffset+offset, buf)
}

func (d *Device) Write(offset uint16, buf []byte) {
	d.check(offset, len(buf))
	d.m.WriteRaw(dataOffset+offset, buf)
}

func (d *Device) ReadByte(offset uint16) byte {
	var buf [1]byte
	d.Read(offset, buf[:])
	return buf[0]
}

func (d *Device) WriteByte(offset uint16, b byte) {
	buf := [1]byte{b}
	d.Write(offset, buf[:])
}

func (d *Device) ReadUint16(offset uint16) uint16 {
	var buf [2]byte
	d.Read(offset, buf[:])
	return binary.BigEndian.Uint16(buf[:])
}

func (d *Device) WriteUint16(offset uint16, value uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], value)
	d.Write(offset, buf[:])
}

func (d *Device) ReadUint32(offset uint16) uint32 {
	var buf [4]byte
	d.Read(offset, buf[:])
	return binary.BigEndian.Uint32(buf[:])
}

func (d *Device) WriteUint32(offset uint16, value uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], value)
	d.Write(offset, buf[:])
}
