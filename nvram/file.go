package nvram

import (
	"fmt"
	"os"

	"github.com/pingcap/errors"
	"golang.org/x/sys/unix"
)

// File is a Medium backed by a memory-mapped image file. It stands in for
// an external FRAM part on hosts that keep the parameter image on disk.
type File struct {
	fd  *os.File
	buf []byte
}

// OpenFile maps the image at path, creating it with the given capacity
// when it does not exist. An existing image must match capacity exactly.
func OpenFile(path string, capacity uint16) (*File, error) {
	if capacity == 0 {
		return nil, errors.Errorf("Invalid capacity: %d", capacity)
	}
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to open image: %q", path)
	}
	fi, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, errors.Wrapf(err, "Unable to stat image: %q", path)
	}
	if fi.Size() == 0 {
		if err = fd.Truncate(int64(capacity)); err != nil {
			fd.Close()
			return nil, errors.Wrapf(err, "Unable to size image: %q", path)
		}
	} else if fi.Size() != int64(capacity) {
		fd.Close()
		return nil, errors.Errorf("Image size %d does not match capacity %d", fi.Size(), capacity)
	}
	buf, err := unix.Mmap(int(fd.Fd()), 0, int(capacity), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		fd.Close()
		return nil, errors.Wrapf(err, "Unable to mmap image: %q", path)
	}
	return &File{fd: fd, buf: buf}, nil
}

func (f *File) Capacity() uint16 {
	return uint16(len(f.buf))
}

func (f *File) ReadRaw(offset uint16, buf []byte) {
	f.check(offset, len(buf))
	copy(buf, f.buf[offset:])
}

func (f *File) WriteRaw(offset uint16, buf []byte) {
	f.check(offset, len(buf))
	copy(f.buf[offset:], buf)
}

// Sync flushes the mapped image to its file.
func (f *File) Sync() error {
	return unix.Msync(f.buf, unix.MS_SYNC)
}

// Close syncs and unmaps the image.
func (f *File) Close() error {
	if err := unix.Msync(f.buf, unix.MS_SYNC); err != nil {
		return err
	}
	if err := unix.Munmap(f.buf); err != nil {
		return err
	}
	f.buf = nil
	return f.fd.Close()
}

func (f *File) check(offset uint16, n int) {
	if int(offset)+n > len(f.buf) {
		panic(fmt.Sprintf("nvram: raw access [%d,%d) outside capacity %d", offset, int(offset)+n, len(f.buf)))
	}
}
