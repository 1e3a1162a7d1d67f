package source

import (
	"hash/crc32"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"github.com/Neumenon/streamfmt/streamfmt"
)

// crcTable is the IEEE CRC-32 table.
var crcTable = crc32.MakeTable(crc32.IEEE)

// ComputeCRC computes CRC-32 IEEE of the given bytes.
func ComputeCRC(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}

// Buffer is a document held entirely in memory.
type Buffer struct {
	path   string
	data   []byte
	lease  *streamfmt.Lease
	mapped bool
	closer func() error
}

// NewBuffer wraps data that is already in memory.
func NewBuffer(path string, data []byte) *Buffer {
	return &Buffer{path: path, data: data, lease: streamfmt.NewLease()}
}

// Path returns the path the buffer was loaded from.
func (b *Buffer) Path() string { return b.path }

// Len returns the size of the document in bytes.
func (b *Buffer) Len() int { return len(b.data) }

// Mapped reports whether the buffer is a memory map.
func (b *Buffer) Mapped() bool { return b.mapped }

// Bytes returns the document. The slice is invalid after Close.
func (b *Buffer) Bytes() []byte {
	if b.lease.Revoked() {
		panic("source: buffer used after Close")
	}
	return b.data
}

// Cursor returns a new cursor over the whole document.
func (b *Buffer) Cursor() *streamfmt.Cursor {
	return streamfmt.NewLeasedCursor(b.Bytes(), b.lease)
}

// NewReader returns a reader over the whole document.
func (b *Buffer) NewReader(opts ...streamfmt.ReaderOption) *streamfmt.Reader {
	return streamfmt.NewReader(b.Cursor(), opts...)
}

// Checksum returns the CRC-32 of the document.
func (b *Buffer) Checksum() uint32 {
	return ComputeCRC(b.Bytes())
}

// Close revokes the buffer's lease and releases its memory. It is safe to
// call more than once.
func (b *Buffer) Close() error {
	if b.lease.Revoked() {
		return nil
	}
	b.lease.Revoke()
	b.data = nil
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// Open memory-maps the file at path read-only.
func Open(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open document")
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "stat document")
	}
	if info.Size() == 0 {
		// zero-length files cannot be mapped
		f.Close()
		return NewBuffer(path, nil), nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "mmap %s", path)
	}

	b := &Buffer{path: path, data: m, lease: streamfmt.NewLease(), mapped: true}
	b.closer = func() error {
		unmapErr := m.Unmap()
		closeErr := f.Close()
		if unmapErr != nil {
			return errors.Wrap(unmapErr, "unmap document")
		}
		return errors.Wrap(closeErr, "close document")
	}
	return b, nil
}
