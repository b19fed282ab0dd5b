package buffer

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// Logger defines the logging interface used by buffers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Format describes the pixel format a buffer was allocated for.
type Format struct {
	// Name identifies the format, such as "NV12". Empty is invalid.
	Name string

	// NumPlanes is the plane count the format declares, or 0 when unknown.
	NumPlanes int
}

// Valid reports whether the format is usable.
func (f Format) Valid() bool {
	return f.Name != "" && f.NumPlanes >= 0
}

// PlaneInfo is the hardware-reported layout of one plane.
type PlaneInfo struct {
	Stride uint32
	Offset uint32
	Size   uint32
}

// Descriptor identifies a buffer and its layout.
type Descriptor struct {
	// FD is the file descriptor backing every plane; -1 when absent.
	FD int

	// Planes is the hardware-reported plane geometry.
	Planes []PlaneInfo
}

// FrameBuffer is a mapped image buffer.
type FrameBuffer interface {
	// NumPlanes returns the number of planes.
	NumPlanes() int

	// Plane returns the bytes of plane i, mapping the buffer on first use.
	// It returns nil when i is out of range or the buffer is unusable.
	Plane(i int) []byte

	// Stride, Offset and Size return plane geometry, or 0 when i is out of
	// range.
	Stride(i int) uint32
	Offset(i int) uint32
	Size(i int) uint32

	// JPEGBufferSize returns the usable size of a JPEG output buffer.
	JPEGBufferSize(maxSize int64) int64

	// Err returns the first error the buffer encountered.
	Err() error

	// Close unmaps the buffer. It does not close the descriptor.
	Close() error
}

// Mapped is a FrameBuffer backed by a single shared file descriptor.
//
// It is safe for concurrent use.
type Mapped struct {
	fd     int
	prot   int
	length int64
	planes []PlaneInfo
	logger Logger

	mu      sync.Mutex
	mapping []byte
	views   [][]byte
	err     error
}

var _ FrameBuffer = (*Mapped)(nil)

// NewMapped validates desc against format and the size of the buffer
// behind desc.FD. prot is the mmap protection (unix.PROT_READ, optionally
// with unix.PROT_WRITE). Any validation failure is recorded in Err.
//
// When the format declares a plane count, the descriptor must report
// exactly that many planes.
func NewMapped(desc Descriptor, format Format, prot int, logger Logger) *Mapped {
	if logger == nil {
		logger = noopLogger{}
	}
	b := &Mapped{
		fd:     desc.FD,
		prot:   prot,
		length: -1,
		logger: logger,
	}

	if !format.Valid() {
		b.fail(fmt.Errorf("buffer: invalid pixel format %q: %w", format.Name, unix.EINVAL))
		return b
	}
	if desc.FD < 0 {
		b.fail(fmt.Errorf("buffer: no valid file descriptor: %w", unix.EINVAL))
		return b
	}

	length, err := unix.Seek(desc.FD, 0, io.SeekEnd)
	if err != nil {
		b.fail(fmt.Errorf("buffer: getting length of fd %d: %w", desc.FD, err))
		return b
	}
	b.length = length

	if format.NumPlanes > 0 && len(desc.Planes) != format.NumPlanes {
		b.fail(fmt.Errorf("buffer: format %s has %d planes, hardware reports %d: %w",
			format.Name, format.NumPlanes, len(desc.Planes), unix.EINVAL))
		return b
	}

	for i, p := range desc.Planes {
		if int64(p.Offset)+int64(p.Size) > length {
			b.fail(fmt.Errorf("buffer: plane %d out of buffer (offset %d, size %d, length %d): %w",
				i, p.Offset, p.Size, length, unix.EINVAL))
			return b
		}
	}
	b.planes = append([]PlaneInfo(nil), desc.Planes...)

	logger.Debug("buffer created",
		"format", format.Name,
		"fd", desc.FD,
		"planes", len(b.planes),
		"length", length,
	)
	return b
}

// NumPlanes implements FrameBuffer.
func (b *Mapped) NumPlanes() int {
	return len(b.planes)
}

// Plane implements FrameBuffer.
func (b *Mapped) Plane(i int) []byte {
	if i < 0 || i >= len(b.planes) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil
	}
	if b.mapping == nil && !b.mapLocked() {
		return nil
	}
	return b.views[i]
}

// Stride implements FrameBuffer.
func (b *Mapped) Stride(i int) uint32 {
	if i < 0 || i >= len(b.planes) {
		return 0
	}
	return b.planes[i].Stride
}

// Offset implements FrameBuffer.
func (b *Mapped) Offset(i int) uint32 {
	if i < 0 || i >= len(b.planes) {
		return 0
	}
	return b.planes[i].Offset
}

// Size implements FrameBuffer.
func (b *Mapped) Size(i int) uint32 {
	if i < 0 || i >= len(b.planes) {
		return 0
	}
	return b.planes[i].Size
}

// JPEGBufferSize implements FrameBuffer. It returns 0 when the buffer
// length is unknown.
func (b *Mapped) JPEGBufferSize(maxSize int64) int64 {
	if b.length < 0 {
		return 0
	}
	return min(b.length, maxSize)
}

// Err implements FrameBuffer.
func (b *Mapped) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Close implements FrameBuffer.
func (b *Mapped) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mapping == nil {
		return nil
	}
	err := unix.Munmap(b.mapping)
	b.mapping = nil
	b.views = nil
	if err != nil {
		return fmt.Errorf("buffer: unmapping fd %d: %w", b.fd, err)
	}
	return nil
}

func (b *Mapped) mapLocked() bool {
	if b.length == 0 {
		b.err = fmt.Errorf("buffer: mapping empty buffer: %w", unix.EINVAL)
		return false
	}

	data, err := unix.Mmap(b.fd, 0, int(b.length), b.prot, unix.MAP_SHARED)
	if err != nil {
		b.err = fmt.Errorf("buffer: mapping fd %d: %w", b.fd, err)
		b.logger.Error("failed to map buffer", "fd", b.fd, "length", b.length, "error", err)
		return false
	}

	b.mapping = data
	b.views = make([][]byte, len(b.planes))
	for i, p := range b.planes {
		end := int(p.Offset) + int(p.Size)
		b.views[i] = data[p.Offset:end:end]
	}
	b.logger.Debug("buffer mapped", "fd", b.fd, "length", b.length)
	return true
}

func (b *Mapped) fail(err error) {
	b.err = err
	b.logger.Error("buffer unusable", "error", err)
}
