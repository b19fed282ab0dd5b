// Package buffer maps camera frame buffers into memory.
//
// A FrameBuffer exposes the planes of one image buffer. Mapped is the
// backend for buffers shared through a single file descriptor (a dmabuf
// or memfd) with planes stored at hardware-reported offsets. Geometry is
// taken from the hardware descriptor; the package never derives strides or
// plane sizes itself.
//
// Failures do not surface as returned errors from the accessors. They are
// recorded once, in a sticky error returned by Err, and the accessors
// return empty results from then on:
//
//	b := buffer.NewMapped(desc, format, unix.PROT_READ, logger)
//	if err := b.Err(); err != nil {
//	    return err
//	}
//	y := b.Plane(0)
//	if y == nil {
//	    return b.Err() // mapping failed
//	}
package buffer
