package cnl

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kstaniek/go-canfd-server/internal/can"
	"github.com/kstaniek/go-canfd-server/internal/metrics"
	"github.com/kstaniek/go-canfd-server/internal/transport"
)

// fdFrame marks the length byte of a CAN FD frame; a flags byte follows it.
const fdFrame = 0x80

// Codec encodes/decodes cannelloni frames. Stateless and safe for concurrent use.
type Codec struct{}

var _ transport.FrameCodec = (*Codec)(nil)
var _ transport.MultiFrameDecoder = (*Codec)(nil)

// ErrInvalidLength is returned when a frame length is above 64 (8 for classic frames).
var ErrInvalidLength = errors.New("cannelloni: invalid length")

// ErrTruncatedFrame is returned when the underlying reader ends mid-frame.
var ErrTruncatedFrame = errors.New("cannelloni: truncated frame")

// Encode packs frames into a single buffer.
func (c *Codec) Encode(frames []can.Frame) []byte {
	if len(frames) == 0 {
		return nil
	}
	var buf bytes.Buffer
	buf.Grow(len(frames) * (4 + 2 + can.MaxDataLen))
	_, _ = c.EncodeTo(&buf, frames)
	return buf.Bytes()
}

// EncodeTo writes frames to w and returns bytes written. Every frame goes out in
// FD form: 4-byte BE CANID, length|0x80, flags, payload.
func (c *Codec) EncodeTo(w io.Writer, frames []can.Frame) (int, error) {
	var total int
	var hdr [6]byte
	for i := range frames {
		f := &frames[i]
		if f.Len > can.MaxDataLen {
			return total, fmt.Errorf("cannelloni encode: %w (%d)", ErrInvalidLength, f.Len)
		}
		binary.BigEndian.PutUint32(hdr[0:4], f.CANID)
		hdr[4] = f.Len | fdFrame
		hdr[5] = f.Flags
		n, err := w.Write(hdr[:])
		total += n
		if err != nil {
			return total, fmt.Errorf("cannelloni encode header: %w", err)
		}
		if f.Len > 0 {
			n, err = w.Write(f.Data[:f.Len])
			total += n
			if err != nil {
				return total, fmt.Errorf("cannelloni encode data: %w", err)
			}
		}
	}
	return total, nil
}

// Decode reads exactly one frame from r. Classic frames (no 0x80 bit) are
// accepted with up to 8 bytes. It returns io.EOF at a clean frame boundary.
func (c *Codec) Decode(r io.Reader) (can.Frame, error) {
	var f can.Frame
	var idb [4]byte
	if _, err := io.ReadFull(r, idb[:]); err != nil {
		return f, err
	}
	f.CANID = binary.BigEndian.Uint32(idb[:])
	var lb [1]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return f, truncated(err)
	}
	ln := int(lb[0] &^ fdFrame)
	limit := 8
	if lb[0]&fdFrame != 0 {
		limit = can.MaxDataLen
		if _, err := io.ReadFull(r, lb[:]); err != nil {
			return f, truncated(err)
		}
		f.Flags = lb[0] | can.FlagFDF
	}
	if ln > limit {
		metrics.IncMalformed()
		return f, fmt.Errorf("cannelloni decode: %w (%d)", ErrInvalidLength, ln)
	}
	f.Len = uint8(ln)
	if ln > 0 {
		if _, err := io.ReadFull(r, f.Data[:ln]); err != nil {
			return f, truncated(err)
		}
	}
	return f, nil
}

func truncated(err error) error {
	metrics.IncMalformed()
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return fmt.Errorf("cannelloni decode: %w", ErrTruncatedFrame)
	}
	return fmt.Errorf("cannelloni decode: %w", err)
}

// DecodeN decodes up to max frames (if max>0) or until EOF (if max<=0) invoking onFrame for each.
// It returns the number of frames decoded and the terminal error (which can be io.EOF).
func (c *Codec) DecodeN(r io.Reader, max int, onFrame func(can.Frame)) (int, error) {
	var n int
	for max <= 0 || n < max {
		fr, err := c.Decode(r)
		if err != nil {
			return n, err
		}
		onFrame(fr)
		n++
	}
	return n, nil
}
