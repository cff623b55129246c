package transport

import (
	"io"

	"github.com/kstaniek/go-canfd-server/internal/can"
)

// FrameDecoder decodes a single CAN FD frame from a stream.
type FrameDecoder interface {
	Decode(r io.Reader) (can.Frame, error)
}

// MultiFrameDecoder optionally drains multiple frames from a stream.
type MultiFrameDecoder interface {
	DecodeN(r io.Reader, max int, onFrame func(can.Frame)) (int, error)
}

// FrameBatchEncoder writes a batch of frames to a stream.
type FrameBatchEncoder interface {
	EncodeTo(w io.Writer, frames []can.Frame) (int, error)
}

// FrameCodec is what the TCP server needs from a wire codec.
type FrameCodec interface {
	FrameDecoder
	FrameBatchEncoder
}

// FrameSink is a generic CAN frame transmission target.
type FrameSink interface {
	SendFrame(can.Frame) error
}
