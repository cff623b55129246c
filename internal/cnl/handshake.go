package cnl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Hello is exchanged by both peers before any frame on a cannelloni TCP link.
const Hello = "CANNELLONIv1"

// ErrBadHello is returned when the peer greets with anything but Hello.
var ErrBadHello = errors.New("cannelloni: bad hello")

// Handshake sends Hello and expects it back within timeout. Cancelling ctx
// aborts the exchange by expiring the connection deadline.
func Handshake(ctx context.Context, c net.Conn, timeout time.Duration) error {
	if err := c.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	defer c.SetDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() { _ = c.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	wrErr := make(chan error, 1)
	go func() {
		_, err := io.WriteString(c, Hello)
		wrErr <- err
	}()
	buf := make([]byte, len(Hello))
	_, rdErr := io.ReadFull(c, buf)
	if err := <-wrErr; err != nil {
		return handshakeErr(ctx, err)
	}
	if rdErr != nil {
		return handshakeErr(ctx, rdErr)
	}
	if string(buf) != Hello {
		return fmt.Errorf("handshake: %w %q", ErrBadHello, buf)
	}
	return nil
}

func handshakeErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("handshake: %w", ctx.Err())
	}
	return fmt.Errorf("handshake: %w", err)
}
