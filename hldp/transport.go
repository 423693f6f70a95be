package hldp

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Conn wraps a single accepted TCP connection and implements HLDP's framed,
// blocking, all-or-nothing read/write (spec.md §4.1). There is no message
// ID and no checksum; any short read or write is a fatal transport
// failure, reported as an error rather than thrown across the interpreter
// boundary.
type Conn struct {
	nc  net.Conn
	br  *bufio.Reader
	log *logrus.Entry
}

// NewConn wraps an already-accepted connection. log should already carry a
// session_id field for correlation.
func NewConn(nc net.Conn, log *logrus.Entry) *Conn {
	return &Conn{nc: nc, br: bufio.NewReader(nc), log: log}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// WriteFrame sends a header followed by payload. A short or failed write
// is fatal.
func (c *Conn) WriteFrame(t PacketType, payload []byte) error {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(t))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	if err := c.writeAll(hdr[:]); err != nil {
		return fmt.Errorf("hldp: write header for %s: %w", t, err)
	}
	if len(payload) == 0 {
		return nil
	}
	if err := c.writeAll(payload); err != nil {
		return fmt.Errorf("hldp: write payload for %s: %w", t, err)
	}
	return nil
}

func (c *Conn) writeAll(p []byte) error {
	n, err := c.nc.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("hldp: short write: wrote %d of %d bytes", n, len(p))
	}
	return nil
}

// ReadFrame blocks for the next header and its full payload.
func (c *Conn) ReadFrame() (PacketType, []byte, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(c.br, hdr[:]); err != nil {
		return Invalid, nil, fmt.Errorf("hldp: read header: %w", err)
	}
	t := PacketType(binary.LittleEndian.Uint32(hdr[0:4]))
	size := binary.LittleEndian.Uint32(hdr[4:8])
	if size == 0 {
		return t, nil, nil
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(c.br, payload); err != nil {
		return Invalid, nil, fmt.Errorf("hldp: read payload for %s: %w", t, err)
	}
	return t, payload, nil
}

// HasIncomingData is a non-blocking readiness poll with a zero-length
// timeout, used only while the target is running (spec.md §4.1). It peeks
// a single byte without consuming it, so it never disturbs a subsequent
// ReadFrame.
func (c *Conn) HasIncomingData() bool {
	if c.br.Buffered() > 0 {
		return true
	}
	_ = c.nc.SetReadDeadline(time.Now())
	_, err := c.br.Peek(1)
	c.nc.SetReadDeadline(time.Time{})
	return err == nil
}

// WriteBanner writes the zero-terminated banner string that precedes any
// framed traffic.
func (c *Conn) WriteBanner() error {
	return c.writeAll(append([]byte(Banner), 0))
}

// ServerHandshake performs the server side of the handshake: banner,
// scHandshake, then a blocking wait for csHandshake. Any deviation is
// fatal (spec.md §4.1, §6).
func ServerHandshake(c *Conn) error {
	if err := c.WriteBanner(); err != nil {
		return fmt.Errorf("hldp: write banner: %w", err)
	}
	payload := NewReplyBuilder().AppendInt32(Version).AppendString(Delimiter).Bytes()
	if err := c.WriteFrame(ScHandshake, payload); err != nil {
		return fmt.Errorf("hldp: write scHandshake: %w", err)
	}
	t, _, err := c.ReadFrame()
	if err != nil {
		return fmt.Errorf("hldp: read csHandshake: %w", err)
	}
	if t != CsHandshake {
		return fmt.Errorf("hldp: expected csHandshake, got %s", t)
	}
	return nil
}

// ClientHandshake performs the client side of the handshake: read the
// banner, read scHandshake and check its version, then send csHandshake.
// Returns the delimiter the server advertised.
func ClientHandshake(c *Conn) (string, error) {
	banner := make([]byte, len(Banner)+1)
	if _, err := io.ReadFull(c.br, banner); err != nil {
		return "", fmt.Errorf("hldp: read banner: %w", err)
	}
	if string(banner[:len(Banner)]) != Banner || banner[len(Banner)] != 0 {
		return "", fmt.Errorf("hldp: unexpected banner %q", banner)
	}
	t, payload, err := c.ReadFrame()
	if err != nil {
		return "", fmt.Errorf("hldp: read scHandshake: %w", err)
	}
	if t != ScHandshake {
		return "", fmt.Errorf("hldp: expected scHandshake, got %s", t)
	}
	r := NewRequestReader(payload)
	version, err := r.ReadInt32()
	if err != nil {
		return "", fmt.Errorf("hldp: decode scHandshake: %w", err)
	}
	if version != Version {
		return "", fmt.Errorf("hldp: unsupported protocol version %d", version)
	}
	delimiter, err := r.ReadString()
	if err != nil {
		return "", fmt.Errorf("hldp: decode scHandshake: %w", err)
	}
	if err := c.WriteFrame(CsHandshake, nil); err != nil {
		return "", fmt.Errorf("hldp: write csHandshake: %w", err)
	}
	return delimiter, nil
}
