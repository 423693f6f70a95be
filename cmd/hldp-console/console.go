package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/muesli/reflow/wordwrap"
	"github.com/sirupsen/logrus"

	"github.com/sysprogs-oss/hldp/hldp"
)

// stopInfo is what the reader goroutine hands the input loop whenever the
// target reports scTargetStopped, enough to render a backtrace and answer
// a later "backtrace" command without re-querying the server.
type stopInfo struct {
	reason      hldp.StopReason
	intParam    int32
	stringParam string
	frames      []hldp.BacktraceEntry
}

// console owns one client connection and the two pieces of session state
// the command loop reads: whether the target is currently stopped, and
// the last reported backtrace (for "backtrace" to redisplay without
// re-querying the server).
//
// Exactly one goroutine reads conn (run's background loop); the command
// loop only ever writes, the same single-reader discipline dapbridge.Bridge
// uses, since HLDP allows only one outstanding request at a time.
type console struct {
	conn *hldp.Conn
	log  *logrus.Entry
	out  io.Writer

	mu       sync.Mutex
	stopped  bool
	lastStop stopInfo
	exited   bool

	events chan event
}

// event is one packet the reader loop has decoded, posted to the command
// loop so it can decide whether to print it immediately or treat it as the
// reply a blocking command is waiting for.
type event struct {
	packetType hldp.PacketType
	stop       stopInfo
	exitCode   int32
	details    string
	bpID       int32
	exprDesc   hldp.ExpressionDescriptor
	children   []hldp.ExpressionDescriptor
}

func run(addr string) error {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	log := logrus.NewEntry(logrus.New())
	conn := hldp.NewConn(nc, log)
	delimiter, err := hldp.ClientHandshake(conn)
	if err != nil {
		nc.Close() //nolint:errcheck
		return fmt.Errorf("handshake: %w", err)
	}

	c := &console{conn: conn, log: log, out: os.Stdout, events: make(chan event, 16)}
	fmt.Fprintf(c.out, "connected to %s (subexpression delimiter %q)\n", addr, delimiter)

	go c.readLoop()
	return c.commandLoop()
}

func (c *console) readLoop() {
	for {
		t, payload, err := c.conn.ReadFrame()
		if err != nil {
			c.log.WithError(err).Debug("hldp-console: connection closed")
			close(c.events)
			return
		}
		c.events <- c.decode(t, payload)
	}
}

func (c *console) decode(t hldp.PacketType, payload []byte) event {
	switch t {
	case hldp.ScTargetStopped:
		reason, intParam, stringParam, frames, err := hldp.DecodeStopped(payload)
		if err != nil {
			return event{packetType: hldp.ScError, details: err.Error()}
		}
		return event{packetType: t, stop: stopInfo{reason: reason, intParam: intParam, stringParam: stringParam, frames: frames}}
	case hldp.ScError:
		r := hldp.NewRequestReader(payload)
		details, _ := r.ReadString()
		return event{packetType: t, details: details}
	case hldp.ScTargetExited:
		r := hldp.NewRequestReader(payload)
		code, _ := r.ReadInt32()
		return event{packetType: t, exitCode: code}
	case hldp.ScDebugMessage:
		r := hldp.NewRequestReader(payload)
		_, _ = r.ReadInt32()
		text, _ := r.ReadString()
		return event{packetType: t, details: text}
	case hldp.ScBreakpointCreated:
		r := hldp.NewRequestReader(payload)
		id, _ := r.ReadInt32()
		return event{packetType: t, bpID: id}
	case hldp.ScExpressionCreated:
		r := hldp.NewRequestReader(payload)
		d, _ := r.ReadExpressionDescriptor()
		return event{packetType: t, exprDesc: d}
	case hldp.ScExpressionChildrenQueried:
		r := hldp.NewRequestReader(payload)
		n, _ := r.ReadInt32()
		children := make([]hldp.ExpressionDescriptor, 0, n)
		for i := int32(0); i < n; i++ {
			d, err := r.ReadExpressionDescriptor()
			if err != nil {
				break
			}
			children = append(children, d)
		}
		return event{packetType: t, children: children}
	default:
		return event{packetType: t}
	}
}

// wrap wraps diagnostic text to 100 columns, matching the console's fixed
// terminal assumption (no ioctl-based width probe); scDebugMessage and
// scError text otherwise often overruns a narrow terminal unbroken.
func wrap(s string) string {
	return strings.TrimRight(wordwrap.String(s, 100), "\n")
}
