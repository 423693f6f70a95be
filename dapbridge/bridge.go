package dapbridge

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/sysprogs-oss/hldp/hldp"
)

// Bridge owns one HLDP client connection and exports everything it observes
// as translated DAP events to sink, plus a small set of fire-and-forget
// control methods. It does not implement full DAP request/response
// correlation (see package doc): Continue/StepIn/etc. send the matching
// HLDP command and return immediately, the way handler.go's onContinue/
// onNext/onStepIn/onStepOut reply to the DAP client before the engine call
// resolves. Run's read loop is the only goroutine allowed to call
// conn.ReadFrame, matching HLDP's single-outstanding-request protocol.
type Bridge struct {
	conn *hldp.Conn
	log  *logrus.Entry

	mu     sync.Mutex
	sink   io.Writer
	seq    int64
	closed atomic.Bool
}

// Dial connects to an HLDP server at addr, performs the client handshake,
// and returns a Bridge ready for Run.
func Dial(addr string, sink io.Writer, log *logrus.Entry) (*Bridge, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dapbridge: dial %s: %w", addr, err)
	}
	conn := hldp.NewConn(nc, log)
	if _, err := hldp.ClientHandshake(conn); err != nil {
		nc.Close()
		return nil, fmt.Errorf("dapbridge: handshake: %w", err)
	}
	return &Bridge{conn: conn, sink: sink, log: log}, nil
}

// NewBridge wraps an already-handshaken connection, for tests driving both
// ends over net.Pipe.
func NewBridge(conn *hldp.Conn, sink io.Writer, log *logrus.Entry) *Bridge {
	return &Bridge{conn: conn, sink: sink, log: log}
}

// Run reads HLDP frames until the connection closes or the target exits,
// translating each into a DAP message written to sink. It returns nil on a
// clean scTargetExited and the read error otherwise.
func (b *Bridge) Run() error {
	b.emit(&dap.InitializedEvent{Event: b.newEvent("initialized")})
	for {
		t, payload, err := b.conn.ReadFrame()
		if err != nil {
			if b.closed.Load() {
				return nil
			}
			return fmt.Errorf("dapbridge: read frame: %w", err)
		}
		switch t {
		case hldp.ScTargetStopped:
			b.onStopped(payload)
		case hldp.ScTargetRunning:
			b.emit(&dap.ContinuedEvent{
				Event: b.newEvent("continued"),
				Body:  dap.ContinuedEventBody{ThreadId: hldpThreadID, AllThreadsContinued: true},
			})
		case hldp.ScDebugMessage:
			b.onDebugMessage(payload)
		case hldp.ScError:
			r := hldp.NewRequestReader(payload)
			details, _ := r.ReadString()
			b.emit(&dap.OutputEvent{
				Event: b.newEvent("output"),
				Body:  dap.OutputEventBody{Category: "stderr", Output: details + "\n"},
			})
		case hldp.ScTargetExited:
			r := hldp.NewRequestReader(payload)
			code, _ := r.ReadInt32()
			b.emit(&dap.ExitedEvent{Event: b.newEvent("exited"), Body: dap.ExitedEventBody{ExitCode: int(code)}})
			b.emit(&dap.TerminatedEvent{Event: b.newEvent("terminated")})
			return nil
		default:
			// Breakpoint-management and expression replies are logged but
			// have no dedicated DAP event shape in this export path.
			if b.log != nil {
				b.log.WithField("packet_type", t.String()).Debug("dapbridge: unmapped reply")
			}
		}
	}
}

func (b *Bridge) onStopped(payload []byte) {
	reason, intParam, _, frames, err := hldp.DecodeStopped(payload)
	if err != nil {
		if b.log != nil {
			b.log.WithError(err).Error("dapbridge: decode scTargetStopped")
		}
		return
	}
	b.emit(&dap.StoppedEvent{
		Event: b.newEvent("stopped"),
		Body:  TranslateStopped(reason, intParam),
	})
	if bt := FormatBacktrace(frames); bt != "" {
		b.emit(&dap.OutputEvent{
			Event: b.newEvent("output"),
			Body:  dap.OutputEventBody{Category: "console", Output: bt},
		})
	}
}

func (b *Bridge) onDebugMessage(payload []byte) {
	r := hldp.NewRequestReader(payload)
	if _, err := r.ReadInt32(); err != nil { // kind, not modeled on the DAP side
		return
	}
	text, err := r.ReadString()
	if err != nil {
		return
	}
	b.emit(&dap.OutputEvent{
		Event: b.newEvent("output"),
		Body:  dap.OutputEventBody{Category: "console", Output: text + "\n"},
	})
}

// Continue, StepIn, StepOut, StepOver, BreakIn, Detach and Terminate send
// the matching HLDP command. Their effect is observed asynchronously
// through Run's translated event stream, not through a return value.
func (b *Bridge) Continue() error { return b.conn.WriteFrame(hldp.CsContinue, nil) }
func (b *Bridge) StepIn() error   { return b.conn.WriteFrame(hldp.CsStepIn, nil) }
func (b *Bridge) StepOut() error  { return b.conn.WriteFrame(hldp.CsStepOut, nil) }
func (b *Bridge) StepOver() error { return b.conn.WriteFrame(hldp.CsStepOver, nil) }
func (b *Bridge) BreakIn() error  { return b.conn.WriteFrame(hldp.CsBreakIn, nil) }
func (b *Bridge) Detach() error   { return b.conn.WriteFrame(hldp.CsDetach, nil) }

// Terminate sends csTerminate and marks the bridge closed so Run's
// subsequent read error (the server tearing down the connection) is
// reported as a clean exit rather than a failure.
func (b *Bridge) Terminate() error {
	b.closed.Store(true)
	return b.conn.WriteFrame(hldp.CsTerminate, nil)
}

func (b *Bridge) Close() error {
	b.closed.Store(true)
	return b.conn.Close()
}

func (b *Bridge) emit(msg dap.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := dap.WriteProtocolMessage(b.sink, msg); err != nil && b.log != nil {
		b.log.WithError(err).Error("dapbridge: write sink")
	}
}

func (b *Bridge) newEvent(event string) dap.Event {
	seq := atomic.AddInt64(&b.seq, 1)
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: int(seq), Type: "event"},
		Event:           event,
	}
}
