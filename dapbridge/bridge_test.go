package dapbridge

import (
	"bufio"
	"bytes"
	"net"
	"testing"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/sysprogs-oss/hldp/hldp"
)

func newPipe(t *testing.T) (client *hldp.Conn, server *hldp.Conn) {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	a, b := net.Pipe()
	server = hldp.NewConn(a, log)
	client = hldp.NewConn(b, log)
	done := make(chan error, 1)
	go func() { done <- hldp.ServerHandshake(server) }()
	_, err := hldp.ClientHandshake(client)
	require.NoError(t, err)
	require.NoError(t, <-done)
	return client, server
}

func readAll(t *testing.T, buf *bytes.Buffer) []dap.Message {
	t.Helper()
	var msgs []dap.Message
	r := bufio.NewReader(buf)
	for {
		msg, err := dap.ReadProtocolMessage(r)
		if err != nil {
			break
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestBridgeTranslatesStoppedAndExited(t *testing.T) {
	client, server := newPipe(t)
	var sink bytes.Buffer
	log := logrus.NewEntry(logrus.New())
	br := NewBridge(client, &sink, log)

	done := make(chan error, 1)
	go func() { done <- br.Run() }()

	frames := hldp.NewReplyBuilder().
		AppendInt32(int32(hldp.Breakpoint)).
		AppendInt32(7).
		AppendString("").
		AppendInt32(1).
		AppendBacktraceEntry(hldp.BacktraceEntry{FrameID: 0, SourceFile: "build.txt", Line: 3})
	require.NoError(t, server.WriteFrame(hldp.ScTargetStopped, frames.Bytes()))
	require.NoError(t, server.WriteFrame(hldp.ScTargetExited, hldp.NewReplyBuilder().AppendInt32(0).Bytes()))

	require.NoError(t, <-done)

	msgs := readAll(t, &sink)
	require.GreaterOrEqual(t, len(msgs), 3)

	init, ok := msgs[0].(*dap.InitializedEvent)
	require.True(t, ok)
	require.Equal(t, "initialized", init.Event.Event)

	stopped, ok := msgs[1].(*dap.StoppedEvent)
	require.True(t, ok)
	require.Equal(t, "breakpoint", stopped.Body.Reason)
	require.Equal(t, []int{7}, stopped.Body.HitBreakpointIds)

	var sawExited, sawTerminated bool
	for _, m := range msgs {
		switch m.(type) {
		case *dap.ExitedEvent:
			sawExited = true
		case *dap.TerminatedEvent:
			sawTerminated = true
		}
	}
	require.True(t, sawExited)
	require.True(t, sawTerminated)
}

func TestBridgeContinueSendsWireCommand(t *testing.T) {
	client, server := newPipe(t)
	var sink bytes.Buffer
	log := logrus.NewEntry(logrus.New())
	br := NewBridge(client, &sink, log)

	recv := make(chan hldp.PacketType, 1)
	go func() {
		pt, _, err := server.ReadFrame()
		require.NoError(t, err)
		recv <- pt
	}()

	require.NoError(t, br.Continue())
	require.Equal(t, hldp.CsContinue, <-recv)
}
