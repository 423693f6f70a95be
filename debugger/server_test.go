package debugger

import (
	"io"
	"net"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/sysprogs-oss/hldp/breakpoint"
	"github.com/sysprogs-oss/hldp/hldp"
	"github.com/sysprogs-oss/hldp/interp"
)

// testSession drives one Serve call over a net.Pipe, performing the
// client side of the handshake before returning. script is parsed and
// attributed to a real temp file so breakpoint.Manager's canonicalizer
// (which requires the file to exist) can resolve it.
type testSession struct {
	t      *testing.T
	client *hldp.Conn
	file   string
	bp     *breakpoint.Manager
	rt     *interp.Runtime
	done   chan error
}

func newTestSession(t *testing.T, script string) *testSession {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "session-*.script")
	require.NoError(t, err)
	_, err = f.WriteString(script)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	stmts, err := interp.Parse(f.Name(), []byte(script))
	require.NoError(t, err)

	log := logrus.NewEntry(logrus.New())
	bp := breakpoint.NewManager(log)
	t.Cleanup(func() { _ = bp.Close() })
	rt := interp.NewRuntime()

	clientRaw, serverRaw := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- Serve(serverRaw, stmts, rt, bp, log)
	}()

	banner := make([]byte, len(hldp.Banner)+1)
	_, err = io.ReadFull(clientRaw, banner)
	require.NoError(t, err)
	require.Equal(t, hldp.Banner+"\x00", string(banner))

	client := hldp.NewConn(clientRaw, log)
	pt, _, err := client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScHandshake, pt)
	require.NoError(t, client.WriteFrame(hldp.CsHandshake, nil))

	return &testSession{t: t, client: client, file: f.Name(), bp: bp, rt: rt, done: done}
}

func (s *testSession) expectStopped() (reason hldp.StopReason, intParam int32, frames int) {
	s.t.Helper()
	pt, payload, err := s.client.ReadFrame()
	require.NoError(s.t, err)
	require.Equal(s.t, hldp.ScTargetStopped, pt)
	r := hldp.NewRequestReader(payload)
	reasonRaw, err := r.ReadInt32()
	require.NoError(s.t, err)
	ip, err := r.ReadInt32()
	require.NoError(s.t, err)
	_, err = r.ReadString()
	require.NoError(s.t, err)
	count, err := r.ReadInt32()
	require.NoError(s.t, err)
	return hldp.StopReason(reasonRaw), ip, int(count)
}

func (s *testSession) expectRunning() {
	s.t.Helper()
	pt, _, err := s.client.ReadFrame()
	require.NoError(s.t, err)
	require.Equal(s.t, hldp.ScTargetRunning, pt)
}

func (s *testSession) expectExited() {
	s.t.Helper()
	pt, _, err := s.client.ReadFrame()
	require.NoError(s.t, err)
	require.Equal(s.t, hldp.ScTargetExited, pt)
	require.NoError(s.t, <-s.done)
}

func TestHandshakeThenInitialBreakIn(t *testing.T) {
	s := newTestSession(t, "set(X 1)\n")
	reason, _, frames := s.expectStopped()
	require.Equal(t, hldp.InitialBreakIn, reason)
	require.Equal(t, 1, frames)

	require.NoError(t, s.client.WriteFrame(hldp.CsContinue, nil))
	s.expectRunning()
	s.expectExited()
}

func TestLineBreakpointHit(t *testing.T) {
	script := "set(X 1)\n"
	f, err := os.CreateTemp(t.TempDir(), "bp-*.script")
	require.NoError(t, err)
	_, err = f.WriteString(script)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	log := logrus.NewEntry(logrus.New())
	bp := breakpoint.NewManager(log)
	t.Cleanup(func() { _ = bp.Close() })
	id := bp.CreateLocationBreakpoint(f.Name(), 1)
	require.NotEqual(t, breakpoint.InvalidID, id)

	stmts, err := interp.Parse(f.Name(), []byte(script))
	require.NoError(t, err)
	rt := interp.NewRuntime()

	clientRaw, serverRaw := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- Serve(serverRaw, stmts, rt, bp, log) }()

	banner := make([]byte, len(hldp.Banner)+1)
	_, err = io.ReadFull(clientRaw, banner)
	require.NoError(t, err)
	client := hldp.NewConn(clientRaw, log)
	pt, _, err := client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScHandshake, pt)
	require.NoError(t, client.WriteFrame(hldp.CsHandshake, nil))

	pt, payload, err := client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScTargetStopped, pt)
	r := hldp.NewRequestReader(payload)
	reason, err := r.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, hldp.Breakpoint, hldp.StopReason(reason))
	intParam, err := r.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, id, intParam)

	require.NoError(t, client.WriteFrame(hldp.CsContinue, nil))
	pt, _, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScTargetRunning, pt)

	pt, _, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScTargetExited, pt)
	require.NoError(t, <-done)
}

// fakeAnnotator records span start/end calls without any real tracing
// backend, so tests can assert the debugger wires spans around the
// stop-and-serve loop without depending on otel/opencensus internals.
type fakeAnnotator struct {
	pausedStarts  []string
	requestStarts []string
	ended         int
}

func (f *fakeAnnotator) IsEnabled() bool { return true }
func (f *fakeAnnotator) Enable() error   { return nil }

func (f *fakeAnnotator) StartPaused(reason string, _ int32) func() {
	f.pausedStarts = append(f.pausedStarts, reason)
	return func() { f.ended++ }
}

func (f *fakeAnnotator) StartRequest(packetType string) func() {
	f.requestStarts = append(f.requestStarts, packetType)
	return func() { f.ended++ }
}

func TestAnnotatorWrapsStopAndServe(t *testing.T) {
	script := "set(X 1)\n"
	f, err := os.CreateTemp(t.TempDir(), "annotator-*.script")
	require.NoError(t, err)
	_, err = f.WriteString(script)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	log := logrus.NewEntry(logrus.New())
	bp := breakpoint.NewManager(log)
	t.Cleanup(func() { _ = bp.Close() })
	stmts, err := interp.Parse(f.Name(), []byte(script))
	require.NoError(t, err)
	rt := interp.NewRuntime()

	clientRaw, serverRaw := net.Pipe()
	conn := hldp.NewConn(serverRaw, log)
	fake := &fakeAnnotator{}
	done := make(chan error, 1)
	go func() {
		if err := hldp.ServerHandshake(conn); err != nil {
			done <- err
			return
		}
		srv := NewServer(conn, rt, bp, log)
		srv.Annotator = fake
		runErr := rt.Run(stmts)
		_ = conn.WriteFrame(hldp.ScTargetExited, hldp.NewReplyBuilder().AppendInt32(0).Bytes())
		done <- runErr
	}()

	banner := make([]byte, len(hldp.Banner)+1)
	_, err = io.ReadFull(clientRaw, banner)
	require.NoError(t, err)
	client := hldp.NewConn(clientRaw, log)
	pt, _, err := client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScHandshake, pt)
	require.NoError(t, client.WriteFrame(hldp.CsHandshake, nil))

	pt, _, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScTargetStopped, pt)

	require.NoError(t, client.WriteFrame(hldp.CsContinue, nil))
	pt, _, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScTargetRunning, pt)

	pt, _, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScTargetExited, pt)
	require.NoError(t, <-done)

	require.Equal(t, []string{"InitialBreakIn"}, fake.pausedStarts)
	require.Equal(t, []string{"csContinue"}, fake.requestStarts)
	require.Equal(t, 2, fake.ended)
}

func TestStepOverDoesNotDescend(t *testing.T) {
	script := "myfunc()\nmessage(STATUS \"after\")\n" +
		"function(myfunc)\nset(A 1)\nset(B 2)\nendfunction()\n"
	s := newTestSession(t, script)

	_, _, frames1 := s.expectStopped()
	require.Equal(t, 1, frames1)

	require.NoError(t, s.client.WriteFrame(hldp.CsStepOver, nil))
	s.expectRunning()

	_, _, frames2 := s.expectStopped()
	require.LessOrEqual(t, frames2, frames1)

	// Resuming runs message(STATUS "after"), which reports scDebugMessage
	// before the script ends.
	require.NoError(t, s.client.WriteFrame(hldp.CsContinue, nil))
	s.expectRunning()
	pt, _, err := s.client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScDebugMessage, pt)
	s.expectExited()
}

func TestSetNextStatementFileValidation(t *testing.T) {
	s := newTestSession(t, "set(A 1)\nset(B 2)\nset(C 3)\n")
	_, _, _ = s.expectStopped()

	other, err := os.CreateTemp(t.TempDir(), "other-*.script")
	require.NoError(t, err)
	require.NoError(t, other.Close())

	badReq := hldp.NewReplyBuilder().AppendString(other.Name()).AppendInt32(1).Bytes()
	require.NoError(t, s.client.WriteFrame(hldp.CsSetNextStatement, badReq))
	pt, _, err := s.client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScError, pt)

	goodReq := hldp.NewReplyBuilder().AppendString(s.file).AppendInt32(3).Bytes()
	require.NoError(t, s.client.WriteFrame(hldp.CsSetNextStatement, goodReq))
	s.expectRunning()

	reason, _, _ := s.expectStopped()
	require.Equal(t, hldp.SetNextStatement, reason)

	require.NoError(t, s.client.WriteFrame(hldp.CsContinue, nil))
	s.expectRunning()
	s.expectExited()
}

func TestDomainSpecificVariableWriteBreakpoint(t *testing.T) {
	script := "set(X 1)\nmessage(STATUS \"${X}\")\n"
	f, err := os.CreateTemp(t.TempDir(), "watch-*.script")
	require.NoError(t, err)
	_, err = f.WriteString(script)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	log := logrus.NewEntry(logrus.New())
	bp := breakpoint.NewManager(log)
	t.Cleanup(func() { _ = bp.Close() })
	id := bp.CreateDomainSpecificBreakpoint(breakpoint.VariableUpdatedExt{Name: "X"})
	require.NotEqual(t, breakpoint.InvalidID, id)

	stmts, err := interp.Parse(f.Name(), []byte(script))
	require.NoError(t, err)
	rt := interp.NewRuntime()

	clientRaw, serverRaw := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- Serve(serverRaw, stmts, rt, bp, log) }()

	banner := make([]byte, len(hldp.Banner)+1)
	_, err = io.ReadFull(clientRaw, banner)
	require.NoError(t, err)
	client := hldp.NewConn(clientRaw, log)
	pt, _, err := client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScHandshake, pt)
	require.NoError(t, client.WriteFrame(hldp.CsHandshake, nil))

	// First BeforeStatement call (set(X 1), not yet executed) has nothing
	// to match and no client request pending, so it reports InitialBreakIn.
	pt, payload, err := client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScTargetStopped, pt)
	r := hldp.NewRequestReader(payload)
	reason, err := r.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, hldp.InitialBreakIn, hldp.StopReason(reason))

	require.NoError(t, client.WriteFrame(hldp.CsContinue, nil))
	pt, _, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScTargetRunning, pt)

	// set(X 1) now runs, writes X, and the watch breakpoint fires
	// mid-statement via OnVariableAccess, nested inside this same resume.
	pt, payload, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScTargetStopped, pt)
	r = hldp.NewRequestReader(payload)
	reason, err = r.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, hldp.Breakpoint, hldp.StopReason(reason))
	intParam, err := r.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, id, intParam)

	// Resuming runs message(STATUS "${X}"), a read of the same watched
	// name, which must not retrigger the write-only breakpoint; its only
	// output is the scDebugMessage for the message text.
	require.NoError(t, client.WriteFrame(hldp.CsContinue, nil))
	pt, _, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScTargetRunning, pt)

	pt, _, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScDebugMessage, pt)

	pt, _, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScTargetExited, pt)
	require.NoError(t, <-done)
}

func TestExpressionCacheInvalidatedOnResume(t *testing.T) {
	script := "set(X 1)\nset(Y 2)\n"
	f, err := os.CreateTemp(t.TempDir(), "expr-*.script")
	require.NoError(t, err)
	_, err = f.WriteString(script)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	log := logrus.NewEntry(logrus.New())
	bp := breakpoint.NewManager(log)
	t.Cleanup(func() { _ = bp.Close() })
	require.NotEqual(t, breakpoint.InvalidID, bp.CreateLocationBreakpoint(f.Name(), 2))

	stmts, err := interp.Parse(f.Name(), []byte(script))
	require.NoError(t, err)
	rt := interp.NewRuntime()

	clientRaw, serverRaw := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- Serve(serverRaw, stmts, rt, bp, log) }()

	banner := make([]byte, len(hldp.Banner)+1)
	_, err = io.ReadFull(clientRaw, banner)
	require.NoError(t, err)
	client := hldp.NewConn(clientRaw, log)
	pt, _, err := client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScHandshake, pt)
	require.NoError(t, client.WriteFrame(hldp.CsHandshake, nil))

	pt, _, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScTargetStopped, pt)

	createReq := hldp.NewReplyBuilder().AppendInt32(0).AppendString("ENV").Bytes()
	require.NoError(t, client.WriteFrame(hldp.CsCreateExpression, createReq))
	pt, _, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScExpressionCreated, pt)

	require.NoError(t, client.WriteFrame(hldp.CsContinue, nil))
	pt, _, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScTargetRunning, pt)

	pt, _, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScTargetStopped, pt)

	queryReq := hldp.NewReplyBuilder().AppendInt32(1).Bytes()
	require.NoError(t, client.WriteFrame(hldp.CsQueryExpressionChildren, queryReq))
	pt, _, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScError, pt)

	require.NoError(t, client.WriteFrame(hldp.CsContinue, nil))
	pt, _, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScTargetRunning, pt)

	pt, _, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, hldp.ScTargetExited, pt)
	require.NoError(t, <-done)
}
