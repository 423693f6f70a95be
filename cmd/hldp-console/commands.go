package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ergochat/readline"

	"github.com/sysprogs-oss/hldp/hldp"
)

// commandLoop drives the readline prompt until "quit" or the connection
// closes. It mirrors the teacher's debug REPL's line-dispatch shape
// (command name plus fields, empty input repeats the last command) but
// talks HLDP directly instead of driving an in-process debugger.Engine.
func (c *console) commandLoop() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            c.prompt(),
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close() //nolint:errcheck

	var lastCmd string
	for {
		rl.SetPrompt(c.prompt())
		raw, err := rl.ReadSlice()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return nil
		}
		line := strings.TrimSpace(string(raw))
		if line == "" {
			line = lastCmd
			if line == "" {
				continue
			}
		} else {
			lastCmd = line
		}

		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		if c.dispatch(cmd, args) == errQuit {
			return nil
		}
	}
}

// dispatchResult distinguishes "keep going" from "the session is over" so
// a single sentinel ends the readline loop cleanly from deep in dispatch.
type dispatchResult int

const (
	ok dispatchResult = iota
	errQuit
)

func (c *console) dispatch(cmd string, args []string) dispatchResult {
	switch cmd {
	case "continue", "c":
		return c.resume(hldp.CsContinue)
	case "step", "s":
		return c.resume(hldp.CsStepIn)
	case "next", "n":
		return c.resume(hldp.CsStepOver)
	case "out", "o":
		return c.resume(hldp.CsStepOut)
	case "breakin":
		return c.doBreakIn()
	case "break", "b":
		c.doBreak(args)
		return ok
	case "fbreak", "fb":
		c.doFuncBreak(args)
		return ok
	case "delete", "d":
		c.doDelete(args)
		return ok
	case "enable":
		c.doUpdateEnabled(args, true)
		return ok
	case "disable":
		c.doUpdateEnabled(args, false)
		return ok
	case "backtrace", "bt":
		c.showBacktrace()
		return ok
	case "print", "p":
		c.doPrint(args)
		return ok
	case "children":
		c.doChildren(args)
		return ok
	case "set":
		c.doSetValue(args)
		return ok
	case "detach":
		c.resume(hldp.CsDetach)
		return ok
	case "quit", "q":
		c.send(hldp.CsTerminate, nil)
		return errQuit
	case "help", "h":
		fmt.Fprintln(c.out, rootLongHelp) //nolint:errcheck
		return ok
	default:
		fmt.Fprintf(c.out, "unknown command %q (try \"help\")\n", cmd) //nolint:errcheck
		return ok
	}
}

// doBreakIn sends csBreakIn. While stopped the server ignores it with no
// reply (spec.md §4.6's resume-loop table), so only block for a reply when
// the target is currently running.
func (c *console) doBreakIn() dispatchResult {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	c.send(hldp.CsBreakIn, nil)
	if stopped {
		return ok
	}
	return c.drain()
}

func (c *console) send(t hldp.PacketType, payload []byte) {
	if err := c.conn.WriteFrame(t, payload); err != nil {
		fmt.Fprintf(c.out, "write %s: %v\n", t, err) //nolint:errcheck
	}
}

// resume sends a flow-control verb and blocks for the reply HLDP guarantees
// exactly one of in response: scTargetRunning (resumed), a fresh
// scTargetStopped (a domain-specific breakpoint or the very next statement
// already re-stopped), or scTargetExited. Any scDebugMessage seen first is
// printed and does not end the wait; an scError is printed and ends it.
func (c *console) resume(t hldp.PacketType) dispatchResult {
	c.send(t, nil)
	return c.drain()
}

// drain consumes events until the target's run-state settles, printing
// everything along the way.
func (c *console) drain() dispatchResult {
	for evt := range c.events {
		switch evt.packetType {
		case hldp.ScTargetRunning:
			c.mu.Lock()
			c.stopped = false
			c.mu.Unlock()
			return ok
		case hldp.ScTargetStopped:
			c.mu.Lock()
			c.stopped = true
			c.lastStop = evt.stop
			c.mu.Unlock()
			c.printStop(evt.stop)
			return ok
		case hldp.ScTargetExited:
			fmt.Fprintf(c.out, "target exited, code %d\n", evt.exitCode) //nolint:errcheck
			c.mu.Lock()
			c.exited = true
			c.mu.Unlock()
			return errQuit
		case hldp.ScDebugMessage:
			fmt.Fprintln(c.out, wrap(evt.details)) //nolint:errcheck
		case hldp.ScError:
			fmt.Fprintf(c.out, "error: %s\n", wrap(evt.details)) //nolint:errcheck
			return ok
		default:
			fmt.Fprintf(c.out, "unexpected reply %s\n", evt.packetType) //nolint:errcheck
			return ok
		}
	}
	fmt.Fprintln(c.out, "connection closed") //nolint:errcheck
	return errQuit
}

func (c *console) printStop(s stopInfo) {
	reason := s.reason.String()
	if s.reason == hldp.Breakpoint {
		reason = fmt.Sprintf("breakpoint %d", s.intParam)
	}
	fmt.Fprintf(c.out, "stopped: %s\n", reason) //nolint:errcheck
	if s.stringParam != "" {
		fmt.Fprintln(c.out, wrap(s.stringParam)) //nolint:errcheck
	}
	c.showBacktrace()
}

func (c *console) showBacktrace() {
	c.mu.Lock()
	stopped, last := c.stopped, c.lastStop
	c.mu.Unlock()
	if !stopped {
		fmt.Fprintln(c.out, "not stopped") //nolint:errcheck
		return
	}
	for _, f := range last.frames {
		fn := f.Function
		if fn == "" {
			fn = "<top>"
		}
		fmt.Fprintf(c.out, "#%d %s(%s) at %s:%d\n", f.FrameID, fn, f.Arguments, f.SourceFile, f.Line) //nolint:errcheck
	}
}

func (c *console) doBreak(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: break FILE:LINE") //nolint:errcheck
		return
	}
	file, lineStr, found := strings.Cut(args[0], ":")
	if !found {
		fmt.Fprintln(c.out, "usage: break FILE:LINE") //nolint:errcheck
		return
	}
	line, err := strconv.Atoi(lineStr)
	if err != nil {
		fmt.Fprintf(c.out, "invalid line number %q\n", lineStr) //nolint:errcheck
		return
	}
	payload := hldp.NewReplyBuilder().AppendString(file).AppendInt32(int32(line)).Bytes()
	c.send(hldp.CsCreateBreakpoint, payload)
	c.awaitBreakpointReply()
}

func (c *console) doFuncBreak(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: fbreak NAME") //nolint:errcheck
		return
	}
	payload := hldp.NewReplyBuilder().AppendString(args[0]).Bytes()
	c.send(hldp.CsCreateFunctionBreakpoint, payload)
	c.awaitBreakpointReply()
}

func (c *console) doDelete(args []string) {
	id, valid := c.parseID(args, "delete ID")
	if !valid {
		return
	}
	payload := hldp.NewReplyBuilder().AppendInt32(id).Bytes()
	c.send(hldp.CsDeleteBreakpoint, payload)
	c.awaitBreakpointReply()
}

func (c *console) doUpdateEnabled(args []string, enabled bool) {
	id, valid := c.parseID(args, "enable/disable ID")
	if !valid {
		return
	}
	enabledInt := int32(0)
	if enabled {
		enabledInt = 1
	}
	payload := hldp.NewReplyBuilder().
		AppendInt32(id).
		AppendInt32(int32(hldp.FieldIsEnabled)).
		AppendInt32(enabledInt).
		AppendInt32(0).
		AppendString("").
		Bytes()
	c.send(hldp.CsUpdateBreakpoint, payload)
	c.awaitBreakpointReply()
}

func (c *console) parseID(args []string, usage string) (int32, bool) {
	if len(args) != 1 {
		fmt.Fprintf(c.out, "usage: %s\n", usage) //nolint:errcheck
		return 0, false
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "invalid id %q\n", args[0]) //nolint:errcheck
		return 0, false
	}
	return int32(id), true
}

// awaitBreakpointReply waits for the single reply a breakpoint-management
// request gets, whether the target is running or stopped (spec.md §4.5
// step 5 and §4.6's resume-loop table both route these the same way).
func (c *console) awaitBreakpointReply() {
	for evt := range c.events {
		switch evt.packetType {
		case hldp.ScBreakpointCreated:
			fmt.Fprintf(c.out, "breakpoint %d created\n", evt.bpID) //nolint:errcheck
			return
		case hldp.ScBreakpointUpdated:
			fmt.Fprintln(c.out, "ok") //nolint:errcheck
			return
		case hldp.ScError:
			fmt.Fprintf(c.out, "error: %s\n", wrap(evt.details)) //nolint:errcheck
			return
		case hldp.ScDebugMessage:
			fmt.Fprintln(c.out, wrap(evt.details)) //nolint:errcheck
		default:
			fmt.Fprintf(c.out, "unexpected reply %s\n", evt.packetType) //nolint:errcheck
			return
		}
	}
	fmt.Fprintln(c.out, "connection closed") //nolint:errcheck
}

func (c *console) doPrint(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "usage: print EXPR") //nolint:errcheck
		return
	}
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if !stopped {
		fmt.Fprintln(c.out, "not stopped") //nolint:errcheck
		return
	}
	text := strings.Join(args, " ")
	payload := hldp.NewReplyBuilder().AppendInt32(0).AppendString(text).Bytes()
	c.send(hldp.CsCreateExpression, payload)
	for evt := range c.events {
		switch evt.packetType {
		case hldp.ScExpressionCreated:
			d := evt.exprDesc
			fmt.Fprintf(c.out, "%s = %s (%s)\n", d.Name, d.Value, d.Type) //nolint:errcheck
			return
		case hldp.ScError:
			fmt.Fprintf(c.out, "error: %s\n", wrap(evt.details)) //nolint:errcheck
			return
		case hldp.ScDebugMessage:
			fmt.Fprintln(c.out, wrap(evt.details)) //nolint:errcheck
		default:
			fmt.Fprintf(c.out, "unexpected reply %s\n", evt.packetType) //nolint:errcheck
			return
		}
	}
	fmt.Fprintln(c.out, "connection closed") //nolint:errcheck
}

func (c *console) doChildren(args []string) {
	id, valid := c.parseID(args, "children EXPRESSION-ID")
	if !valid {
		return
	}
	payload := hldp.NewReplyBuilder().AppendInt32(id).Bytes()
	c.send(hldp.CsQueryExpressionChildren, payload)
	for evt := range c.events {
		switch evt.packetType {
		case hldp.ScExpressionChildrenQueried:
			for _, d := range evt.children {
				fmt.Fprintf(c.out, "  %d: %s = %s (%s)\n", d.ID, d.Name, d.Value, d.Type) //nolint:errcheck
			}
			return
		case hldp.ScError:
			fmt.Fprintf(c.out, "error: %s\n", wrap(evt.details)) //nolint:errcheck
			return
		case hldp.ScDebugMessage:
			fmt.Fprintln(c.out, wrap(evt.details)) //nolint:errcheck
		default:
			fmt.Fprintf(c.out, "unexpected reply %s\n", evt.packetType) //nolint:errcheck
			return
		}
	}
	fmt.Fprintln(c.out, "connection closed") //nolint:errcheck
}

func (c *console) doSetValue(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "usage: set EXPRESSION-ID VALUE...") //nolint:errcheck
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "invalid id %q\n", args[0]) //nolint:errcheck
		return
	}
	value := strings.Join(args[1:], " ")
	payload := hldp.NewReplyBuilder().AppendInt32(int32(id)).AppendString(value).Bytes()
	c.send(hldp.CsSetExpressionValue, payload)
	for evt := range c.events {
		switch evt.packetType {
		case hldp.ScExpressionUpdated:
			fmt.Fprintln(c.out, "ok") //nolint:errcheck
			return
		case hldp.ScError:
			fmt.Fprintf(c.out, "error: %s\n", wrap(evt.details)) //nolint:errcheck
			return
		case hldp.ScDebugMessage:
			fmt.Fprintln(c.out, wrap(evt.details)) //nolint:errcheck
		default:
			fmt.Fprintf(c.out, "unexpected reply %s\n", evt.packetType) //nolint:errcheck
			return
		}
	}
	fmt.Fprintln(c.out, "connection closed") //nolint:errcheck
}

func (c *console) prompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exited {
		return "(exited) "
	}
	if c.stopped {
		return "(hldp) "
	}
	return "(running) "
}
