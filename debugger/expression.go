package debugger

import (
	"fmt"

	"github.com/sysprogs-oss/hldp/expr"
	"github.com/sysprogs-oss/hldp/hldp"
	"github.com/sysprogs-oss/hldp/interp"
)

// runtimeResolver adapts interp.Runtime's live state to expr.Resolver.
// Expression resolution always consults the interpreter's current
// (innermost) variable scope rather than a snapshot of the requested
// frame_id: the Runtime keeps only one live VariableStore, not a per-
// frame history, so "resolve against stack[frame_id]" (spec.md §4.6)
// degrades to "resolve against the live scope, having validated frame_id
// is in range" (recorded as an Open Question resolution in DESIGN.md).
type runtimeResolver struct {
	rt *interp.Runtime
}

func (r runtimeResolver) LookupVariable(name string) (string, bool) {
	return r.rt.Variables.Get(name)
}

func (r runtimeResolver) SetVariable(name, value string) bool {
	r.rt.Variables.Set(name, value)
	return true
}

func (r runtimeResolver) LookupTarget(name string) (*interp.Target, bool) {
	return r.rt.Targets.Get(name)
}

func (r runtimeResolver) LookupCache(key string) (string, bool) {
	return r.rt.Cache.Get(key)
}

func (s *Server) handleCreateExpression(payload []byte) {
	r := hldp.NewRequestReader(payload)
	frameID, err := r.ReadInt32()
	if err != nil {
		s.sendError(err.Error())
		return
	}
	text, err := r.ReadString()
	if err != nil {
		s.sendError(err.Error())
		return
	}
	frames := s.stack.Entries()
	if frameID < 0 || int(frameID) >= len(frames) {
		s.sendError(fmt.Sprintf("hldp: frame id %d out of range", frameID))
		return
	}
	node, err := expr.CreateTopLevel(s.resolver, text)
	if err != nil {
		s.sendError(err.Error())
		return
	}
	id := s.cache.Register(node)
	s.sendExpressionDescriptor(hldp.ScExpressionCreated, id, node)
}

func (s *Server) handleQueryExpressionChildren(payload []byte) {
	r := hldp.NewRequestReader(payload)
	id, err := r.ReadInt32()
	if err != nil {
		s.sendError(err.Error())
		return
	}
	node, ok := s.cache.Get(id)
	if !ok {
		s.sendError(fmt.Sprintf("hldp: unknown expression id %d", id))
		return
	}
	if !node.ChildrenRegistered {
		children, err := node.CreateChildren()
		if err != nil {
			s.sendError(err.Error())
			return
		}
		ids := make([]int32, 0, len(children))
		for _, c := range children {
			ids = append(ids, s.cache.Register(c))
		}
		node.RegisteredChildren = ids
		node.ChildrenRegistered = true
		node.ChildCountOrSentinel = int32(len(children))
	}

	b := hldp.NewReplyBuilder()
	countSlot := b.ReserveInt32()
	var n int32
	for _, cid := range node.RegisteredChildren {
		child, ok := s.cache.Get(cid)
		if !ok {
			continue
		}
		b.AppendExpressionDescriptor(hldp.ExpressionDescriptor{
			ID:         cid,
			Name:       child.Name,
			Type:       child.Type,
			Value:      child.Value,
			Flags:      0,
			ChildCount: child.ChildCountOrSentinel,
		})
		n++
	}
	b.Patch(countSlot, n)
	if err := s.conn.WriteFrame(hldp.ScExpressionChildrenQueried, b.Bytes()); err != nil {
		s.fatal(err)
	}
}

func (s *Server) handleSetExpressionValue(payload []byte) {
	r := hldp.NewRequestReader(payload)
	id, err := r.ReadInt32()
	if err != nil {
		s.sendError(err.Error())
		return
	}
	newValue, err := r.ReadString()
	if err != nil {
		s.sendError(err.Error())
		return
	}
	node, ok := s.cache.Get(id)
	if !ok {
		s.sendError(fmt.Sprintf("hldp: unknown expression id %d", id))
		return
	}
	if err := node.UpdateValue(newValue); err != nil {
		s.sendError(err.Error())
		return
	}
	if err := s.conn.WriteFrame(hldp.ScExpressionUpdated, nil); err != nil {
		s.fatal(err)
	}
}

func (s *Server) sendExpressionDescriptor(t hldp.PacketType, id int32, node *expr.Node) {
	d := hldp.ExpressionDescriptor{
		ID:         id,
		Name:       node.Name,
		Type:       node.Type,
		Value:      node.Value,
		Flags:      0,
		ChildCount: node.ChildCountOrSentinel,
	}
	if err := s.conn.WriteFrame(t, hldp.NewReplyBuilder().AppendExpressionDescriptor(d).Bytes()); err != nil {
		s.fatal(err)
	}
}
