package codegen

import (
	"sort"

	"dagjit.dev/dagjit/pkg/compileerr"
	"dagjit.dev/dagjit/pkg/constpool"
	"dagjit.dev/dagjit/pkg/graph"
	"dagjit.dev/dagjit/pkg/isa"
)

// EmitForward walks the optimized node sequence in order and emits the
// forward-pass machine code (spec section 4.7). Input and Constant-family
// nodes emit nothing directly; a Constant's pool load and value-buffer
// writeback happen lazily, on its first use as an operand.
func EmitForward(c *Context) error {
	for i := range c.Graph.Nodes {
		id := graph.NodeID(i)
		n := c.Graph.Node(id)
		if n.IsDead {
			continue
		}
		switch n.Op {
		case graph.Input, graph.Constant, graph.BoolConstant, graph.IntConstant:
			continue
		}
		if err := emitNode(c, id, n); err != nil {
			return err
		}
	}
	return nil
}

// PinHotConstants implements the optional hot-constant-pinning optimization
// spec section 4.6 outlines but does not mandate: constant nodes read by at
// least minUses live nodes are loaded once, into a callee-preserved
// register, before the forward walk starts, and pinned there for the rest
// of the function body. ensureInRegister's ordinary Regs.Find check then
// finds them already resident on every later use, so no other emission
// code needs to know pinning happened. At most maxPinned constants are
// pinned, most-referenced first, bounded by how many callee-preserved
// slots are free.
func PinHotConstants(c *Context, minUses, maxPinned int) {
	counts := make(map[graph.NodeID]int)
	for i := range c.Graph.Nodes {
		n := c.Graph.Node(graph.NodeID(i))
		if n.IsDead {
			continue
		}
		for _, operand := range [3]graph.NodeID{n.A, n.B, n.C} {
			if operand == graph.Sentinel {
				continue
			}
			switch c.Graph.Node(operand).Op {
			case graph.Constant, graph.BoolConstant, graph.IntConstant:
				counts[operand]++
			}
		}
	}

	type candidate struct {
		id    graph.NodeID
		count int
	}
	candidates := make([]candidate, 0, len(counts))
	for id, count := range counts {
		if count >= minUses {
			candidates = append(candidates, candidate{id, count})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].id < candidates[j].id
	})

	pinned := 0
	for _, cand := range candidates {
		if pinned >= maxPinned {
			return
		}
		slot, ok := nextFreeCalleeSlot(c)
		if !ok {
			return
		}
		node := c.Graph.Node(cand.id)
		val, ok := literalValue(c.Graph, node)
		if !ok {
			continue
		}
		idx := c.Pool.Intern(val)
		c.Iset.EmitLoadConst(c.Buf, isa.Reg(slot), c.PoolLabel, c.Pool.ElemOffset(idx))
		c.Regs.Set(slot, cand.id, false)
		c.Regs.Pin(slot)
		pinned++
	}
}

// nextFreeCalleeSlot returns the lowest-indexed empty register outside the
// ABI-volatile range, so a pinned constant survives transcendental callouts
// without needing InvalidateVolatile to special-case it.
func nextFreeCalleeSlot(c *Context) (int, bool) {
	for s := int(isa.VolatileHi) + 1; s < c.Regs.NumSlots(); s++ {
		if _, occupied := c.Regs.GetNode(s); !occupied {
			return s, true
		}
	}
	return 0, false
}

// literalValue reports the value a placeholder node (Constant, BoolConstant,
// IntConstant) materializes, so ensureInRegister can pool/load it uniformly.
func literalValue(g *graph.Graph, n graph.Node) (float64, bool) {
	switch n.Op {
	case graph.Constant:
		return g.Pool[int(n.Imm)], true
	case graph.BoolConstant, graph.IntConstant:
		return n.Imm, true
	default:
		return 0, false
	}
}

// flushIfDirty writes slot's current occupant back to the value buffer if
// it owes a writeback, then marks the slot clean so the caller may
// overwrite it freely.
func flushIfDirty(c *Context, slot int) {
	node, occupied := c.Regs.GetNode(slot)
	if occupied && c.Regs.IsDirty(slot) {
		c.Iset.EmitStoreValue(c.Buf, valueBase, int(node), isa.Reg(slot))
		c.Regs.MarkClean(slot)
	}
}

// ensureInRegister is the emission idiom of spec section 4.5: return n's
// resident slot if it already has one, otherwise allocate a slot (flushing
// whatever it held), and load n's value into it from the value buffer or,
// for a not-yet-materialized constant, from the constant pool with an
// immediate store-back so later uses read from memory like any other node.
func ensureInRegister(c *Context, n graph.NodeID, avoid []int) (int, error) {
	if slot, ok := c.Regs.Find(n); ok {
		c.Regs.Touch(slot)
		return slot, nil
	}
	slot, err := c.Regs.Allocate(avoid)
	if err != nil {
		return 0, compileerr.New(compileerr.Allocator, "forward: %v", err)
	}
	flushIfDirty(c, slot)
	c.Regs.Evict(slot)

	node := c.Graph.Node(n)
	if val, ok := literalValue(c.Graph, node); ok {
		idx := c.Pool.Intern(val)
		c.Iset.EmitLoadConst(c.Buf, isa.Reg(slot), c.PoolLabel, c.Pool.ElemOffset(idx))
		c.Iset.EmitStoreValue(c.Buf, valueBase, int(n), isa.Reg(slot))
		c.Regs.Set(slot, n, false)
		return slot, nil
	}
	c.Iset.EmitLoadValue(c.Buf, isa.Reg(slot), valueBase, int(n))
	c.Regs.Set(slot, n, false)
	return slot, nil
}

// freshScratch allocates a register for an ephemeral value (a mask or
// immediate constant) that is never itself addressed by node id; the
// caller loads content into it directly and it is never registered via
// Regs.Set against any node.
func freshScratch(c *Context, avoid []int) (int, error) {
	slot, err := c.Regs.Allocate(avoid)
	if err != nil {
		return 0, compileerr.New(compileerr.Allocator, "forward: %v", err)
	}
	flushIfDirty(c, slot)
	c.Regs.Evict(slot)
	return slot, nil
}

// loadBitsConst pools and loads a raw 64-bit pattern (a mask or the literal
// 1.0/0.0) into slot.
func loadBitsConst(c *Context, slot int, bits uint64) {
	idx := c.Pool.InternBits(bits)
	c.Iset.EmitLoadConst(c.Buf, isa.Reg(slot), c.PoolLabel, c.Pool.ElemOffset(idx))
}

// finish marks dst as holding id's freshly computed value and immediately
// writes it back to the value buffer (spec section 4.5: "the destination
// register is ... immediately written back ... so register contents can
// be discarded at any allocator step without affecting correctness").
func finish(c *Context, id graph.NodeID, dst int) {
	c.Regs.Set(dst, id, true)
	c.Iset.EmitStoreValue(c.Buf, valueBase, int(id), isa.Reg(dst))
	c.Regs.MarkClean(dst)
}

func emitNode(c *Context, id graph.NodeID, n graph.Node) error {
	recordTrace(c, id)
	switch n.Op {
	case graph.Add:
		return emitBinary(c, id, n, c.Iset.EmitAdd)
	case graph.Sub:
		return emitBinary(c, id, n, c.Iset.EmitSub)
	case graph.Mul:
		return emitBinary(c, id, n, c.Iset.EmitMul)
	case graph.Div:
		return emitBinary(c, id, n, c.Iset.EmitDiv)
	case graph.Min:
		return emitBinary(c, id, n, c.Iset.EmitMin)
	case graph.Max:
		return emitBinary(c, id, n, c.Iset.EmitMax)
	case graph.Square:
		return emitUnary(c, id, n, c.Iset.EmitSquare)
	case graph.Sqrt:
		return emitUnary(c, id, n, c.Iset.EmitSqrt)
	case graph.Neg:
		return emitNeg(c, id, n)
	case graph.Abs:
		return emitAbs(c, id, n)
	case graph.Recip:
		return emitRecip(c, id, n)
	case graph.Mod:
		return emitMod(c, id, n)
	case graph.Exp:
		return emitTranscendentalUnary(c, id, n, "exp")
	case graph.Log:
		return emitTranscendentalUnary(c, id, n, "log")
	case graph.Sin:
		return emitTranscendentalUnary(c, id, n, "sin")
	case graph.Cos:
		return emitTranscendentalUnary(c, id, n, "cos")
	case graph.Tan:
		return emitTranscendentalUnary(c, id, n, "tan")
	case graph.Pow:
		return emitTranscendentalBinary(c, id, n, "pow")
	case graph.CmpLT:
		return emitCompare(c, id, n, c.Iset.EmitCompareLT)
	case graph.CmpLE:
		return emitCompare(c, id, n, c.Iset.EmitCompareLE)
	case graph.CmpGT:
		return emitCompare(c, id, n, c.Iset.EmitCompareGT)
	case graph.CmpGE:
		return emitCompare(c, id, n, c.Iset.EmitCompareGE)
	case graph.CmpEQ, graph.BoolEq:
		return emitCompare(c, id, n, c.Iset.EmitCompareEQ)
	case graph.CmpNE, graph.BoolNe:
		return emitCompare(c, id, n, c.Iset.EmitCompareNE)
	case graph.If:
		return emitIf(c, id, n)
	case graph.BoolAnd:
		return emitBinary(c, id, n, c.Iset.EmitAnd)
	case graph.BoolOr:
		return emitBinary(c, id, n, c.Iset.EmitOr)
	case graph.BoolNot:
		return emitBoolNot(c, id, n)
	case graph.IntAdd:
		return emitIntBinary(c, id, n, c.Iset.EmitAdd)
	case graph.IntSub:
		return emitIntBinary(c, id, n, c.Iset.EmitSub)
	case graph.IntMul:
		return emitIntBinary(c, id, n, c.Iset.EmitMul)
	case graph.IntDiv:
		return emitIntBinary(c, id, n, c.Iset.EmitDiv)
	case graph.IntMin:
		return emitIntBinary(c, id, n, c.Iset.EmitMin)
	case graph.IntMax:
		return emitIntBinary(c, id, n, c.Iset.EmitMax)
	case graph.IntNeg:
		return emitIntNeg(c, id, n)
	case graph.IntMod:
		return emitIntMod(c, id, n)
	case graph.IntCmpLT:
		return emitIntCompare(c, id, n, c.Iset.EmitCompareLT)
	case graph.IntCmpLE:
		return emitIntCompare(c, id, n, c.Iset.EmitCompareLE)
	case graph.IntCmpGT:
		return emitIntCompare(c, id, n, c.Iset.EmitCompareGT)
	case graph.IntCmpGE:
		return emitIntCompare(c, id, n, c.Iset.EmitCompareGE)
	case graph.IntCmpEQ:
		return emitIntCompare(c, id, n, c.Iset.EmitCompareEQ)
	case graph.IntCmpNE:
		return emitIntCompare(c, id, n, c.Iset.EmitCompareNE)
	case graph.IntIf:
		return emitIf(c, id, n)
	case graph.ArrayIndex:
		return compileerr.New(compileerr.Structural,
			"node %d: ArrayIndex has no runtime representation and cannot be emitted", id)
	default:
		return compileerr.New(compileerr.Structural, "node %d: unhandled opcode %s", id, graph.OpcodeName(n.Op))
	}
}

func emitBinary(c *Context, id graph.NodeID, n graph.Node, emit func(buf *isa.Buffer, dst, a, b isa.Reg)) error {
	aSlot, err := ensureInRegister(c, n.A, nil)
	if err != nil {
		return err
	}
	c.Regs.Lock(aSlot)
	bSlot, err := ensureInRegister(c, n.B, []int{aSlot})
	if err != nil {
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Regs.Lock(bSlot)
	dst := aSlot
	emit(c.Buf, isa.Reg(dst), isa.Reg(aSlot), isa.Reg(bSlot))
	c.Regs.Unlock(bSlot)
	c.Regs.Unlock(aSlot)
	finish(c, id, dst)
	return nil
}

func emitUnary(c *Context, id graph.NodeID, n graph.Node, emit func(buf *isa.Buffer, dst, src isa.Reg)) error {
	aSlot, err := ensureInRegister(c, n.A, nil)
	if err != nil {
		return err
	}
	c.Regs.Lock(aSlot)
	emit(c.Buf, isa.Reg(aSlot), isa.Reg(aSlot))
	c.Regs.Unlock(aSlot)
	finish(c, id, aSlot)
	return nil
}

func emitNeg(c *Context, id graph.NodeID, n graph.Node) error {
	aSlot, err := ensureInRegister(c, n.A, nil)
	if err != nil {
		return err
	}
	c.Regs.Lock(aSlot)
	maskSlot, err := freshScratch(c, []int{aSlot})
	if err != nil {
		c.Regs.Unlock(aSlot)
		return err
	}
	loadBitsConst(c, maskSlot, constpool.SignBitMask)
	c.Iset.EmitNeg(c.Buf, isa.Reg(aSlot), isa.Reg(aSlot))
	c.Iset.EmitXor(c.Buf, isa.Reg(aSlot), isa.Reg(aSlot), isa.Reg(maskSlot))
	c.Regs.Unlock(aSlot)
	finish(c, id, aSlot)
	return nil
}

func emitAbs(c *Context, id graph.NodeID, n graph.Node) error {
	aSlot, err := ensureInRegister(c, n.A, nil)
	if err != nil {
		return err
	}
	c.Regs.Lock(aSlot)
	maskSlot, err := freshScratch(c, []int{aSlot})
	if err != nil {
		c.Regs.Unlock(aSlot)
		return err
	}
	loadBitsConst(c, maskSlot, constpool.SignBitMask)
	c.Iset.EmitAbs(c.Buf, isa.Reg(aSlot), isa.Reg(aSlot))
	// EmitAndNot(dst,a,b) = ~a & b: a=mask, b=origA gives the sign bit
	// cleared; dst must equal a (mask's own slot) for the scalar/packed
	// two/three-operand forms to read origA before it is overwritten.
	c.Iset.EmitAndNot(c.Buf, isa.Reg(maskSlot), isa.Reg(maskSlot), isa.Reg(aSlot))
	c.Regs.Unlock(aSlot)
	finish(c, id, maskSlot)
	return nil
}

func emitRecip(c *Context, id graph.NodeID, n graph.Node) error {
	aSlot, err := ensureInRegister(c, n.A, nil)
	if err != nil {
		return err
	}
	c.Regs.Lock(aSlot)
	oneSlot, err := freshScratch(c, []int{aSlot})
	if err != nil {
		c.Regs.Unlock(aSlot)
		return err
	}
	loadBitsConst(c, oneSlot, constpool.OneBits)
	c.Iset.EmitRecip(c.Buf, isa.Reg(oneSlot), isa.Reg(oneSlot))
	c.Iset.EmitDiv(c.Buf, isa.Reg(oneSlot), isa.Reg(oneSlot), isa.Reg(aSlot))
	c.Regs.Unlock(aSlot)
	finish(c, id, oneSlot)
	return nil
}

// emitMod computes x - y*trunc(x/y) (spec section 4.4). The intermediate
// trunc(a/b)*b is materialized into a register distinct from a and b so
// the original a survives for the final subtraction regardless of which
// instruction set is active.
func emitMod(c *Context, id graph.NodeID, n graph.Node) error {
	aSlot, err := ensureInRegister(c, n.A, nil)
	if err != nil {
		return err
	}
	c.Regs.Lock(aSlot)
	bSlot, err := ensureInRegister(c, n.B, []int{aSlot})
	if err != nil {
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Regs.Lock(bSlot)
	moddedSlot, err := freshScratch(c, []int{aSlot, bSlot})
	if err != nil {
		c.Regs.Unlock(bSlot)
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Iset.EmitMod(c.Buf, isa.Reg(moddedSlot), isa.Reg(aSlot), isa.Reg(bSlot), isa.Reg(moddedSlot))
	resultSlot, err := freshScratch(c, []int{aSlot, bSlot, moddedSlot})
	if err != nil {
		c.Regs.Unlock(bSlot)
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Iset.EmitSub(c.Buf, isa.Reg(resultSlot), isa.Reg(aSlot), isa.Reg(moddedSlot))
	c.Regs.Unlock(bSlot)
	c.Regs.Unlock(aSlot)
	finish(c, id, resultSlot)
	return nil
}

func emitTranscendentalUnary(c *Context, id graph.NodeID, n graph.Node, symbol string) error {
	aSlot, err := ensureInRegister(c, n.A, nil)
	if err != nil {
		return err
	}
	c.Regs.Lock(aSlot)
	dst, err := freshScratch(c, []int{aSlot})
	if err != nil {
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Iset.EmitCallUnary(c.Buf, isa.Reg(dst), isa.Reg(aSlot), symbol)
	c.Regs.Unlock(aSlot)
	c.Regs.InvalidateVolatile(int(isa.VolatileLo), int(isa.VolatileHi))
	finish(c, id, dst)
	return nil
}

func emitTranscendentalBinary(c *Context, id graph.NodeID, n graph.Node, symbol string) error {
	aSlot, err := ensureInRegister(c, n.A, nil)
	if err != nil {
		return err
	}
	c.Regs.Lock(aSlot)
	bSlot, err := ensureInRegister(c, n.B, []int{aSlot})
	if err != nil {
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Regs.Lock(bSlot)
	dst, err := freshScratch(c, []int{aSlot, bSlot})
	if err != nil {
		c.Regs.Unlock(bSlot)
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Iset.EmitCallBinary(c.Buf, isa.Reg(dst), isa.Reg(aSlot), isa.Reg(bSlot), symbol)
	c.Regs.Unlock(bSlot)
	c.Regs.Unlock(aSlot)
	c.Regs.InvalidateVolatile(int(isa.VolatileLo), int(isa.VolatileHi))
	finish(c, id, dst)
	return nil
}

func emitCompare(c *Context, id graph.NodeID, n graph.Node, emit func(buf *isa.Buffer, dst, a, b, one isa.Reg)) error {
	aSlot, err := ensureInRegister(c, n.A, nil)
	if err != nil {
		return err
	}
	c.Regs.Lock(aSlot)
	bSlot, err := ensureInRegister(c, n.B, []int{aSlot})
	if err != nil {
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Regs.Lock(bSlot)
	oneSlot, err := freshScratch(c, []int{aSlot, bSlot})
	if err != nil {
		c.Regs.Unlock(bSlot)
		c.Regs.Unlock(aSlot)
		return err
	}
	loadBitsConst(c, oneSlot, constpool.OneBits)
	dst := aSlot
	emit(c.Buf, isa.Reg(dst), isa.Reg(aSlot), isa.Reg(bSlot), isa.Reg(oneSlot))
	c.Regs.Unlock(bSlot)
	c.Regs.Unlock(aSlot)
	finish(c, id, dst)
	return nil
}

func emitIf(c *Context, id graph.NodeID, n graph.Node) error {
	condSlot, err := ensureInRegister(c, n.A, nil)
	if err != nil {
		return err
	}
	c.Regs.Lock(condSlot)
	tSlot, err := ensureInRegister(c, n.B, []int{condSlot})
	if err != nil {
		c.Regs.Unlock(condSlot)
		return err
	}
	c.Regs.Lock(tSlot)
	fSlot, err := ensureInRegister(c, n.C, []int{condSlot, tSlot})
	if err != nil {
		c.Regs.Unlock(tSlot)
		c.Regs.Unlock(condSlot)
		return err
	}
	c.Regs.Lock(fSlot)
	maskSlot, err := freshScratch(c, []int{condSlot, tSlot, fSlot})
	if err != nil {
		c.Regs.Unlock(fSlot)
		c.Regs.Unlock(tSlot)
		c.Regs.Unlock(condSlot)
		return err
	}
	loadBitsConst(c, maskSlot, constpool.ZeroBits)
	c.Iset.EmitCondToMask(c.Buf, isa.Reg(maskSlot), isa.Reg(condSlot))
	c.Regs.Lock(maskSlot)
	dst := tSlot
	c.Iset.EmitSelect(c.Buf, isa.Reg(dst), isa.Reg(tSlot), isa.Reg(fSlot), isa.Reg(maskSlot))
	c.Regs.Unlock(maskSlot)
	c.Regs.Unlock(fSlot)
	c.Regs.Unlock(tSlot)
	c.Regs.Unlock(condSlot)
	finish(c, id, dst)
	return nil
}

func emitBoolNot(c *Context, id graph.NodeID, n graph.Node) error {
	aSlot, err := ensureInRegister(c, n.A, nil)
	if err != nil {
		return err
	}
	c.Regs.Lock(aSlot)
	oneSlot, err := freshScratch(c, []int{aSlot})
	if err != nil {
		c.Regs.Unlock(aSlot)
		return err
	}
	loadBitsConst(c, oneSlot, constpool.OneBits)
	c.Iset.EmitXor(c.Buf, isa.Reg(aSlot), isa.Reg(aSlot), isa.Reg(oneSlot))
	c.Regs.Unlock(aSlot)
	finish(c, id, aSlot)
	return nil
}

// emitIntBinary truncates both operands toward zero, applies the real
// binary primitive, then truncates the result again (spec section 4.4:
// "Integer opcodes operate on doubles by truncating at the boundaries").
func emitIntBinary(c *Context, id graph.NodeID, n graph.Node, emit func(buf *isa.Buffer, dst, a, b isa.Reg)) error {
	aSlot, err := ensureInRegister(c, n.A, nil)
	if err != nil {
		return err
	}
	c.Regs.Lock(aSlot)
	bSlot, err := ensureInRegister(c, n.B, []int{aSlot})
	if err != nil {
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Regs.Lock(bSlot)
	truncA, err := freshScratch(c, []int{aSlot, bSlot})
	if err != nil {
		c.Regs.Unlock(bSlot)
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Iset.EmitTruncate(c.Buf, isa.Reg(truncA), isa.Reg(aSlot))
	c.Regs.Lock(truncA)
	truncB, err := freshScratch(c, []int{aSlot, bSlot, truncA})
	if err != nil {
		c.Regs.Unlock(truncA)
		c.Regs.Unlock(bSlot)
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Iset.EmitTruncate(c.Buf, isa.Reg(truncB), isa.Reg(bSlot))
	emit(c.Buf, isa.Reg(truncA), isa.Reg(truncA), isa.Reg(truncB))
	c.Iset.EmitTruncate(c.Buf, isa.Reg(truncA), isa.Reg(truncA))
	c.Regs.Unlock(truncA)
	c.Regs.Unlock(bSlot)
	c.Regs.Unlock(aSlot)
	finish(c, id, truncA)
	return nil
}

func emitIntNeg(c *Context, id graph.NodeID, n graph.Node) error {
	aSlot, err := ensureInRegister(c, n.A, nil)
	if err != nil {
		return err
	}
	c.Regs.Lock(aSlot)
	truncA, err := freshScratch(c, []int{aSlot})
	if err != nil {
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Iset.EmitTruncate(c.Buf, isa.Reg(truncA), isa.Reg(aSlot))
	c.Regs.Lock(truncA)
	maskSlot, err := freshScratch(c, []int{aSlot, truncA})
	if err != nil {
		c.Regs.Unlock(truncA)
		c.Regs.Unlock(aSlot)
		return err
	}
	loadBitsConst(c, maskSlot, constpool.SignBitMask)
	c.Iset.EmitXor(c.Buf, isa.Reg(truncA), isa.Reg(truncA), isa.Reg(maskSlot))
	c.Iset.EmitTruncate(c.Buf, isa.Reg(truncA), isa.Reg(truncA))
	c.Regs.Unlock(truncA)
	c.Regs.Unlock(aSlot)
	finish(c, id, truncA)
	return nil
}

func emitIntMod(c *Context, id graph.NodeID, n graph.Node) error {
	aSlot, err := ensureInRegister(c, n.A, nil)
	if err != nil {
		return err
	}
	c.Regs.Lock(aSlot)
	bSlot, err := ensureInRegister(c, n.B, []int{aSlot})
	if err != nil {
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Regs.Lock(bSlot)
	truncA, err := freshScratch(c, []int{aSlot, bSlot})
	if err != nil {
		c.Regs.Unlock(bSlot)
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Iset.EmitTruncate(c.Buf, isa.Reg(truncA), isa.Reg(aSlot))
	c.Regs.Lock(truncA)
	truncB, err := freshScratch(c, []int{aSlot, bSlot, truncA})
	if err != nil {
		c.Regs.Unlock(truncA)
		c.Regs.Unlock(bSlot)
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Iset.EmitTruncate(c.Buf, isa.Reg(truncB), isa.Reg(bSlot))
	c.Regs.Lock(truncB)
	moddedSlot, err := freshScratch(c, []int{aSlot, bSlot, truncA, truncB})
	if err != nil {
		c.Regs.Unlock(truncB)
		c.Regs.Unlock(truncA)
		c.Regs.Unlock(bSlot)
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Iset.EmitMod(c.Buf, isa.Reg(moddedSlot), isa.Reg(truncA), isa.Reg(truncB), isa.Reg(moddedSlot))
	resultSlot, err := freshScratch(c, []int{aSlot, bSlot, truncA, truncB, moddedSlot})
	if err != nil {
		c.Regs.Unlock(truncB)
		c.Regs.Unlock(truncA)
		c.Regs.Unlock(bSlot)
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Iset.EmitSub(c.Buf, isa.Reg(resultSlot), isa.Reg(truncA), isa.Reg(moddedSlot))
	c.Iset.EmitTruncate(c.Buf, isa.Reg(resultSlot), isa.Reg(resultSlot))
	c.Regs.Unlock(truncB)
	c.Regs.Unlock(truncA)
	c.Regs.Unlock(bSlot)
	c.Regs.Unlock(aSlot)
	finish(c, id, resultSlot)
	return nil
}

func emitIntCompare(c *Context, id graph.NodeID, n graph.Node, emit func(buf *isa.Buffer, dst, a, b, one isa.Reg)) error {
	aSlot, err := ensureInRegister(c, n.A, nil)
	if err != nil {
		return err
	}
	c.Regs.Lock(aSlot)
	bSlot, err := ensureInRegister(c, n.B, []int{aSlot})
	if err != nil {
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Regs.Lock(bSlot)
	truncA, err := freshScratch(c, []int{aSlot, bSlot})
	if err != nil {
		c.Regs.Unlock(bSlot)
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Iset.EmitTruncate(c.Buf, isa.Reg(truncA), isa.Reg(aSlot))
	c.Regs.Lock(truncA)
	truncB, err := freshScratch(c, []int{aSlot, bSlot, truncA})
	if err != nil {
		c.Regs.Unlock(truncA)
		c.Regs.Unlock(bSlot)
		c.Regs.Unlock(aSlot)
		return err
	}
	c.Iset.EmitTruncate(c.Buf, isa.Reg(truncB), isa.Reg(bSlot))
	c.Regs.Lock(truncB)
	oneSlot, err := freshScratch(c, []int{aSlot, bSlot, truncA, truncB})
	if err != nil {
		c.Regs.Unlock(truncB)
		c.Regs.Unlock(truncA)
		c.Regs.Unlock(bSlot)
		c.Regs.Unlock(aSlot)
		return err
	}
	loadBitsConst(c, oneSlot, constpool.OneBits)
	emit(c.Buf, isa.Reg(truncA), isa.Reg(truncA), isa.Reg(truncB), isa.Reg(oneSlot))
	c.Regs.Unlock(truncB)
	c.Regs.Unlock(truncA)
	c.Regs.Unlock(bSlot)
	c.Regs.Unlock(aSlot)
	finish(c, id, truncA)
	return nil
}
