package codegen

import (
	"dagjit.dev/dagjit/pkg/constpool"
	"dagjit.dev/dagjit/pkg/graph"
	"dagjit.dev/dagjit/pkg/isa"
)

// EmitReverse emits the reverse-mode gradient sweep (spec section 4.8).
// Callers must only invoke this after EmitForward has completed and only
// when graph.HasGradientInputs() is true. It seeds gradient[output] = 1.0
// for every marked output, then walks nodes in strict reverse index order,
// accumulating each live, gradient-needing node's contribution into its
// operands' gradient slots via the node's analytical partial-derivative
// rule.
func EmitReverse(c *Context) error {
	if err := seedOutputGradients(c); err != nil {
		return err
	}
	for i := len(c.Graph.Nodes) - 1; i >= 0; i-- {
		id := graph.NodeID(i)
		n := c.Graph.Node(id)
		if n.IsDead || !n.NeedsGradient {
			continue
		}
		if err := emitGradientNode(c, id, n); err != nil {
			return err
		}
	}
	return nil
}

func seedOutputGradients(c *Context) error {
	oneSlot, err := freshScratch(c, nil)
	if err != nil {
		return err
	}
	loadBitsConst(c, oneSlot, constpool.OneBits)
	for _, out := range c.Graph.Outputs {
		c.Iset.EmitStoreGradient(c.Buf, gradBase, int(out), isa.Reg(oneSlot))
	}
	return nil
}

// accumulate adds contribution (already scaled by gradient[n]) into
// gradient[target].
func accumulate(c *Context, target graph.NodeID, contribution int, avoid []int) error {
	scratch, err := freshScratch(c, append(append([]int{}, avoid...), contribution))
	if err != nil {
		return err
	}
	c.Iset.EmitAccumulateGradient(c.Buf, gradBase, int(target), isa.Reg(contribution), isa.Reg(scratch))
	return nil
}

func mulFresh(c *Context, a, b int, avoid []int) (int, error) {
	dst, err := freshScratch(c, append(append([]int{}, avoid...), a, b))
	if err != nil {
		return 0, err
	}
	c.Iset.EmitMul(c.Buf, isa.Reg(dst), isa.Reg(a), isa.Reg(b))
	return dst, nil
}

func divFresh(c *Context, a, b int, avoid []int) (int, error) {
	dst, err := freshScratch(c, append(append([]int{}, avoid...), a, b))
	if err != nil {
		return 0, err
	}
	c.Iset.EmitDiv(c.Buf, isa.Reg(dst), isa.Reg(a), isa.Reg(b))
	return dst, nil
}

func addFresh(c *Context, a, b int, avoid []int) (int, error) {
	dst, err := freshScratch(c, append(append([]int{}, avoid...), a, b))
	if err != nil {
		return 0, err
	}
	c.Iset.EmitAdd(c.Buf, isa.Reg(dst), isa.Reg(a), isa.Reg(b))
	return dst, nil
}

// negFresh returns a fresh register holding -a, leaving a untouched.
func negFresh(c *Context, a int, avoid []int) (int, error) {
	mask, err := freshScratch(c, append(append([]int{}, avoid...), a))
	if err != nil {
		return 0, err
	}
	loadBitsConst(c, mask, constpool.SignBitMask)
	dst, err := freshScratch(c, append(append([]int{}, avoid...), a, mask))
	if err != nil {
		return 0, err
	}
	c.Iset.EmitMove(c.Buf, isa.Reg(dst), isa.Reg(a))
	c.Iset.EmitXor(c.Buf, isa.Reg(dst), isa.Reg(dst), isa.Reg(mask))
	return dst, nil
}

// loadOne loads the bit pattern of 1.0 into a fresh register.
func loadOne(c *Context, avoid []int) (int, error) {
	slot, err := freshScratch(c, avoid)
	if err != nil {
		return 0, err
	}
	loadBitsConst(c, slot, constpool.OneBits)
	return slot, nil
}

func emitGradientNode(c *Context, id graph.NodeID, n graph.Node) error {
	recordTrace(c, id)
	switch n.Op {
	case graph.Add, graph.Sub, graph.Mul, graph.Div, graph.Neg, graph.Abs,
		graph.Square, graph.Recip, graph.Min, graph.Max, graph.Mod,
		graph.Exp, graph.Log, graph.Sqrt, graph.Pow, graph.Sin, graph.Cos, graph.Tan:
		return emitArithmeticGradient(c, id, n)
	case graph.If, graph.IntIf:
		return emitIfGradient(c, id, n)
	default:
		// Comparisons, booleans, the integer sub-alphabet other than
		// IntIf (routed through emitIfGradient above), and Input all
		// contribute no gradient (spec section 4.8: "Comparisons and
		// boolean ops contribute no gradient"); integer truncation is
		// piecewise-constant a.e. and is treated the same way here.
		return nil
	}
}

func emitArithmeticGradient(c *Context, id graph.NodeID, n graph.Node) error {
	gnSlot, err := freshScratch(c, nil)
	if err != nil {
		return err
	}
	c.Iset.EmitLoadGradient(c.Buf, isa.Reg(gnSlot), gradBase, int(id))

	switch n.Op {
	case graph.Add:
		if err := accumulate(c, n.A, gnSlot, nil); err != nil {
			return err
		}
		return accumulate(c, n.B, gnSlot, nil)

	case graph.Sub:
		negG, err := negFresh(c, gnSlot, nil)
		if err != nil {
			return err
		}
		if err := accumulate(c, n.A, gnSlot, []int{negG}); err != nil {
			return err
		}
		return accumulate(c, n.B, negG, nil)

	case graph.Mul:
		aVal, err := ensureInRegister(c, n.A, []int{gnSlot})
		if err != nil {
			return err
		}
		bVal, err := ensureInRegister(c, n.B, []int{gnSlot, aVal})
		if err != nil {
			return err
		}
		contribA, err := mulFresh(c, bVal, gnSlot, []int{aVal, bVal})
		if err != nil {
			return err
		}
		if err := accumulate(c, n.A, contribA, []int{aVal, bVal, gnSlot}); err != nil {
			return err
		}
		contribB, err := mulFresh(c, aVal, gnSlot, []int{aVal, bVal, contribA})
		if err != nil {
			return err
		}
		return accumulate(c, n.B, contribB, nil)

	case graph.Div:
		aVal, err := ensureInRegister(c, n.A, []int{gnSlot})
		if err != nil {
			return err
		}
		bVal, err := ensureInRegister(c, n.B, []int{gnSlot, aVal})
		if err != nil {
			return err
		}
		contribA, err := divFresh(c, gnSlot, bVal, []int{aVal, bVal})
		if err != nil {
			return err
		}
		if err := accumulate(c, n.A, contribA, []int{aVal, bVal, gnSlot}); err != nil {
			return err
		}
		bSq, err := mulFresh(c, bVal, bVal, []int{aVal, bVal, gnSlot, contribA})
		if err != nil {
			return err
		}
		numer, err := mulFresh(c, aVal, gnSlot, []int{aVal, bVal, bSq, contribA})
		if err != nil {
			return err
		}
		ratio, err := divFresh(c, numer, bSq, []int{aVal, bVal, contribA})
		if err != nil {
			return err
		}
		contribB, err := negFresh(c, ratio, []int{aVal, bVal, contribA})
		if err != nil {
			return err
		}
		return accumulate(c, n.B, contribB, nil)

	case graph.Neg:
		contribA, err := negFresh(c, gnSlot, nil)
		if err != nil {
			return err
		}
		return accumulate(c, n.A, contribA, nil)

	case graph.Abs:
		aVal, err := ensureInRegister(c, n.A, []int{gnSlot})
		if err != nil {
			return err
		}
		zero, err := freshScratch(c, []int{gnSlot, aVal})
		if err != nil {
			return err
		}
		loadBitsConst(c, zero, constpool.ZeroBits)
		one, err := loadOne(c, []int{gnSlot, aVal, zero})
		if err != nil {
			return err
		}
		sign, err := freshScratch(c, []int{gnSlot, aVal, zero, one})
		if err != nil {
			return err
		}
		c.Iset.EmitCompareLT(c.Buf, isa.Reg(sign), isa.Reg(aVal), isa.Reg(zero), isa.Reg(one))
		// sign is 1.0 where a<0 and 0.0 otherwise; fold into {-1,+1} via
		// (1 - 2*sign).
		two, err := addFresh(c, one, one, []int{gnSlot, aVal, sign})
		if err != nil {
			return err
		}
		scaled, err := mulFresh(c, two, sign, []int{gnSlot, aVal, one})
		if err != nil {
			return err
		}
		signed, err := freshScratch(c, []int{gnSlot, aVal, one, scaled})
		if err != nil {
			return err
		}
		c.Iset.EmitSub(c.Buf, isa.Reg(signed), isa.Reg(one), isa.Reg(scaled))
		contribA, err := mulFresh(c, signed, gnSlot, []int{aVal})
		if err != nil {
			return err
		}
		return accumulate(c, n.A, contribA, nil)

	case graph.Square:
		aVal, err := ensureInRegister(c, n.A, []int{gnSlot})
		if err != nil {
			return err
		}
		two, err := loadTwo(c, []int{gnSlot, aVal})
		if err != nil {
			return err
		}
		scaled, err := mulFresh(c, two, aVal, []int{gnSlot})
		if err != nil {
			return err
		}
		contribA, err := mulFresh(c, scaled, gnSlot, nil)
		if err != nil {
			return err
		}
		return accumulate(c, n.A, contribA, nil)

	case graph.Recip:
		aVal, err := ensureInRegister(c, n.A, []int{gnSlot})
		if err != nil {
			return err
		}
		aSq, err := mulFresh(c, aVal, aVal, []int{gnSlot})
		if err != nil {
			return err
		}
		ratio, err := divFresh(c, gnSlot, aSq, nil)
		if err != nil {
			return err
		}
		contribA, err := negFresh(c, ratio, nil)
		if err != nil {
			return err
		}
		return accumulate(c, n.A, contribA, nil)

	case graph.Min, graph.Max:
		return emitMinMaxGradient(c, id, n, gnSlot)

	case graph.Mod:
		// Treated as piecewise-linear in its dividend (d/da = 1) with b
		// held piecewise constant (d/db = 0), the same convention applied
		// to If/comparison discontinuities elsewhere in this pass.
		return accumulate(c, n.A, gnSlot, nil)

	case graph.Exp:
		nVal, err := ensureInRegister(c, id, []int{gnSlot})
		if err != nil {
			return err
		}
		contribA, err := mulFresh(c, nVal, gnSlot, nil)
		if err != nil {
			return err
		}
		return accumulate(c, n.A, contribA, nil)

	case graph.Log:
		aVal, err := ensureInRegister(c, n.A, []int{gnSlot})
		if err != nil {
			return err
		}
		contribA, err := divFresh(c, gnSlot, aVal, nil)
		if err != nil {
			return err
		}
		return accumulate(c, n.A, contribA, nil)

	case graph.Sqrt:
		nVal, err := ensureInRegister(c, id, []int{gnSlot})
		if err != nil {
			return err
		}
		two, err := loadTwo(c, []int{gnSlot, nVal})
		if err != nil {
			return err
		}
		denom, err := mulFresh(c, two, nVal, []int{gnSlot})
		if err != nil {
			return err
		}
		contribA, err := divFresh(c, gnSlot, denom, nil)
		if err != nil {
			return err
		}
		return accumulate(c, n.A, contribA, nil)

	case graph.Pow:
		aVal, err := ensureInRegister(c, n.A, []int{gnSlot})
		if err != nil {
			return err
		}
		bVal, err := ensureInRegister(c, n.B, []int{gnSlot, aVal})
		if err != nil {
			return err
		}
		nVal, err := ensureInRegister(c, id, []int{gnSlot, aVal, bVal})
		if err != nil {
			return err
		}
		one, err := loadOne(c, []int{gnSlot, aVal, bVal, nVal})
		if err != nil {
			return err
		}
		bMinus1, err := freshScratch(c, []int{gnSlot, aVal, bVal, nVal, one})
		if err != nil {
			return err
		}
		c.Iset.EmitSub(c.Buf, isa.Reg(bMinus1), isa.Reg(bVal), isa.Reg(one))
		aPowBMinus1, err := freshScratch(c, []int{gnSlot, aVal, bVal, nVal, bMinus1})
		if err != nil {
			return err
		}
		c.Iset.EmitCallBinary(c.Buf, isa.Reg(aPowBMinus1), isa.Reg(aVal), isa.Reg(bMinus1), "pow")
		c.Regs.InvalidateVolatile(int(isa.VolatileLo), int(isa.VolatileHi))
		scaledA, err := mulFresh(c, bVal, aPowBMinus1, []int{gnSlot, aVal, nVal})
		if err != nil {
			return err
		}
		contribA, err := mulFresh(c, scaledA, gnSlot, []int{aVal, nVal})
		if err != nil {
			return err
		}
		if err := accumulate(c, n.A, contribA, []int{aVal, nVal, gnSlot}); err != nil {
			return err
		}
		logA, err := freshScratch(c, []int{gnSlot, aVal, nVal})
		if err != nil {
			return err
		}
		c.Iset.EmitCallUnary(c.Buf, isa.Reg(logA), isa.Reg(aVal), "log")
		c.Regs.InvalidateVolatile(int(isa.VolatileLo), int(isa.VolatileHi))
		scaledB, err := mulFresh(c, nVal, logA, []int{gnSlot})
		if err != nil {
			return err
		}
		contribB, err := mulFresh(c, scaledB, gnSlot, nil)
		if err != nil {
			return err
		}
		return accumulate(c, n.B, contribB, nil)

	case graph.Sin:
		aVal, err := ensureInRegister(c, n.A, []int{gnSlot})
		if err != nil {
			return err
		}
		cosA, err := freshScratch(c, []int{gnSlot, aVal})
		if err != nil {
			return err
		}
		c.Iset.EmitCallUnary(c.Buf, isa.Reg(cosA), isa.Reg(aVal), "cos")
		c.Regs.InvalidateVolatile(int(isa.VolatileLo), int(isa.VolatileHi))
		contribA, err := mulFresh(c, cosA, gnSlot, nil)
		if err != nil {
			return err
		}
		return accumulate(c, n.A, contribA, nil)

	case graph.Cos:
		aVal, err := ensureInRegister(c, n.A, []int{gnSlot})
		if err != nil {
			return err
		}
		sinA, err := freshScratch(c, []int{gnSlot, aVal})
		if err != nil {
			return err
		}
		c.Iset.EmitCallUnary(c.Buf, isa.Reg(sinA), isa.Reg(aVal), "sin")
		c.Regs.InvalidateVolatile(int(isa.VolatileLo), int(isa.VolatileHi))
		negSinA, err := negFresh(c, sinA, nil)
		if err != nil {
			return err
		}
		contribA, err := mulFresh(c, negSinA, gnSlot, nil)
		if err != nil {
			return err
		}
		return accumulate(c, n.A, contribA, nil)

	case graph.Tan:
		nVal, err := ensureInRegister(c, id, []int{gnSlot})
		if err != nil {
			return err
		}
		one, err := loadOne(c, []int{gnSlot, nVal})
		if err != nil {
			return err
		}
		tanSq, err := mulFresh(c, nVal, nVal, []int{gnSlot, one})
		if err != nil {
			return err
		}
		factor, err := addFresh(c, one, tanSq, []int{gnSlot})
		if err != nil {
			return err
		}
		contribA, err := mulFresh(c, factor, gnSlot, nil)
		if err != nil {
			return err
		}
		return accumulate(c, n.A, contribA, nil)
	}
	return nil
}

func loadTwo(c *Context, avoid []int) (int, error) {
	one, err := loadOne(c, avoid)
	if err != nil {
		return 0, err
	}
	two, err := addFresh(c, one, one, avoid)
	if err != nil {
		return 0, err
	}
	return two, nil
}

// emitMinMaxGradient routes the upstream gradient entirely to whichever
// operand the forward pass selected, the same piecewise-constant
// treatment If gives its condition.
func emitMinMaxGradient(c *Context, id graph.NodeID, n graph.Node, gnSlot int) error {
	aVal, err := ensureInRegister(c, n.A, []int{gnSlot})
	if err != nil {
		return err
	}
	bVal, err := ensureInRegister(c, n.B, []int{gnSlot, aVal})
	if err != nil {
		return err
	}
	one, err := loadOne(c, []int{gnSlot, aVal, bVal})
	if err != nil {
		return err
	}
	mask, err := freshScratch(c, []int{gnSlot, aVal, bVal, one})
	if err != nil {
		return err
	}
	if n.Op == graph.Min {
		c.Iset.EmitCompareLT(c.Buf, isa.Reg(mask), isa.Reg(aVal), isa.Reg(bVal), isa.Reg(one))
	} else {
		c.Iset.EmitCompareGT(c.Buf, isa.Reg(mask), isa.Reg(aVal), isa.Reg(bVal), isa.Reg(one))
	}
	zero, err := freshScratch(c, []int{gnSlot, aVal, bVal, one, mask})
	if err != nil {
		return err
	}
	loadBitsConst(c, zero, constpool.ZeroBits)
	c.Iset.EmitCondToMask(c.Buf, isa.Reg(mask), isa.Reg(mask))
	contribA, err := freshScratch(c, []int{gnSlot, aVal, bVal, mask})
	if err != nil {
		return err
	}
	c.Iset.EmitAnd(c.Buf, isa.Reg(contribA), isa.Reg(gnSlot), isa.Reg(mask))
	if err := accumulate(c, n.A, contribA, []int{gnSlot, mask}); err != nil {
		return err
	}
	contribB, err := freshScratch(c, []int{gnSlot, mask})
	if err != nil {
		return err
	}
	c.Iset.EmitAndNot(c.Buf, isa.Reg(contribB), isa.Reg(mask), isa.Reg(gnSlot))
	return accumulate(c, n.B, contribB, nil)
}

func emitIfGradient(c *Context, id graph.NodeID, n graph.Node) error {
	gnSlot, err := freshScratch(c, nil)
	if err != nil {
		return err
	}
	c.Iset.EmitLoadGradient(c.Buf, isa.Reg(gnSlot), gradBase, int(id))

	condVal, err := ensureInRegister(c, n.A, []int{gnSlot})
	if err != nil {
		return err
	}
	zero, err := freshScratch(c, []int{gnSlot, condVal})
	if err != nil {
		return err
	}
	loadBitsConst(c, zero, constpool.ZeroBits)
	c.Iset.EmitCondToMask(c.Buf, isa.Reg(zero), isa.Reg(condVal))
	mask := zero

	contribT, err := freshScratch(c, []int{gnSlot, mask})
	if err != nil {
		return err
	}
	c.Iset.EmitAnd(c.Buf, isa.Reg(contribT), isa.Reg(gnSlot), isa.Reg(mask))
	if err := accumulate(c, n.B, contribT, []int{gnSlot, mask}); err != nil {
		return err
	}

	contribF, err := freshScratch(c, []int{gnSlot, mask})
	if err != nil {
		return err
	}
	c.Iset.EmitAndNot(c.Buf, isa.Reg(contribF), isa.Reg(mask), isa.Reg(gnSlot))
	return accumulate(c, n.C, contribF, nil)
	// n.A (cond) receives zero gradient, per spec section 4.8.
}
