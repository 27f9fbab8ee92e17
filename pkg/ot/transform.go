package ot

// Transform rewrites two concurrent operations made against the same text so
// each can be applied after the other. op1 is the local operation and op2 the
// remote one. The returned op1p applies after op2 and op2p applies after op1,
// so that apply(apply(T, op1), op2p) == apply(apply(T, op2), op1p).
//
// Both operations must be valid (non-negative positions and lengths).
func Transform(op1, op2 Operation) (op1p, op2p Operation) {
	if op1.Type == OpRetain || op2.Type == OpRetain {
		return op1, op2
	}

	switch {
	case op1.Type == OpInsert && op2.Type == OpInsert:
		return transformInsertInsert(op1, op2)
	case op1.Type == OpDelete && op2.Type == OpDelete:
		return transformDeleteDelete(op1, op2)
	case op1.Type == OpInsert && op2.Type == OpDelete:
		return transformInsertDelete(op1, op2)
	case op1.Type == OpDelete && op2.Type == OpInsert:
		ins, del := transformInsertDelete(op2, op1)
		return del, ins
	}
	return op1, op2
}

// TransformAgainst rebases op over a sequence of operations that were applied
// in order to the same base text op was made against.
func TransformAgainst(op Operation, applied []Operation) Operation {
	for _, other := range applied {
		op, _ = Transform(op, other)
	}
	return op
}

func transformInsertInsert(op1, op2 Operation) (Operation, Operation) {
	switch {
	case op1.Position < op2.Position:
		op2.Position += op1.contentLen()
	case op1.Position > op2.Position:
		op1.Position += op2.contentLen()
	case precedes(op1, op2):
		op2.Position += op1.contentLen()
	default:
		op1.Position += op2.contentLen()
	}
	return op1, op2
}

// precedes orders inserts at the same position by (timestamp, user, content).
// Operations equal on every key are interchangeable, so the first argument wins.
func precedes(a, b Operation) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	if a.UserID != b.UserID {
		return a.UserID < b.UserID
	}
	return a.Content <= b.Content
}

func transformDeleteDelete(op1, op2 Operation) (Operation, Operation) {
	end1 := op1.Position + op1.Length
	end2 := op2.Position + op2.Length

	switch {
	case end1 <= op2.Position:
		op2.Position -= op1.Length
		return op1, op2
	case end2 <= op1.Position:
		op1.Position -= op2.Length
		return op1, op2
	}

	overlap := min(end1, end2) - max(op1.Position, op2.Position)
	if overlap < 0 {
		overlap = 0
	}
	start := min(op1.Position, op2.Position)

	op1.Length -= overlap
	op2.Length -= overlap
	op1.Position = start
	op2.Position = start
	return op1, op2
}

// transformInsertDelete handles an insert ins concurrent with a delete del and
// returns (ins', del').
func transformInsertDelete(ins, del Operation) (Operation, Operation) {
	end := del.Position + del.Length

	switch {
	case ins.Position <= del.Position:
		del.Position += ins.contentLen()
	case ins.Position >= end:
		ins.Position -= del.Length
	default:
		// The insert lands inside the deleted range and is swallowed: the
		// delete grows to cover it and the insert collapses to a retain at the
		// delete's start.
		del.Length += ins.contentLen()
		ins = Operation{
			Type:      OpRetain,
			Position:  del.Position,
			UserID:    ins.UserID,
			Timestamp: ins.Timestamp,
		}
	}
	return ins, del
}
