package ot

import "time"

// DiffText returns insert/delete operations that turn oldText into newText
// when applied in order.
//
// The walk is greedy and single pass. On a mismatch it looks ahead in the old
// text for the current new rune (a deletion resyncs the texts) and in the new
// text for the current old rune (an insertion resyncs them) and takes the
// shorter of the two. When neither resyncs, the rune is substituted.
func DiffText(oldText, newText, userID string) []Operation {
	a := []rune(oldText)
	b := []rune(newText)

	var ops []Operation
	ts := time.Now().UnixNano()
	emit := func(op Operation) {
		op.UserID = userID
		op.Timestamp = ts
		ts++
		ops = append(ops, op)
	}

	// Invariant: the text after ops so far is b[:j] + a[i:], so j is also the
	// current edit position.
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case i < len(a) && j < len(b) && a[i] == b[j]:
			i++
			j++

		case i == len(a):
			emit(Operation{Type: OpInsert, Position: j, Content: string(b[j:])})
			j = len(b)

		case j == len(b):
			emit(Operation{Type: OpDelete, Position: j, Length: len(a) - i})
			i = len(a)

		default:
			delEnd := indexFrom(a, i, b[j])
			insEnd := indexFrom(b, j, a[i])

			switch {
			case delEnd >= 0 && (insEnd < 0 || delEnd-i <= insEnd-j):
				emit(Operation{Type: OpDelete, Position: j, Length: delEnd - i})
				i = delEnd
			case insEnd >= 0:
				emit(Operation{Type: OpInsert, Position: j, Content: string(b[j:insEnd])})
				j = insEnd
			default:
				emit(Operation{Type: OpDelete, Position: j, Length: 1})
				emit(Operation{Type: OpInsert, Position: j, Content: string(b[j])})
				i++
				j++
			}
		}
	}

	return Compose(ops)
}

// indexFrom returns the first index >= from where s holds r, or -1.
func indexFrom(s []rune, from int, r rune) int {
	for k := from; k < len(s); k++ {
		if s[k] == r {
			return k
		}
	}
	return -1
}

// Compose merges consecutive operations of the same user and type that are
// positionally adjacent: inserts that continue where the previous one ended
// are concatenated and deletes at the same position are summed. The result is
// equivalent to ops when applied in order.
func Compose(ops []Operation) []Operation {
	if len(ops) == 0 {
		return nil
	}

	out := make([]Operation, 0, len(ops))
	out = append(out, ops[0])
	for _, op := range ops[1:] {
		last := &out[len(out)-1]
		if last.UserID == op.UserID && last.Type == op.Type {
			switch op.Type {
			case OpInsert:
				if op.Position == last.Position+last.contentLen() {
					last.Content += op.Content
					continue
				}
			case OpDelete:
				if op.Position == last.Position {
					last.Length += op.Length
					continue
				}
			}
		}
		out = append(out, op)
	}
	return out
}
