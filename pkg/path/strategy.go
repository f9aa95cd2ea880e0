package path

// The incremental matching strategy. Conceptually each location step is a
// state in a small automaton; the ancestor stack stores, per open element,
// the set of step positions a child may try to advance from. Descendant-like
// steps stay armed across arbitrarily many intervening starts; popping an
// end event retracts everything the popped frame had advanced.

import "github.com/conneroisu/marka/pkg/stream"

type strategy struct {
	steps []step
	// stack[i] holds the candidate step positions contributed by the i-th
	// open ancestor. Positions within a frame are strictly increasing.
	stack [][]int
	// one counter list per step, for numeric (positional) predicates
	counters [][]int
	// indexes of descendant / descendant-or-self steps
	descendants []int
	lastAttr    bool
}

var anyElement = principalTest{principal: axisChild}

func newStrategy(steps []step, ignoreContext bool) *strategy {
	var full []step
	switch {
	case ignoreContext:
		if steps[0].axis == axisAttribute {
			full = append([]step{{axis: axisDescendantOrSelf, test: anyElement}}, steps...)
		} else {
			full = append([]step{{axis: axisDescendantOrSelf, test: steps[0].test, preds: steps[0].preds}}, steps[1:]...)
		}
	case steps[0].axis == axisChild || steps[0].axis == axisAttribute:
		full = append([]step{{axis: axisSelf, test: anyElement}}, steps...)
	default:
		full = steps
	}

	var descendants []int
	for i, s := range full {
		if s.axis == axisDescendant || s.axis == axisDescendantOrSelf {
			descendants = append(descendants, i)
		}
	}
	return &strategy{
		steps:       full,
		stack:       [][]int{{0}},
		counters:    make([][]int, len(full)),
		descendants: descendants,
		lastAttr:    full[len(full)-1].axis == axisAttribute,
	}
}

func (s *strategy) feed(ev stream.Event, ns map[string]string, vars Variables) any {
	switch ev.Kind {
	case stream.EndElement:
		if len(s.stack) > 0 {
			s.stack = s.stack[:len(s.stack)-1]
		}
		return nil
	case stream.StartNS, stream.EndNS, stream.StartCDATA, stream.EndCDATA:
		return nil
	}

	var retval any
	var myPositions []int
	if len(s.stack) > 0 {
		myPositions = s.stack[len(s.stack)-1]
	}
	var nextPositions []int

	// The attribute axis never consumes a frame of its own; leave it out of
	// the walk and test it only once every preceding step accepted.
	realLen := len(s.steps)
	if s.lastAttr {
		realLen--
	}
	lastChecked := -1

	for _, position := range myPositions {
		// self-like axes may already have checked this position
		if position <= lastChecked {
			continue
		}
		x := position
		complete := true
		for ; x < realLen; x++ {
			st := s.steps[x]

			if x != position && st.axis != axisSelf {
				nextPositions = append(nextPositions, x)
			}
			// advancing past the entry position requires a self-like axis
			if st.axis != axisDescendantOrSelf && st.axis != axisSelf && x != position {
				x--
				complete = false
				break
			}

			matched := truthy(st.test.eval(ev, ns, vars))
			if matched && len(st.preds) > 0 {
				cnum := 0
				for _, pred := range st.preds {
					pv := pred.eval(ev, ns, vars)
					if f, isNum := pv.(float64); isNum {
						// numeric predicate: compare against a per-step
						// occurrence counter
						if len(s.counters[x]) < cnum+1 {
							s.counters[x] = append(s.counters[x], 0)
						}
						s.counters[x][cnum]++
						if s.counters[x][cnum] != int(f) {
							pv = false
						}
						cnum++
					}
					if !truthy(pv) {
						matched = false
						break
					}
				}
			}
			if !matched {
				complete = false
				break
			}
		}
		if complete {
			// every step accepted; the path matches here
			last := s.steps[len(s.steps)-1]
			if last.axis == axisAttribute {
				if val := last.test.eval(ev, ns, vars); truthy(val) {
					retval = val
				}
			} else if retval == nil {
				retval = true
			}
			x = realLen - 1
		}
		lastChecked = x
	}

	if ev.Kind == stream.StartElement {
		// Build the child frame: positions implied by this element's
		// matches, plus any earlier descendant steps, which may "jump" over
		// subtrees and so stay live for every child.
		frame := make([]int, 0, len(nextPositions)+len(s.descendants))
		i := 0
		for _, pos := range nextPositions {
			for i < len(s.descendants) && s.descendants[i] < pos {
				frame = append(frame, s.descendants[i])
				i++
			}
			if i < len(s.descendants) && s.descendants[i] == pos {
				i++
			}
			frame = append(frame, pos)
		}
		if len(myPositions) > 0 {
			last := myPositions[len(myPositions)-1]
			for i < len(s.descendants) && s.descendants[i] <= last {
				frame = append(frame, s.descendants[i])
				i++
			}
		}
		s.stack = append(s.stack, frame)
	}

	return retval
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case stream.Attrs:
		return len(t) > 0
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
