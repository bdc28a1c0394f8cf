package snapshot

// MaxDepth bounds the persisted undo history.
const MaxDepth = 20

// Stack is the undo history, most recent last.
type Stack struct {
	Items []*Snapshot `json:"items"`
}

// Push appends s, dropping the oldest entries beyond MaxDepth.
func (st *Stack) Push(s *Snapshot) {
	st.Items = append(st.Items, s)
	if over := len(st.Items) - MaxDepth; over > 0 {
		st.Items = append([]*Snapshot(nil), st.Items[over:]...)
	}
}

// Pop removes and returns the most recent snapshot.
func (st *Stack) Pop() (*Snapshot, bool) {
	if len(st.Items) == 0 {
		return nil, false
	}
	last := st.Items[len(st.Items)-1]
	st.Items = st.Items[:len(st.Items)-1]
	return last, true
}

// Peek returns the most recent snapshot without removing it.
func (st *Stack) Peek() (*Snapshot, bool) {
	if len(st.Items) == 0 {
		return nil, false
	}
	return st.Items[len(st.Items)-1], true
}

// Len is the number of snapshots held.
func (st *Stack) Len() int { return len(st.Items) }
