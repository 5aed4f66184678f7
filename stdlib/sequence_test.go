package stdlib

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/chazu/tutor/vm"
)

func ints(s *Sequence) []int64 {
	var out []int64
	for _, v := range s.items {
		out = append(out, v.AsInt())
	}
	return out
}

func seqOf(ns ...int64) *Sequence {
	s := NewSequence()
	for _, n := range ns {
		s.Append(vm.IntValue(n))
	}
	return s
}

func TestSequenceCursor(t *testing.T) {
	s := NewSequence()
	require.False(t, s.HasAccess())
	s.ToFirst()
	require.False(t, s.HasAccess(), "toFirst on an empty list")
	require.True(t, s.Content().IsNull())

	s.Append(vm.IntValue(1))
	require.False(t, s.HasAccess(), "append does not move the cursor")
	s.Append(vm.IntValue(2))
	s.Append(vm.Null)
	require.Equal(t, []int64{1, 2}, ints(s))

	s.ToFirst()
	require.Equal(t, int64(1), s.Content().AsInt())
	s.Next()
	require.Equal(t, int64(2), s.Content().AsInt())
	s.Next()
	require.False(t, s.HasAccess(), "next past the last element")
	s.Next()
	require.False(t, s.HasAccess())

	s.ToLast()
	s.SetContent(vm.IntValue(9))
	s.SetContent(vm.Null)
	require.Equal(t, []int64{1, 9}, ints(s))
}

func TestSequenceInsert(t *testing.T) {
	tests := []struct {
		name    string
		start   []int64
		current int
		want    []int64
		wantCur int64 // content after the insert, 0 when there is no access
	}{
		{name: "empty", start: nil, current: -1, want: []int64{7}},
		{name: "before first", start: []int64{1, 2}, current: 0, want: []int64{7, 1, 2}, wantCur: 1},
		{name: "before last", start: []int64{1, 2}, current: 1, want: []int64{1, 7, 2}, wantCur: 2},
		{name: "no access", start: []int64{1, 2}, current: -1, want: []int64{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seqOf(tt.start...)
			s.current = tt.current
			s.Insert(vm.IntValue(7))
			require.Equal(t, tt.want, ints(s))
			if tt.wantCur == 0 {
				require.False(t, s.HasAccess())
			} else {
				require.Equal(t, tt.wantCur, s.Content().AsInt())
			}
		})
	}
}

func TestSequenceRemove(t *testing.T) {
	s := seqOf(1, 2, 3)
	s.ToFirst()
	s.Next()
	s.Remove()
	require.Equal(t, []int64{1, 3}, ints(s))
	require.Equal(t, int64(3), s.Content().AsInt(), "successor becomes current")
	s.Remove()
	require.Equal(t, []int64{1}, ints(s))
	require.False(t, s.HasAccess(), "removing the last element leaves no current element")
	s.Remove()
	require.Equal(t, []int64{1}, ints(s))
}

func TestSequenceConcat(t *testing.T) {
	a, b := seqOf(1, 2), seqOf(3)
	a.ToFirst()
	a.Concat(b)
	require.Equal(t, []int64{1, 2, 3}, ints(a))
	require.Empty(t, ints(b))
	require.Equal(t, int64(1), a.Content().AsInt())

	a.Concat(a)
	a.Concat(nil)
	require.Equal(t, []int64{1, 2, 3}, ints(a))
}

func TestSequenceRemoveIf(t *testing.T) {
	s := seqOf(1, 2, 3, 4)
	s.ToFirst()
	n := s.RemoveIf(func(v vm.Value) bool { return v.AsInt()%2 == 0 })
	require.Equal(t, 2, n)
	require.Equal(t, []int64{1, 3}, ints(s))
	require.False(t, s.HasAccess())
}

// TestSequenceOperations applies random operations and checks that the
// cursor always designates an element or nothing, and that each operation
// keeps the elements it promises to keep.
func TestSequenceOperations(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewSequence()
		next := int64(1)
		for i := rapid.IntRange(0, 50).Draw(t, "steps"); i > 0; i-- {
			before := ints(s)
			had, cur := s.HasAccess(), s.Content()
			switch op := rapid.IntRange(0, 6).Draw(t, "op"); op {
			case 0:
				s.Append(vm.IntValue(next))
				require.Equal(t, append(before, next), ints(s))
				require.Equal(t, cur, s.Content())
				next++
			case 1:
				s.Insert(vm.IntValue(next))
				if had {
					require.Len(t, s.items, len(before)+1)
					require.Equal(t, cur, s.Content(), "insert keeps the current element")
				}
				next++
			case 2:
				s.Remove()
				if had {
					require.Len(t, s.items, len(before)-1)
					require.NotContains(t, ints(s), cur.AsInt())
				} else {
					require.Equal(t, before, ints(s))
				}
			case 3:
				s.Next()
			case 4:
				s.ToFirst()
				require.Equal(t, len(before) > 0, s.HasAccess())
			case 5:
				s.ToLast()
				if len(before) > 0 {
					require.Equal(t, before[len(before)-1], s.Content().AsInt())
				}
			case 6:
				s.Append(vm.Null)
				require.Equal(t, before, ints(s))
			}
			require.True(t, s.current == -1 || (s.current >= 0 && s.current < len(s.items)),
				"cursor %d out of range for %d elements", s.current, len(s.items))
		}
	})
}
