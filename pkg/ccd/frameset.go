package ccd

import(
	"fmt"
	"strings"
)

// Absent marks a header key a frame does not carry, in grouping keys
// and extracted tables. It is explicit on purpose: a missing value is
// never silently dropped or defaulted to zero.
const Absent = "N/A"

// A FrameSet is an ordered sequence of Frames. Operations that need
// uniform shape call CheckShapes first; mismatched shapes are a hard
// error everywhere, never a silent resize.
type FrameSet []*Frame

func (fs FrameSet)String() string {
	return fmt.Sprintf("FrameSet[%d frames]", len(fs))
}

func (fs FrameSet)CheckNonEmpty(op string) error {
	if len(fs) == 0 {
		return &EmptyInputError{Op: op}
	}
	return nil
}

// CheckShapes verifies every frame matches the first one's shape.
func (fs FrameSet)CheckShapes(op string) error {
	if err := fs.CheckNonEmpty(op); err != nil {
		return err
	}
	ref := fs[0]
	for i,f := range fs[1:] {
		if !f.SameShape(ref) {
			return &ShapeMismatchError{
				Op: op, Subject: fmt.Sprintf("frame %d (%s)", i+1, f.ID()),
				GotW: f.Dx(), GotH: f.Dy(),
				WantW: ref.Dx(), WantH: ref.Dy(),
			}
		}
	}
	return nil
}

// A Group is the sub-sequence of frames sharing one observed value
// tuple for the grouping keys. Frame order inside a group is the
// input order; groups themselves are ordered by first appearance.
type Group struct {
	Values []string
	Frames FrameSet
}

// GroupKey renders a value tuple the way it is used as a lookup key.
func GroupKey(values []string) string {
	return strings.Join(values, "|")
}

// GroupValues reads the grouping keys off one frame, Absent for any
// key the frame lacks.
func GroupValues(f *Frame, keys []string) []string {
	vals := make([]string, len(keys))
	for i,k := range keys {
		if s,ok := f.Header.GetString(k); ok {
			vals[i] = s
		} else {
			vals[i] = Absent
		}
	}
	return vals
}

// GroupBy partitions the set by the observed value tuple of the given
// header keys. The keys are opaque strings, compared by equality.
func (fs FrameSet)GroupBy(keys ...string) []Group {
	groups := []Group{}
	index := map[string]int{}

	for _,f := range fs {
		vals := GroupValues(f, keys)
		gk := GroupKey(vals)
		if i,exists := index[gk]; exists {
			groups[i].Frames = append(groups[i].Frames, f)
		} else {
			index[gk] = len(groups)
			groups = append(groups, Group{Values: vals, Frames: FrameSet{f}})
		}
	}

	return groups
}

// FilterBy keeps the frames whose header key equals the given value.
func (fs FrameSet)FilterBy(key, value string) FrameSet {
	out := FrameSet{}
	for _,f := range fs {
		if s,ok := f.Header.GetString(key); ok && s == value {
			out = append(out, f)
		}
	}
	return out
}

// Select extracts the listed header keys from every frame, one row
// per frame in set order, Absent where a key is missing.
func (fs FrameSet)Select(keys ...string) [][]string {
	rows := make([][]string, len(fs))
	for i,f := range fs {
		rows[i] = GroupValues(f, keys)
	}
	return rows
}

// Clone deep-copies every frame.
func (fs FrameSet)Clone() FrameSet {
	out := make(FrameSet, len(fs))
	for i,f := range fs {
		out[i] = f.Clone()
	}
	return out
}
