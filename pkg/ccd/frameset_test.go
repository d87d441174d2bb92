package ccd

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tagged(name string, hdr map[string]interface{}) *Frame {
	f := NewFrame(2, 2)
	f.Name = name
	for k,v := range hdr {
		f.Header.Set(k, v)
	}
	return f
}

func TestGroupByFirstAppearanceOrder(t *testing.T) {
	t.Parallel()
	fs := FrameSet{
		tagged("a", map[string]interface{}{"FILTER": "V"}),
		tagged("b", map[string]interface{}{"FILTER": "B"}),
		tagged("c", map[string]interface{}{"FILTER": "V"}),
		tagged("d", map[string]interface{}{"FILTER": "B"}),
	}

	groups := fs.GroupBy("FILTER")
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"V"}, groups[0].Values)
	assert.Equal(t, []string{"B"}, groups[1].Values)
	assert.Equal(t, "a", groups[0].Frames[0].Name)
	assert.Equal(t, "c", groups[0].Frames[1].Name)
}

func TestGroupByMissingKeyIsAbsent(t *testing.T) {
	t.Parallel()
	fs := FrameSet{
		tagged("a", map[string]interface{}{"FILTER": "V", "EXPTIME": "30"}),
		tagged("b", map[string]interface{}{"FILTER": "V"}),
	}

	groups := fs.GroupBy("FILTER", "EXPTIME")
	require.Len(t, groups, 2)

	want := [][]string{{"V", "30"}, {"V", Absent}}
	got := [][]string{groups[0].Values, groups[1].Values}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("group values mismatch (-want +got):\n%s", diff)
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()
	fs := FrameSet{
		tagged("a", map[string]interface{}{"OBJECT": "m57"}),
		tagged("b", nil),
	}

	rows := fs.Select("OBJECT", "FILTER")
	want := [][]string{{"m57", Absent}, {Absent, Absent}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("select mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterBy(t *testing.T) {
	t.Parallel()
	fs := FrameSet{
		tagged("a", map[string]interface{}{"IMAGETYP": "zero"}),
		tagged("b", map[string]interface{}{"IMAGETYP": "object"}),
		tagged("c", map[string]interface{}{"IMAGETYP": "zero"}),
	}

	zeros := fs.FilterBy("IMAGETYP", "zero")
	require.Len(t, zeros, 2)
	assert.Equal(t, "a", zeros[0].Name)
	assert.Equal(t, "c", zeros[1].Name)
}

func TestCheckShapes(t *testing.T) {
	t.Parallel()
	ok := FrameSet{NewFrame(2, 2), NewFrame(2, 2)}
	assert.NoError(t, ok.CheckShapes("test"))

	bad := FrameSet{NewFrame(2, 2), NewFrame(3, 2)}
	var sm *ShapeMismatchError
	require.ErrorAs(t, bad.CheckShapes("test"), &sm)

	var empty FrameSet
	var ee *EmptyInputError
	require.ErrorAs(t, empty.CheckShapes("test"), &ee)
}
