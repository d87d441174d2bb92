package ccd

import(
	"fmt"
	"math"
)

// A Frame is one image: a grid of float64 pixel values plus a Header.
// The grid is stored row-major with a stride, so the whole thing is
// one allocation. The shape is fixed at construction; nothing resizes
// a Frame in place.
type Frame struct {
	Name   string // identifier, usually the source filename
	stride int
	pix    []float64
	Header Header
}

func NewFrame(w, h int) *Frame {
	if w < 1 || h < 1 {
		w, h = 1, 1
	}
	return &Frame{
		stride: w,
		pix:    make([]float64, w*h),
		Header: NewHeader(),
	}
}

// NewFrameFromValues builds a Frame from a rows-of-columns slice. All
// rows must be the same length; ragged input is truncated to the
// first row's width.
func NewFrameFromValues(name string, rows [][]float64) *Frame {
	h := len(rows)
	w := 0
	if h > 0 {
		w = len(rows[0])
	}
	f := NewFrame(w, h)
	f.Name = name
	for y := 0; y < h; y++ {
		for x := 0; x < w && x < len(rows[y]); x++ {
			f.Set(x, y, rows[y][x])
		}
	}
	return f
}

func (f *Frame)String() string {
	return fmt.Sprintf("Frame[%s, %dx%d, %d hdr keys]", f.Name, f.Dx(), f.Dy(), f.Header.Len())
}

func (f *Frame)Dx() int                   { return f.stride }
func (f *Frame)Dy() int                   { return len(f.pix) / f.stride }
func (f *Frame)Npix() int                 { return len(f.pix) }
func (f *Frame)Set(x, y int, v float64)   { f.pix[f.stride*y+x] = v }
func (f *Frame)Get(x, y int) float64      { return f.pix[f.stride*y+x] }

// At is a bounds-checked Get; out-of-frame reads return NaN.
func (f *Frame)At(x, y int) float64 {
	if x < 0 || y < 0 || x >= f.Dx() || y >= f.Dy() {
		return math.NaN()
	}
	return f.Get(x, y)
}

func (f *Frame)In(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.Dx() && y < f.Dy()
}

// Pix exposes the backing slice. Callers that must not mutate the
// Frame take a Clone first.
func (f *Frame)Pix() []float64 { return f.pix }

func (f *Frame)Fill(v float64) {
	for i := range f.pix {
		f.pix[i] = v
	}
}

func (f *Frame)SameShape(other *Frame) bool {
	return f.Dx() == other.Dx() && f.Dy() == other.Dy()
}

// Clone deep-copies pixels and header.
func (f *Frame)Clone() *Frame {
	f2 := &Frame{
		Name:   f.Name,
		stride: f.stride,
		pix:    make([]float64, len(f.pix)),
		Header: f.Header.Clone(),
	}
	copy(f2.pix, f.pix)
	return f2
}

// ID returns a stable identifier for provenance headers and tables:
// the Name when set, else the OBJECT/IMAGETYP header, else "frame".
func (f *Frame)ID() string {
	if f.Name != "" {
		return f.Name
	}
	if s,ok := f.Header.GetString("OBJECT"); ok {
		return s
	}
	if s,ok := f.Header.GetString("IMAGETYP"); ok {
		return s
	}
	return "frame"
}

// ExposureTime reads EXPTIME, falling back to EXPOSURE.
func (f *Frame)ExposureTime() (float64, bool) {
	if v,ok := f.Header.GetFloat("EXPTIME"); ok {
		return v, true
	}
	return f.Header.GetFloat("EXPOSURE")
}

// ArithOp is the closed set of element-wise operators.
type ArithOp string

const (
	OpAdd ArithOp = "+"
	OpSub ArithOp = "-"
	OpMul ArithOp = "*"
	OpDiv ArithOp = "/"
)

// Arith returns a new Frame combining f with another frame
// element-wise. The inputs are untouched.
func (f *Frame)Arith(other *Frame, op ArithOp) (*Frame, error) {
	if err := checkOp("arith", op); err != nil {
		return nil, err
	}
	if !f.SameShape(other) {
		return nil, &ShapeMismatchError{
			Op: "arith", Subject: other.ID(),
			GotW: other.Dx(), GotH: other.Dy(),
			WantW: f.Dx(), WantH: f.Dy(),
		}
	}
	out := f.Clone()
	for i := range out.pix {
		out.pix[i] = apply(out.pix[i], other.pix[i], op)
	}
	return out, nil
}

// ArithScalar returns a new Frame combining f with a constant.
func (f *Frame)ArithScalar(v float64, op ArithOp) (*Frame, error) {
	if err := checkOp("arith", op); err != nil {
		return nil, err
	}
	out := f.Clone()
	for i := range out.pix {
		out.pix[i] = apply(out.pix[i], v, op)
	}
	return out, nil
}

func checkOp(opName string, op ArithOp) error {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv:
		return nil
	}
	return &UnsupportedMethodError{Op: opName, Method: string(op)}
}

func apply(a, b float64, op ArithOp) float64 {
	switch op {
	case OpAdd: return a + b
	case OpSub: return a - b
	case OpMul: return a * b
	case OpDiv:
		if b == 0 {
			return 0 // IRAF imarith divzero default
		}
		return a / b
	}
	return a
}
