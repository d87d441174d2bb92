package register

// Affine transform plumbing for image alignment.

import(
	"fmt"
	"math"

	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"
)

// Use a local type so we can hang methods off it. Row-major 2x3:
// [a00 a01 a02; a10 a11 a12].
type Aff3 f64.Aff3

func Identity() Aff3 {
	return Aff3{1, 0, 0, 0, 1, 0}
}

func (p Aff3)Mult(q Aff3) Aff3 {
	return Aff3{
		p[3*0+0]*q[3*0+0] + p[3*0+1]*q[3*1+0],
		p[3*0+0]*q[3*0+1] + p[3*0+1]*q[3*1+1],
		p[3*0+0]*q[3*0+2] + p[3*0+1]*q[3*1+2] + p[3*0+2],
		p[3*1+0]*q[3*0+0] + p[3*1+1]*q[3*1+0],
		p[3*1+0]*q[3*0+1] + p[3*1+1]*q[3*1+1],
		p[3*1+0]*q[3*0+2] + p[3*1+1]*q[3*1+2] + p[3*1+2],
	}
}

func (m Aff3)Translate(tx, ty float64) Aff3 {
	return m.Mult(Aff3{1, 0, tx, 0, 1, ty})
}

func (m Aff3)Rotate(thetaDeg float64) Aff3 {
	cosTheta := math.Cos(thetaDeg * math.Pi / 180.0)
	sinTheta := math.Sin(thetaDeg * math.Pi / 180.0)
	return m.Mult(Aff3{cosTheta, -1 * sinTheta, 0, sinTheta, cosTheta, 0})
}

func (m Aff3)Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

// Invert fails on a degenerate (near zero determinant) transform.
func (m Aff3)Invert() (Aff3, error) {
	det := m[0]*m[4] - m[1]*m[3]
	if math.Abs(det) < 1e-12 {
		return Identity(), fmt.Errorf("degenerate transform, det=%g", det)
	}
	return Aff3{
		m[4] / det, -m[1] / det, (m[1]*m[5] - m[2]*m[4]) / det,
		-m[3] / det, m[0] / det, (m[2]*m[3] - m[0]*m[5]) / det,
	}, nil
}

func (m Aff3)String() string {
	scale := math.Sqrt(math.Abs(m[0]*m[4] - m[1]*m[3]))
	rot := math.Atan2(m[3], m[0]) * 180.0 / math.Pi
	return fmt.Sprintf("aff3[dx=%.2f dy=%.2f rot=%.2fdeg scale=%.4f]", m[2], m[5], rot, scale)
}

// FitSimilarity solves, in the least-squares sense, for the
// translation+rotation+scale transform taking src points onto dst
// points. Each pair contributes two rows of
//
//	[x -y 1 0] [a]   [X]
//	[y  x 0 1] [b] = [Y]
//	           [tx]
//	           [ty]
//
// Needs at least 2 pairs; 3+ gives an overdetermined system and a
// meaningful residual.
func FitSimilarity(src, dst [][2]float64) (Aff3, error) {
	if len(src) != len(dst) || len(src) < 2 {
		return Identity(), fmt.Errorf("similarity fit needs >=2 point pairs, got %d/%d", len(src), len(dst))
	}

	a := mat.NewDense(2*len(src), 4, nil)
	b := mat.NewVecDense(2*len(src), nil)
	for i,p := range src {
		a.SetRow(2*i, []float64{p[0], -p[1], 1, 0})
		a.SetRow(2*i+1, []float64{p[1], p[0], 0, 1})
		b.SetVec(2*i, dst[i][0])
		b.SetVec(2*i+1, dst[i][1])
	}

	var qr mat.QR
	qr.Factorize(a)
	x := mat.NewVecDense(4, nil)
	if err := qr.SolveVecTo(x, false, b); err != nil {
		return Identity(), fmt.Errorf("similarity fit: %v", err)
	}

	xform := Aff3{
		x.AtVec(0), -x.AtVec(1), x.AtVec(2),
		x.AtVec(1), x.AtVec(0), x.AtVec(3),
	}
	if _,err := xform.Invert(); err != nil {
		return Identity(), fmt.Errorf("similarity fit: %v", err)
	}
	return xform, nil
}

// RMSResidual is the root-mean-square distance between transformed
// src points and their dst partners.
func (m Aff3)RMSResidual(src, dst [][2]float64) float64 {
	if len(src) == 0 {
		return 0
	}
	tot := 0.0
	for i,p := range src {
		fx, fy := m.Apply(p[0], p[1])
		dx, dy := fx-dst[i][0], fy-dst[i][1]
		tot += dx*dx + dy*dy
	}
	return math.Sqrt(tot / float64(len(src)))
}
