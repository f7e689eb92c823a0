package fixed

import "errors"

// MaxMatrixSize bounds matrix and vector dimensions
const MaxMatrixSize = 4

// ErrNotImplemented reports an operation that is declared but intentionally
// unimplemented (3x3 inverse). Callers must not treat the zero result as
// success.
var ErrNotImplemented = errors.New("fixed: operation not implemented")

// Matrix is a small dense fixed-point matrix with compile-time storage.
// Operations on incompatible dimensions return a neutral result rather
// than an error: Mul yields a zero-dimension matrix, while Add and Sub
// work over the overlapping dimensions.
type Matrix struct {
	Rows, Cols uint8
	Data       [MaxMatrixSize][MaxMatrixSize]Fixed
}

// NewMatrix returns a zero matrix of the given dimensions, clamped to
// MaxMatrixSize.
func NewMatrix(rows, cols uint8) Matrix {
	var m Matrix
	m.Rows = minDim(rows)
	m.Cols = minDim(cols)
	return m
}

// Identity returns an identity matrix of the given size.
func Identity(size uint8) Matrix {
	m := NewMatrix(size, size)
	for i := uint8(0); i < m.Rows; i++ {
		m.Data[i][i] = One
	}
	return m
}

func minDim(d uint8) uint8 {
	if d > MaxMatrixSize {
		return MaxMatrixSize
	}
	return d
}

// Add returns the element-wise sum over the overlapping dimensions.
func (m Matrix) Add(o Matrix) Matrix {
	r := NewMatrix(minU8(m.Rows, o.Rows), minU8(m.Cols, o.Cols))
	for i := uint8(0); i < r.Rows; i++ {
		for j := uint8(0); j < r.Cols; j++ {
			r.Data[i][j] = m.Data[i][j] + o.Data[i][j]
		}
	}
	return r
}

// Sub returns the element-wise difference over the overlapping dimensions.
func (m Matrix) Sub(o Matrix) Matrix {
	r := NewMatrix(minU8(m.Rows, o.Rows), minU8(m.Cols, o.Cols))
	for i := uint8(0); i < r.Rows; i++ {
		for j := uint8(0); j < r.Cols; j++ {
			r.Data[i][j] = m.Data[i][j] - o.Data[i][j]
		}
	}
	return r
}

// Mul returns the matrix product. Incompatible dimensions return a
// zero-dimension matrix; callers must check Rows/Cols.
func (m Matrix) Mul(o Matrix) Matrix {
	var r Matrix
	if m.Cols != o.Rows {
		return r
	}
	r.Rows = m.Rows
	r.Cols = o.Cols
	for i := uint8(0); i < r.Rows; i++ {
		for j := uint8(0); j < r.Cols; j++ {
			var sum Fixed
			for k := uint8(0); k < m.Cols; k++ {
				sum += m.Data[i][k].Mul(o.Data[k][j])
			}
			r.Data[i][j] = sum
		}
	}
	return r
}

// Scale returns the matrix multiplied by a scalar.
func (m Matrix) Scale(s Fixed) Matrix {
	r := NewMatrix(m.Rows, m.Cols)
	for i := uint8(0); i < m.Rows; i++ {
		for j := uint8(0); j < m.Cols; j++ {
			r.Data[i][j] = m.Data[i][j].Mul(s)
		}
	}
	return r
}

// Transpose returns the transposed matrix.
func (m Matrix) Transpose() Matrix {
	r := NewMatrix(m.Cols, m.Rows)
	for i := uint8(0); i < m.Rows; i++ {
		for j := uint8(0); j < m.Cols; j++ {
			r.Data[j][i] = m.Data[i][j]
		}
	}
	return r
}

// Det2 returns the determinant of a 2x2 matrix, or 0 for other shapes.
func (m Matrix) Det2() Fixed {
	if m.Rows != 2 || m.Cols != 2 {
		return 0
	}
	return m.Data[0][0].Mul(m.Data[1][1]) - m.Data[0][1].Mul(m.Data[1][0])
}

// Det3 returns the determinant of a 3x3 matrix, or 0 for other shapes.
func (m Matrix) Det3() Fixed {
	if m.Rows != 3 || m.Cols != 3 {
		return 0
	}

	a, b, c := m.Data[0][0], m.Data[0][1], m.Data[0][2]
	d, e, f := m.Data[1][0], m.Data[1][1], m.Data[1][2]
	g, h, i := m.Data[2][0], m.Data[2][1], m.Data[2][2]

	t1 := a.Mul(e.Mul(i) - f.Mul(h))
	t2 := b.Mul(d.Mul(i) - f.Mul(g))
	t3 := c.Mul(d.Mul(h) - e.Mul(g))
	return t1 - t2 + t3
}

// Inverse2 returns the inverse of a 2x2 matrix. ok is false for singular
// matrices or other shapes.
func (m Matrix) Inverse2() (inv Matrix, ok bool) {
	if m.Rows != 2 || m.Cols != 2 {
		return inv, false
	}
	det := m.Det2()
	if det == 0 {
		return inv, false
	}

	invDet := One.Div(det)
	inv.Rows, inv.Cols = 2, 2
	inv.Data[0][0] = m.Data[1][1].Mul(invDet)
	inv.Data[0][1] = (-m.Data[0][1]).Mul(invDet)
	inv.Data[1][0] = (-m.Data[1][0]).Mul(invDet)
	inv.Data[1][1] = m.Data[0][0].Mul(invDet)
	return inv, true
}

// Inverse3 is declared for completeness but not implemented; it always
// returns ErrNotImplemented.
func (m Matrix) Inverse3() (Matrix, error) {
	return Matrix{}, ErrNotImplemented
}

func minU8(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}
