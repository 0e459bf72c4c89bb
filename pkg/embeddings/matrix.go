package embeddings

import "fmt"

// Matrix is an immutable row-major stack of equal-length vectors with precomputed row norms.
type Matrix struct {
	rows  int
	dims  int
	data  []float32
	norms []float64
}

// NewMatrix copies vectors into a contiguous matrix and computes each row's L2 norm.
// All vectors must have the same length.
func NewMatrix(vectors [][]float32) (*Matrix, error) {
	m := &Matrix{rows: len(vectors)}
	if m.rows == 0 {
		return m, nil
	}

	m.dims = len(vectors[0])
	m.data = make([]float32, 0, m.rows*m.dims)
	m.norms = make([]float64, m.rows)

	for i, v := range vectors {
		if len(v) != m.dims {
			return nil, fmt.Errorf("%w: row %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), m.dims)
		}

		m.data = append(m.data, v...)
		m.norms[i] = Norm(v)
	}

	return m, nil
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Dims returns the row length (0 for an empty matrix).
func (m *Matrix) Dims() int { return m.dims }

// Row returns row i. The returned slice aliases the matrix and must not be modified.
func (m *Matrix) Row(i int) []float32 {
	return m.data[i*m.dims : (i+1)*m.dims : (i+1)*m.dims]
}

// RowNorm returns the precomputed L2 norm of row i.
func (m *Matrix) RowNorm(i int) float64 { return m.norms[i] }

// CosineScores computes the cosine similarity between query and every row in one pass.
// The query norm is computed once. Rows with zero norm, a zero-norm query, or a query
// whose length differs from the matrix width all score 0.
func (m *Matrix) CosineScores(query []float32) []float64 {
	scores := make([]float64, m.rows)
	if len(query) != m.dims {
		return scores
	}

	qn := Norm(query)
	if qn == 0 {
		return scores
	}

	for i := range m.rows {
		rn := m.norms[i]
		if rn == 0 {
			continue
		}

		scores[i] = Dot(m.Row(i), query) / (rn * qn)
	}

	return scores
}
