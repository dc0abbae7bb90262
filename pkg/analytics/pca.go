package analytics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCAResult holds the projection of every observation onto the leading
// components.
type PCAResult struct {
	// Scores is n×k, one row per observation.
	Scores [][]float64
	// Components is k×d; row i holds the loadings of component i.
	Components             [][]float64
	ExplainedVarianceRatio []float64
}

// Standardize scales every column to zero mean and unit population variance.
// Constant columns become all zeros.
func Standardize(features [][]float64) [][]float64 {
	if len(features) == 0 {
		return nil
	}
	d := len(features[0])
	out := make([][]float64, len(features))
	for i := range out {
		out[i] = make([]float64, d)
	}

	col := make([]float64, len(features))
	for j := 0; j < d; j++ {
		for i, row := range features {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		for i := range features {
			if std == 0 || math.IsNaN(std) {
				out[i][j] = 0
				continue
			}
			out[i][j] = (col[i] - mean) / std
		}
	}
	return out
}

// PCA projects the observations in features (n×d) onto their first
// nComponents principal components.
func PCA(features [][]float64, nComponents int) (*PCAResult, error) {
	n := len(features)
	if n < 2 {
		return nil, fmt.Errorf("%w: pca needs at least 2 observations, got %d", ErrInvalidInput, n)
	}
	d := len(features[0])
	if nComponents < 1 || nComponents > d || nComponents > n {
		return nil, fmt.Errorf("%w: cannot extract %d components from %dx%d data", ErrInvalidInput, nComponents, n, d)
	}

	data := mat.NewDense(n, d, nil)
	for i, row := range features {
		if len(row) != d {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrInvalidInput, i, len(row), d)
		}
		data.SetRow(i, row)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, fmt.Errorf("pca: singular value decomposition failed")
	}

	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	total := 0.0
	for _, v := range vars {
		total += v
	}

	// Center the data the same way PrincipalComponents did.
	centered := mat.NewDense(n, d, nil)
	for j := 0; j < d; j++ {
		col := mat.Col(nil, j, data)
		mean := stat.Mean(col, nil)
		for i := range col {
			centered.Set(i, j, col[i]-mean)
		}
	}

	var scores mat.Dense
	scores.Mul(centered, vecs.Slice(0, d, 0, nComponents))

	res := &PCAResult{
		Scores:                 make([][]float64, n),
		Components:             make([][]float64, nComponents),
		ExplainedVarianceRatio: make([]float64, nComponents),
	}
	for i := 0; i < n; i++ {
		res.Scores[i] = mat.Row(nil, i, &scores)
	}
	for k := 0; k < nComponents; k++ {
		res.Components[k] = mat.Col(nil, k, &vecs)
		if total > 0 {
			res.ExplainedVarianceRatio[k] = vars[k] / total
		}
	}
	return res, nil
}
