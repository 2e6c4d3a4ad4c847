package training

import (
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/i474232898/aqi-service/internal/regression"
)

// CapOutliers clips every feature column at its q-quantile, in place.
// Quantiles use linear interpolation between order statistics.
func CapOutliers(ds *Dataset, q float64) []float64 {
	caps := make([]float64, len(ds.Features))
	col := make([]float64, ds.Len())
	for j := range ds.Features {
		for i, x := range ds.X {
			col[i] = x[j]
		}
		slices.Sort(col)
		caps[j] = stat.Quantile(q, stat.LinInterp, col, nil)

		for _, x := range ds.X {
			if x[j] > caps[j] {
				x[j] = caps[j]
			}
		}
	}
	return caps
}

// Split shuffles row indices and returns (train, test) with testFrac of the
// rows in test.
func Split(ds *Dataset, testFrac float64, rng *rand.Rand) (train, test *Dataset) {
	idx := rng.Perm(ds.Len())
	nTest := int(float64(ds.Len())*testFrac + 0.5)
	if nTest < 1 && ds.Len() > 1 {
		nTest = 1
	}
	return ds.subset(idx[nTest:]), ds.subset(idx[:nTest])
}

// FitScaler computes the per-feature population mean and standard deviation.
func FitScaler(X [][]float64) *regression.Scaler {
	if len(X) == 0 {
		return &regression.Scaler{}
	}
	d := len(X[0])
	s := &regression.Scaler{Mean: make([]float64, d), Scale: make([]float64, d)}
	col := make([]float64, len(X))
	for j := 0; j < d; j++ {
		for i, x := range X {
			col[i] = x[j]
		}
		s.Mean[j], s.Scale[j] = stat.PopMeanStdDev(col, nil)
		if s.Scale[j] == 0 {
			s.Scale[j] = 1
		}
	}
	return s
}

func transformAll(s *regression.Scaler, X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, x := range X {
		t, err := s.Transform(x)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}
