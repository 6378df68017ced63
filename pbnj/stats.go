package pbnj

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Statistics summarizes the samples of a volume.
type Statistics struct {
	Min, Max     float64
	Mean, StdDev float64
	Median       float64
}

// Statistics computes summary statistics over every sample of v.
func (v *Volume) Statistics() (Statistics, error) {
	if v.data == nil {
		return Statistics{}, errors.New("pbnj: statistics of a released volume")
	}
	d := v.data.Dims()
	x := make([]float64, 0, d[0]*d[1]*d[2])
	for k := 0; k < d[2]; k++ {
		for j := 0; j < d[1]; j++ {
			for i := 0; i < d[0]; i++ {
				x = append(x, float64(v.data.At(i, j, k)))
			}
		}
	}
	sort.Float64s(x)

	var s Statistics
	s.Min, s.Max = x[0], x[len(x)-1]
	s.Mean, s.StdDev = stat.MeanStdDev(x, nil)
	if len(x) == 1 {
		s.StdDev = 0
	}
	s.Median = stat.Quantile(0.5, stat.Empirical, x, nil)
	return s, nil
}
