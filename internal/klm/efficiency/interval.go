package efficiency

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// OneSigma is the central coverage of a one standard deviation interval.
const OneSigma = 0.682689492137

// ClopperPearson returns the exact binomial confidence interval for
// k successes in n trials at the given coverage. With no trials the
// interval is [0, 0].
func ClopperPearson(k, n int, coverage float64) (low, high float64) {
	if n <= 0 {
		return 0, 0
	}
	alpha := (1 - coverage) / 2
	low, high = 0, 1
	if k > 0 {
		low = distuv.Beta{Alpha: float64(k), Beta: float64(n - k + 1)}.Quantile(alpha)
	}
	if k < n {
		high = distuv.Beta{Alpha: float64(k + 1), Beta: float64(n - k)}.Quantile(1 - alpha)
	}
	return low, high
}
