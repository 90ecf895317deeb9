package attribution

import (
	"math"
	"slices"

	"github.com/sells-group/evidence-cli/internal/model"
)

// SignificanceThreshold is the overall improvement, in percent, at which a
// result is reported as significant. It is a fixed bound, not a hypothesis
// test.
const SignificanceThreshold = 5.0

// z95 is the two-sided 95% normal quantile.
const z95 = 1.959964

// Result is the computed improvement for a set of sites.
type Result struct {
	SiteImprovements   model.SiteMetrics
	MetricImprovements map[string]float64
	Overall            float64
	Significant        bool
	Interval           model.ConfidenceInterval
}

// Improvement is the percent change from pre to post, positive when the
// value fell. ok is false when pre is zero.
func Improvement(pre, post float64) (float64, bool) {
	if pre == 0 {
		return 0, false
	}
	return (pre - post) / pre * 100, true
}

// Compute compares post metrics against pre metrics site by site. Only the
// core metrics feed the overall score.
func Compute(pre, post model.SiteMetrics) Result {
	res := Result{
		SiteImprovements:   model.SiteMetrics{},
		MetricImprovements: map[string]float64{},
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	var siteCore []float64

	for _, siteID := range sortedKeys(pre) {
		before, after := pre[siteID], post[siteID]
		if len(after) == 0 {
			continue
		}
		imp := map[string]float64{}
		for metric, b := range before {
			a, ok := after[metric]
			if !ok {
				continue
			}
			v, ok := Improvement(b, a)
			if !ok {
				continue
			}
			imp[metric] = v
			sums[metric] += v
			counts[metric]++
		}
		if len(imp) == 0 {
			continue
		}
		res.SiteImprovements[siteID] = imp
		if score, ok := coreMean(imp); ok {
			siteCore = append(siteCore, score)
		}
	}

	for metric, sum := range sums {
		res.MetricImprovements[metric] = sum / float64(counts[metric])
	}
	res.Overall, _ = coreMean(res.MetricImprovements)
	res.Significant = res.Overall >= SignificanceThreshold
	res.Interval = Interval(siteCore, res.Overall)
	return res
}

// coreMean averages the core metrics present in m.
func coreMean(m map[string]float64) (float64, bool) {
	var sum float64
	var n int
	for _, metric := range model.CoreMetrics {
		if v, ok := m[metric]; ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Interval is a 95% normal interval centred on point. Its half-width comes
// from the spread of the per-site samples. With fewer than two samples it
// collapses to point.
func Interval(samples []float64, point float64) model.ConfidenceInterval {
	n := len(samples)
	if n < 2 {
		return model.ConfidenceInterval{Lower: point, Upper: point}
	}
	var mean float64
	for _, s := range samples {
		mean += s
	}
	mean /= float64(n)

	var ss float64
	for _, s := range samples {
		ss += (s - mean) * (s - mean)
	}
	half := z95 * math.Sqrt(ss/float64(n-1)) / math.Sqrt(float64(n))
	return model.ConfidenceInterval{Lower: point - half, Upper: point + half}
}

func sortedKeys(m model.SiteMetrics) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
