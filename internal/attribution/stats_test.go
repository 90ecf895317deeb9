package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/evidence-cli/internal/model"
)

func TestImprovement(t *testing.T) {
	v, ok := Improvement(40, 30)
	assert.True(t, ok)
	assert.InDelta(t, 25.0, v, 1e-9)

	v, ok = Improvement(10, 12)
	assert.True(t, ok)
	assert.InDelta(t, -20.0, v, 1e-9)

	_, ok = Improvement(0, 5)
	assert.False(t, ok)
}

func TestCompute(t *testing.T) {
	pre := model.SiteMetrics{
		"a": {model.MetricDaysToRTW: 40, model.MetricVisitsPerCase: 10, "pain_score": 6},
		"b": {model.MetricDaysToRTW: 20, model.MetricVisitsPerCase: 0},
		"c": {model.MetricDaysToRTW: 30},
	}
	post := model.SiteMetrics{
		"a": {model.MetricDaysToRTW: 30, model.MetricVisitsPerCase: 9, "pain_score": 3},
		"b": {model.MetricDaysToRTW: 18, model.MetricVisitsPerCase: 4},
	}

	res := Compute(pre, post)

	// a: rtw 25, visits 10, pain 50. b: rtw 10, visits skipped. c: no post.
	assert.InDelta(t, 25.0, res.SiteImprovements["a"][model.MetricDaysToRTW], 1e-9)
	assert.NotContains(t, res.SiteImprovements["b"], model.MetricVisitsPerCase)
	assert.NotContains(t, res.SiteImprovements, "c")

	assert.InDelta(t, 17.5, res.MetricImprovements[model.MetricDaysToRTW], 1e-9)
	assert.InDelta(t, 10.0, res.MetricImprovements[model.MetricVisitsPerCase], 1e-9)
	assert.InDelta(t, 50.0, res.MetricImprovements["pain_score"], 1e-9)

	// Secondary metrics stay out of the overall score.
	assert.InDelta(t, 13.75, res.Overall, 1e-9)
	assert.True(t, res.Significant)

	// Site core scores are 17.5 and 10.
	assert.Less(t, res.Interval.Lower, 13.75)
	assert.Greater(t, res.Interval.Upper, 13.75)
	assert.InDelta(t, 13.75, (res.Interval.Lower+res.Interval.Upper)/2, 1e-9)
}

func TestCompute_NoCoreMetrics(t *testing.T) {
	res := Compute(
		model.SiteMetrics{"a": {"pain_score": 6}},
		model.SiteMetrics{"a": {"pain_score": 3}},
	)
	assert.Equal(t, 0.0, res.Overall)
	assert.False(t, res.Significant)
	assert.Equal(t, model.ConfidenceInterval{}, res.Interval)
}

func TestCompute_SignificanceBoundary(t *testing.T) {
	res := Compute(
		model.SiteMetrics{"a": {model.MetricDaysToRTW: 100}},
		model.SiteMetrics{"a": {model.MetricDaysToRTW: 95}},
	)
	assert.InDelta(t, 5.0, res.Overall, 1e-9)
	assert.True(t, res.Significant)

	res = Compute(
		model.SiteMetrics{"a": {model.MetricDaysToRTW: 100}},
		model.SiteMetrics{"a": {model.MetricDaysToRTW: 96}},
	)
	assert.False(t, res.Significant)
}

func TestInterval(t *testing.T) {
	assert.Equal(t, model.ConfidenceInterval{Lower: 7, Upper: 7}, Interval(nil, 7))
	assert.Equal(t, model.ConfidenceInterval{Lower: 7, Upper: 7}, Interval([]float64{3}, 7))

	ci := Interval([]float64{10, 20}, 15)
	// sd = 7.0711, se = 5, half = 9.8
	assert.InDelta(t, 15-9.79982, ci.Lower, 1e-4)
	assert.InDelta(t, 15+9.79982, ci.Upper, 1e-4)

	ci = Interval([]float64{10, 20}, 18)
	assert.InDelta(t, 18-9.79982, ci.Lower, 1e-4)
	assert.InDelta(t, 18+9.79982, ci.Upper, 1e-4)
}

func TestCompute_IntervalContainsOverall(t *testing.T) {
	pre := model.SiteMetrics{
		"a": {model.MetricDaysToRTW: 100},
		"b": {model.MetricDaysToRTW: 100, model.MetricVisitsPerCase: 10},
	}
	post := model.SiteMetrics{
		"a": {model.MetricDaysToRTW: 80},
		"b": {model.MetricDaysToRTW: 90, model.MetricVisitsPerCase: 6},
	}

	res := Compute(pre, post)

	// Metric means are rtw 15 and visits 40; site core scores are 20 and 25.
	assert.InDelta(t, 27.5, res.Overall, 1e-9)
	assert.LessOrEqual(t, res.Interval.Lower, res.Overall)
	assert.GreaterOrEqual(t, res.Interval.Upper, res.Overall)
	assert.InDelta(t, 27.5, (res.Interval.Lower+res.Interval.Upper)/2, 1e-9)
}
