package runconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRequiresTargetFile(t *testing.T) {
	c := DefaultConfig()
	c.Metrics = []MetricConfig{{Name: "acc"}}
	err := c.Validate()
	assert.ErrorContains(t, err, "target_file")
}

func TestValidateRejectsUnknownScope(t *testing.T) {
	c := DefaultConfig()
	c.TargetFile = "solver.py"
	c.Metrics = []MetricConfig{{Name: "acc"}}
	c.Scope = "nonsense"
	assert.Error(t, c.Validate())
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	c := DefaultConfig()
	c.TargetFile = "solver.py"
	c.TaskDescription = "minimize runtime"
	c.Metrics = []MetricConfig{{Name: "acc"}, {Name: "time", Minimize: true}}
	assert.NoError(t, c.Validate())
}

func TestValidateRejectsUnknownEvaluator(t *testing.T) {
	c := DefaultConfig()
	c.TargetFile = "solver.py"
	c.Metrics = []MetricConfig{{Name: "acc"}}
	c.Evaluators = []EvaluatorConfig{{Name: "bogus"}}
	assert.Error(t, c.Validate())
}

func TestMinimizeMapAndMetricNames(t *testing.T) {
	c := DefaultConfig()
	c.Metrics = []MetricConfig{{Name: "acc"}, {Name: "time", Minimize: true}}
	assert.Equal(t, []string{"acc", "time"}, c.MetricNames())
	assert.Equal(t, map[string]bool{"acc": false, "time": true}, c.MinimizeMap())
}
