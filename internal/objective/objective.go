// Package objective folds a trial's named metric series into the single
// primary metric value the scheduler tracks, using a JavaScript
// expression evaluated with goja.
package objective

import (
	"fmt"
	"math"
	"time"

	"github.com/dop251/goja"
)

// evalBudget bounds one expression evaluation. A runaway expression is
// interrupted rather than stalling the scheduler's control goroutine.
const evalBudget = 100 * time.Millisecond

// Evaluator computes the primary metric value from a metric report.
//
// With an expression (e.g. "metrics.accuracy - 0.05 * metrics.latency")
// the named series reported by the trial are exposed as the `metrics`
// object. Without one, the declared primary metric is read directly.
type Evaluator struct {
	metric string
	expr   string
	prog   *goja.Program
}

// New compiles the optional objective expression. metric is the primary
// metric name used when expr is empty.
func New(metric, expr string) (*Evaluator, error) {
	e := &Evaluator{metric: metric, expr: expr}
	if expr != "" {
		prog, err := goja.Compile("objective", "("+expr+")", true)
		if err != nil {
			return nil, fmt.Errorf("compile objective expression: %w", err)
		}
		e.prog = prog
	}
	return e, nil
}

// Eval computes the primary value for one report. The boolean is false
// when the report does not carry enough data to produce a value yet
// (missing primary metric, non-numeric result); that is not an error.
func (e *Evaluator) Eval(metrics map[string]float64) (float64, bool, error) {
	if e.prog == nil {
		v, ok := metrics[e.metric]
		return v, ok, nil
	}

	// A fresh sandboxed runtime per evaluation: expressions get the
	// metrics object and nothing else.
	vm := goja.New()
	if err := vm.Set("metrics", metrics); err != nil {
		return 0, false, fmt.Errorf("set metrics: %w", err)
	}

	timer := time.AfterFunc(evalBudget, func() {
		vm.Interrupt("objective evaluation exceeded time budget")
	})
	defer timer.Stop()

	val, err := vm.RunProgram(e.prog)
	if err != nil {
		return 0, false, fmt.Errorf("evaluate objective: %w", err)
	}

	f := val.ToFloat()
	if math.IsNaN(f) {
		return 0, false, nil
	}
	return f, true, nil
}
