// Copyright (C) The DECENT Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package decent

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// geneFitResult is the outcome of the two nested fits for one gene.
// ok* is false when the optimizer failed outright and the parameters
// are the initial-vector fallback; conv* is false when the optimizer
// completed without reporting convergence.
type geneFitResult struct {
	parNull, parAlt   []float64
	llNull, llAlt     float64
	okNull, okAlt     bool
	convNull, convAlt bool
	errNull, errAlt   error
}

var fitSettings = &optimize.Settings{MajorIterations: 2000}

// minimizeNLL runs a gradient-free minimization of fn from init.
// Panics during objective evaluation are contained and returned as
// errors so one gene cannot abort a batch. The recover must live
// inside the objective itself: optimize.Minimize evaluates it on
// worker goroutines, where a deferred recover on this frame is out of
// scope. The panicking evaluation reports +Inf so the optimizer can
// still terminate.
func minimizeNLL(fn func([]float64) float64, init []float64) (par []float64, ll float64, converged bool, err error) {
	var evalErr atomic.Value
	var evalOnce sync.Once
	safe := func(x []float64) (v float64) {
		defer func() {
			if r := recover(); r != nil {
				evalOnce.Do(func() { evalErr.Store(fmt.Errorf("optimizer panic: %v", r)) })
				v = math.Inf(1)
			}
		}()
		return fn(x)
	}
	defer func() {
		if r := recover(); r != nil {
			par, converged = nil, false
			err = fmt.Errorf("optimizer panic: %v", r)
		}
	}()
	result, err := optimize.Minimize(optimize.Problem{Func: safe}, init, fitSettings, &optimize.NelderMead{})
	if e, _ := evalErr.Load().(error); e != nil {
		return nil, 0, false, e
	}
	if err != nil {
		return nil, 0, false, err
	}
	return result.X, -result.F, result.Status.Err() == nil, nil
}

// clampLow floors each parameter at lo. Guards the alternative model's
// warm start against a degenerate near-(-inf) null fit.
func clampLow(par []float64, lo float64) {
	for i, x := range par {
		if x < lo {
			par[i] = lo
		}
	}
}

// warmStart builds the alternative model's starting point of the given
// width from a null fit: zero-inflation logit and intercept mean carry
// over, the dispersion term carries over, and all intermediate
// cell-type-contrast and adjustment coefficients start at zero.
func warmStart(parNull []float64, width int) []float64 {
	par := make([]float64, width)
	par[0] = parNull[0]
	par[1] = parNull[1]
	par[width-1] = parNull[len(parNull)-1]
	clampLow(par, -100)
	return par
}

// fitGene fits the null (equal means) and alternative (cell-type
// dependent means) models for one gene. mu0 and pi0 are the gene's
// baseline estimates from the upstream bundle; rho is its per-cell
// dropout dispersion.
func fitGene(obs []float64, cells cellData, rho []float64, mu0, pi0 float64, designNull, designAlt *mat.Dense, rule quadRule) geneFitResult {
	_, nNull := designNull.Dims()
	_, nAlt := designAlt.Dims()

	init := make([]float64, nNull+2)
	init[0] = logit(pi0)
	init[1] = math.Log(mu0)
	// adjustment coefficients and log-dispersion start at zero

	nllNull := func(par []float64) float64 { return negLogLik(par, obs, designNull, cells, rho, rule) }
	res := geneFitResult{}
	res.parNull, res.llNull, res.convNull, res.errNull = minimizeNLL(nllNull, init)
	res.okNull = res.errNull == nil
	if !res.okNull {
		res.parNull = append([]float64(nil), init...)
		res.llNull = -nllNull(res.parNull)
	}

	// warm-starting from the fallback vector is the same as starting
	// from the raw initial vector, so a failed null fit needs no
	// separate path here
	start := warmStart(res.parNull, nAlt+2)

	nllAlt := func(par []float64) float64 { return negLogLik(par, obs, designAlt, cells, rho, rule) }
	res.parAlt, res.llAlt, res.convAlt, res.errAlt = minimizeNLL(nllAlt, start)
	res.okAlt = res.errAlt == nil
	if !res.okAlt {
		res.parAlt = append([]float64(nil), start...)
		res.llAlt = -nllAlt(res.parAlt)
	}

	if !res.okNull && !res.okAlt {
		// no usable fit at all: degrade to an all-zero row so the
		// gene reports stat 0 and p-value 1 instead of a gap
		res.parNull = make([]float64, nNull+2)
		res.parAlt = make([]float64, nAlt+2)
		res.llNull, res.llAlt = 0, 0
	}
	return res
}
