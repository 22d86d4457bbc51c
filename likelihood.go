// Copyright (C) The DECENT Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package decent

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// quadBounds returns the integration support for the latent
// pre-dropout count of one cell, from the 0.05 and 99.95 percentiles
// of its zero-inflated negative binomial, padded by half a count and
// floored at 0.5 / 2.5.
func quadBounds(pi0, mu, size float64) (lo, hi float64) {
	lo = zinbQuantile(0.0005, pi0, mu, size) - 0.5
	if lo < 0.5 {
		lo = 0.5
	}
	hi = zinbQuantile(0.9995, pi0, mu, size) + 0.5
	if hi < 2.5 {
		hi = 2.5
	}
	return lo, hi
}

// negLogLik evaluates the negative log-likelihood of one gene's
// observed counts under the dropout-adjusted zero-inflated negative
// binomial model.
//
// Parameter layout: par[0] is logit(pi0), par[1:len(par)-1] are
// log-mean coefficients for the design columns, par[len(par)-1] is the
// negative log of the NB size. The per-cell dropout dispersion rho and
// the dropout-logit coefficients in cells come from the caller; they
// are not estimated here.
//
// Called once per optimizer iteration; no side effects, safe for
// concurrent use from multiple genes' fits.
func negLogLik(par []float64, obs []float64, design *mat.Dense, cells cellData, rho []float64, rule quadRule) float64 {
	ncell, ncoef := design.Dims()
	pi0 := sigmoid(par[0])
	size := math.Exp(-par[len(par)-1])
	coef := par[1 : 1+ncoef]

	node := make([]float64, len(rule.x))
	weight := make([]float64, len(rule.x))

	nll := 0.0
	for c := 0; c < ncell; c++ {
		mu := math.Exp(floats.Dot(design.RawRowView(c), coef)) * cells.sf[c]

		// Integrate out the latent non-zero count; the latent-zero
		// mass is handled in closed form below.
		lo, hi := quadBounds(pi0, mu, size)
		rule.mapTo(lo, hi, node, weight)
		out := 0.0
		for k, y := range node {
			p := sigmoid(cells.doIntercept[c] + cells.doSlope[c]*math.Log(y))
			out += math.Exp(nbinomLogPMF(y, mu, size)+betabinomLogPMF(obs[c], y, p, rho[c])) * weight[k]
		}
		pz := (1 - pi0) * out
		if obs[c] == 0 {
			pz += pi0 + (1-pi0)*math.Exp(nbinomLogPMF(0, mu, size))
		}
		if math.IsNaN(pz) || pz < math.SmallestNonzeroFloat64 {
			// one pathological cell must not produce -log(0)
			pz = math.SmallestNonzeroFloat64
		}
		nll -= math.Log(pz)
	}
	return nll
}
