// Copyright (C) The DECENT Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package decent

import (
	"math"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// drawSample draws one index from an unnormalized weight vector.
// Missing or zero weights are treated as a negligible positive floor,
// so a degenerate all-zero vector yields a uniform draw instead of a
// division by zero.
func drawSample(weights []float64, rng *rand.Rand) int {
	const floor = 1e-300
	total := 0.0
	for _, w := range weights {
		if math.IsNaN(w) || w < floor {
			w = floor
		}
		total += w
	}
	u := rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		if math.IsNaN(w) || w < floor {
			w = floor
		}
		acc += w
		if u < acc {
			return i
		}
	}
	return len(weights) - 1
}

// imputeGene draws one latent pre-dropout count per cell from its
// posterior under a fitted model for one gene: observed counts z,
// per-cell means mu (size factors already applied), zero-inflation
// pi0, NB size, dropout coefficients in cells and per-cell dropout
// dispersion rho.
func imputeGene(z, mu []float64, pi0, size float64, cells cellData, rho []float64, rng *rand.Rand) []int {
	maxMu := floats.Max(mu)
	top := math.Max(2, nbinomQuantile(0.999, maxMu, size))
	weights := make([]float64, int(top)+1)
	imputed := make([]int, len(z))
	for c := range z {
		for y := range weights {
			p := sigmoid(cells.doIntercept[c])
			if y > 0 {
				p = sigmoid(cells.doIntercept[c] + cells.doSlope[c]*math.Log(float64(y)))
			}
			weights[y] = math.Exp(betabinomLogPMF(z[c], float64(y), p, rho[c]) + zinbLogPMF(float64(y), pi0, mu[c], size))
		}
		imputed[c] = drawSample(weights, rng)
	}
	return imputed
}

// ImputeCounts draws a single imputed latent count matrix from the
// fitted alternative models in lrt. Genes whose fits degraded to the
// all-zero row keep their observed counts. The draw is deterministic
// for a given seed regardless of gene order.
func ImputeCounts(counts *CountMatrix, model *FittedModel, lrt *LRTOutput, designX, designW *mat.Dense, link DispersionLink, seed uint64) *mat.Dense {
	ngene, ncell := counts.Counts.Dims()
	design := bindColumns(designX, designW)
	_, ncoef := design.Dims()
	cells := model.cellData()

	out := mat.NewDense(ngene, ncell, nil)
	log.Infof("impute: start, %d genes × %d cells", ngene, ncell)
	for i := 0; i < ngene; i++ {
		par := lrt.ParAlt.RawRowView(i)
		obs := counts.Counts.RawRowView(i)
		if allZero(par) {
			out.SetRow(i, obs)
			continue
		}
		pi0 := sigmoid(par[0])
		size := math.Exp(-par[len(par)-1])
		coef := par[1 : 1+ncoef]
		mu := make([]float64, ncell)
		rho := make([]float64, ncell)
		for c := 0; c < ncell; c++ {
			mu[c] = math.Exp(floats.Dot(design.RawRowView(c), coef)) * cells.sf[c]
			rho[c] = link.rho(model.SizeFactors[c], model.BaselineMean[i], model.BaselinePi0[i])
		}
		rng := rand.New(rand.NewSource(seed + uint64(i)))
		for c, y := range imputeGene(obs, mu, pi0, size, cells, rho, rng) {
			out.Set(i, c, float64(y))
		}
	}
	log.Infof("impute: done, %d genes", ngene)
	return out
}

func allZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
