// Copyright (C) The DECENT Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package decent

import (
	"fmt"
	"runtime"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// The alternative model has exactly one more free parameter than the
// null by construction of the designs, so the reference distribution
// is chi-squared with one degree of freedom.
var chisq1 = distuv.ChiSquared{K: 1}

// LRTOutput is the per-gene result of a likelihood-ratio test run.
// Rows of ParAlt and ParNull are parameter vectors in the layout
// [logit(pi0), log-mean coefficients, log-dispersion], aligned with
// Genes.
type LRTOutput struct {
	Genes   []string
	Stat    []float64
	Pval    []float64
	ParAlt  *mat.Dense
	ParNull *mat.Dense
}

// RunLikelihoodRatioTest fits the null and alternative dropout-aware
// models for every gene in counts and compares them. designX holds
// cell-type indicator columns (first column is the reference level);
// designW, which may be nil, holds additional numeric covariates. With
// parallel set, genes are fitted concurrently; the numeric results are
// identical either way.
func RunLikelihoodRatioTest(counts *CountMatrix, model *FittedModel, designX, designW *mat.Dense, link DispersionLink, parallel bool) (*LRTOutput, error) {
	ngene, ncell := counts.Counts.Dims()
	if err := checkShapes(counts, model, designX, designW); err != nil {
		return nil, err
	}

	designNull := bindColumns(colSlice(designX, 0, 1), designW)
	designAlt := bindColumns(designX, designW)
	_, nNull := designNull.Dims()
	_, nAlt := designAlt.Dims()

	rule := gaussLegendre(quadOrder)
	cells := model.cellData()

	out := &LRTOutput{
		Genes:   counts.Genes,
		Stat:    make([]float64, ngene),
		Pval:    make([]float64, ngene),
		ParAlt:  mat.NewDense(ngene, nAlt+2, nil),
		ParNull: mat.NewDense(ngene, nNull+2, nil),
	}

	log.Infof("lrt: start, %d genes × %d cells (parallel=%v)", ngene, ncell, parallel)
	var done int64
	runGene := func(i int) {
		mu0, pi0 := model.BaselineMean[i], model.BaselinePi0[i]
		rho := make([]float64, ncell)
		for c := range rho {
			rho[c] = link.rho(model.SizeFactors[c], mu0, pi0)
		}
		res := fitGene(counts.Counts.RawRowView(i), cells, rho, mu0, pi0, designNull, designAlt, rule)
		warnGene(counts.Genes[i], res)

		stat := 2 * (res.llAlt - res.llNull)
		if stat < 0 {
			stat = 0
		}
		out.Stat[i] = stat
		out.Pval[i] = chisq1.Survival(stat)
		out.ParNull.SetRow(i, res.parNull)
		out.ParAlt.SetRow(i, res.parAlt)
		log.Debugf("gene %s: done (%d/%d)", counts.Genes[i], atomic.AddInt64(&done, 1), ngene)
	}
	if parallel {
		throttle := throttle{Max: runtime.GOMAXPROCS(0)}
		for i := 0; i < ngene; i++ {
			i := i
			throttle.Acquire()
			go func() {
				defer throttle.Release()
				runGene(i)
			}()
		}
		throttle.Wait()
	} else {
		for i := 0; i < ngene; i++ {
			runGene(i)
		}
	}
	log.Infof("lrt: done, %d genes", ngene)
	return out, nil
}

func warnGene(gene string, res geneFitResult) {
	if !res.okNull {
		log.Warnf("gene %s: no-DE model fit failed: %v", gene, res.errNull)
	} else if !res.convNull {
		log.Warnf("gene %s: no-DE model fit did not converge", gene)
	}
	if !res.okAlt {
		log.Warnf("gene %s: DE model fit failed: %v", gene, res.errAlt)
	} else if !res.convAlt {
		log.Warnf("gene %s: DE model fit did not converge", gene)
	}
}

func checkShapes(counts *CountMatrix, model *FittedModel, designX, designW *mat.Dense) error {
	ngene, ncell := counts.Counts.Dims()
	if len(model.SizeFactors) != ncell {
		return fmt.Errorf("lrt: %d size factors for %d cells", len(model.SizeFactors), ncell)
	}
	if len(model.CaptureEff) != ncell {
		return fmt.Errorf("lrt: %d capture efficiencies for %d cells", len(model.CaptureEff), ncell)
	}
	if len(model.BaselineMean) != ngene {
		return fmt.Errorf("lrt: %d baseline means for %d genes", len(model.BaselineMean), ngene)
	}
	if len(model.BaselinePi0) != ngene {
		return fmt.Errorf("lrt: %d baseline dropout rates for %d genes", len(model.BaselinePi0), ngene)
	}
	if r, c := designX.Dims(); r != ncell || c < 1 {
		return fmt.Errorf("lrt: design X is %d×%d for %d cells", r, c, ncell)
	}
	if designW != nil {
		if r, _ := designW.Dims(); r != ncell {
			return fmt.Errorf("lrt: design W has %d rows for %d cells", r, ncell)
		}
	}
	return nil
}

// colSlice returns columns [from,to) of m as a copy.
func colSlice(m *mat.Dense, from, to int) *mat.Dense {
	r, _ := m.Dims()
	out := mat.NewDense(r, to-from, nil)
	for i := 0; i < r; i++ {
		for j := from; j < to; j++ {
			out.Set(i, j-from, m.At(i, j))
		}
	}
	return out
}

// bindColumns returns [a | b]; b may be nil.
func bindColumns(a, b *mat.Dense) *mat.Dense {
	if b == nil {
		return a
	}
	r, ca := a.Dims()
	_, cb := b.Dims()
	out := mat.NewDense(r, ca+cb, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < ca; j++ {
			out.Set(i, j, a.At(i, j))
		}
		for j := 0; j < cb; j++ {
			out.Set(i, ca+j, b.At(i, j))
		}
	}
	return out
}
