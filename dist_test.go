// Copyright (C) The DECENT Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package decent

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/check.v1"
)

type distSuite struct{}

var _ = check.Suite(&distSuite{})

func (s *distSuite) TestNbinomNormalizes(c *check.C) {
	sum := 0.0
	for k := 0.0; k < 500; k++ {
		sum += math.Exp(nbinomLogPMF(k, 5, 2))
	}
	c.Check(math.Abs(sum-1) < 1e-9, check.Equals, true)
}

func (s *distSuite) TestNbinomPoissonLimit(c *check.C) {
	// size -> inf degenerates to Poisson
	pois := distuv.Poisson{Lambda: 4}
	for k := 0.0; k < 20; k++ {
		nb := math.Exp(nbinomLogPMF(k, 4, 1e7))
		c.Check(math.Abs(nb-pois.Prob(k)) < 1e-5, check.Equals, true)
	}
}

func (s *distSuite) TestBetabinomBinomialLimit(c *check.C) {
	// rho below the underflow cutoff falls back to a plain binomial
	for z := 0.0; z <= 10; z++ {
		bb := math.Exp(betabinomLogPMF(z, 10, 0.3, 0))
		ref := math.Exp(lchoose(10, z)) * math.Pow(0.3, z) * math.Pow(0.7, 10-z)
		c.Check(math.Abs(bb-ref) < 1e-12, check.Equals, true)
	}
}

func (s *distSuite) TestBetabinomNormalizes(c *check.C) {
	sum := 0.0
	for z := 0.0; z <= 20; z++ {
		sum += math.Exp(betabinomLogPMF(z, 20, 0.4, 0.2))
	}
	c.Check(math.Abs(sum-1) < 1e-9, check.Equals, true)
}

func (s *distSuite) TestBetabinomSupport(c *check.C) {
	c.Check(betabinomLogPMF(5, 3.2, 0.4, 0.2), check.Equals, math.Inf(-1))
	c.Check(betabinomLogPMF(-1, 3, 0.4, 0.2), check.Equals, math.Inf(-1))
}

func (s *distSuite) TestQuantiles(c *check.C) {
	c.Check(nbinomQuantile(0.5, 10, 2) > 0, check.Equals, true)
	c.Check(nbinomQuantile(0.999, 10, 2) > nbinomQuantile(0.5, 10, 2), check.Equals, true)
	// mass below the zero-inflation proportion sits at zero
	c.Check(zinbQuantile(0.2, 0.3, 10, 2), check.Equals, 0.0)
	c.Check(zinbQuantile(0.9995, 0.3, 10, 2) >= nbinomQuantile(0.999, 10, 2)-1, check.Equals, true)
}

func (s *distSuite) TestZinbLogPMF(c *check.C) {
	p0 := math.Exp(zinbLogPMF(0, 0.3, 5, 2))
	c.Check(p0 > 0.3, check.Equals, true)
	sum := 0.0
	for k := 0.0; k < 500; k++ {
		sum += math.Exp(zinbLogPMF(k, 0.3, 5, 2))
	}
	c.Check(math.Abs(sum-1) < 1e-9, check.Equals, true)
}

func (s *distSuite) TestSigmoidLogit(c *check.C) {
	for _, p := range []float64{0.01, 0.3, 0.5, 0.99} {
		c.Check(math.Abs(sigmoid(logit(p))-p) < 1e-12, check.Equals, true)
	}
	c.Check(sigmoid(1000), check.Equals, 1.0)
	c.Check(sigmoid(-1000), check.Equals, 0.0)
}
