// Copyright (C) The DECENT Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package decent

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Log-space distribution primitives shared by the likelihood evaluator
// and the imputation sampler. gonum's distuv has neither a negative
// binomial nor a beta-binomial, and the quadrature nodes are not
// integers, so these take the count argument as a float64.

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

func lbeta(a, b float64) float64 {
	return lgamma(a) + lgamma(b) - lgamma(a+b)
}

func lchoose(n, k float64) float64 {
	return lgamma(n+1) - lgamma(k+1) - lgamma(n-k+1)
}

// nbinomLogPMF is the negative binomial log-pmf with mean mu and size
// parameter size, extended to non-integer y.
func nbinomLogPMF(y, mu, size float64) float64 {
	if y < 0 {
		return math.Inf(-1)
	}
	ll := lgamma(y+size) - lgamma(size) - lgamma(y+1) + size*math.Log(size/(size+mu))
	if y > 0 {
		ll += y * math.Log(mu/(size+mu))
	}
	return ll
}

// betabinomLogPMF is the beta-binomial log-pmf of z successes in n
// trials with mean success probability p and dispersion rho, extended
// to non-integer n. Underflowed rho degenerates to a plain binomial.
func betabinomLogPMF(z, n, p, rho float64) float64 {
	if z < 0 || n < z {
		return math.Inf(-1)
	}
	if p < 1e-12 {
		p = 1e-12
	} else if p > 1-1e-12 {
		p = 1 - 1e-12
	}
	ll := lchoose(n, z)
	if rho < 1e-12 {
		if z > 0 {
			ll += z * math.Log(p)
		}
		if n > z {
			ll += (n - z) * math.Log1p(-p)
		}
		return ll
	}
	a := p * (1 - rho) / rho
	b := (1 - p) * (1 - rho) / rho
	return ll + lbeta(z+a, n-z+b) - lbeta(a, b)
}

// zinbLogPMF is the zero-inflated negative binomial log-pmf at integer y.
func zinbLogPMF(y, pi0, mu, size float64) float64 {
	if y == 0 {
		return math.Log(pi0 + (1-pi0)*math.Exp(nbinomLogPMF(0, mu, size)))
	}
	return math.Log1p(-pi0) + nbinomLogPMF(y, mu, size)
}

// nbinomQuantile returns the smallest integer k whose negative
// binomial CDF reaches q, by direct summation of the pmf. Large means
// switch to a normal approximation: the result only delimits
// integration support, and the optimizer must not hang when it
// wanders into a huge-mean region.
func nbinomQuantile(q, mu, size float64) float64 {
	sd := math.Sqrt(mu + mu*mu/size)
	if !(mu <= 100) {
		k := math.Ceil(distuv.Normal{Mu: mu, Sigma: sd}.Quantile(q))
		if !(k > 0) {
			k = 0
		}
		return k
	}
	kmax := math.Ceil(mu + 30*sd + 100)
	acc := 0.0
	for k := 0.0; k <= kmax; k++ {
		acc += math.Exp(nbinomLogPMF(k, mu, size))
		if acc >= q {
			return k
		}
	}
	return kmax
}

// zinbQuantile is the quantile of the zero-inflated negative binomial.
func zinbQuantile(q, pi0, mu, size float64) float64 {
	if q <= pi0 {
		return 0
	}
	return nbinomQuantile((q-pi0)/(1-pi0), mu, size)
}
