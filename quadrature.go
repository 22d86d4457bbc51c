// Copyright (C) The DECENT Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package decent

import "gonum.org/v1/gonum/integrate/quad"

// quadOrder is the number of Gauss-Legendre nodes used to integrate
// out the latent pre-dropout count. Not adapted per gene.
const quadOrder = 16

// quadRule holds Gauss-Legendre nodes and weights on [-1,1]. It is
// built once per run and shared read-only by all workers.
type quadRule struct {
	x, w []float64
}

func gaussLegendre(order int) quadRule {
	rule := quadRule{x: make([]float64, order), w: make([]float64, order)}
	quad.Legendre{}.FixedLocations(rule.x, rule.w, -1, 1)
	return rule
}

// mapTo rescales the rule onto [lo,hi], writing the shifted nodes and
// scaled weights into the caller's buffers.
func (r quadRule) mapTo(lo, hi float64, node, weight []float64) {
	c := (hi + lo) / 2
	h := (hi - lo) / 2
	for i, x := range r.x {
		node[i] = c + h*x
		weight[i] = h * r.w[i]
	}
}
