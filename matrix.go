// Copyright (C) The DECENT Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package decent

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
	"gonum.org/v1/gonum/mat"
)

// CountMatrix is an observed genes × cells matrix of non-negative
// counts. Read-only for the duration of a run.
type CountMatrix struct {
	Genes  []string
	Cells  []string
	Counts *mat.Dense
}

// FittedModel is the bundle of upstream estimates consumed by the
// likelihood-ratio test: per-cell size factors and capture
// efficiencies, per-gene baseline mean and zero-inflation proportion,
// and the dispersion-link coefficients (tau0, tau1).
type FittedModel struct {
	SizeFactors  []float64  `json:"sizeFactors"`
	CaptureEff   []float64  `json:"captureEff"`
	BaselineMean []float64  `json:"baselineMean"`
	BaselinePi0  []float64  `json:"baselinePi0"`
	Tau          [2]float64 `json:"tau"`
}

// DispersionLink maps a gene's scaled baseline mean to the per-cell
// beta-binomial dropout dispersion through a logistic link.
type DispersionLink struct {
	Tau0, Tau1 float64
}

func (d DispersionLink) rho(sf, mu0, pi0 float64) float64 {
	return sigmoid(d.Tau0 + d.Tau1*math.Log(sf*mu0*(1-pi0)))
}

// Link returns the dispersion link packaged in the bundle.
func (m *FittedModel) Link() DispersionLink {
	return DispersionLink{Tau0: m.Tau[0], Tau1: m.Tau[1]}
}

// cellData carries the per-cell constants needed by every likelihood
// evaluation: size factor and dropout-logit coefficients. The slope is
// fixed at zero here; only the intercept, logit(CE), is informative.
type cellData struct {
	sf          []float64
	doIntercept []float64
	doSlope     []float64
}

func (m *FittedModel) cellData() cellData {
	n := len(m.SizeFactors)
	cd := cellData{
		sf:          m.SizeFactors,
		doIntercept: make([]float64, n),
		doSlope:     make([]float64, n),
	}
	for i, ce := range m.CaptureEff {
		cd.doIntercept[i] = logit(ce)
	}
	return cd
}

// ReadCountMatrix reads a TSV count matrix: a header line of cell
// names, then one line per gene (gene name followed by counts).
func ReadCountMatrix(rdr io.Reader) (*CountMatrix, error) {
	scanner := bufio.NewScanner(rdr)
	scanner.Buffer(make([]byte, 1<<20), 1<<26)
	if !scanner.Scan() {
		return nil, fmt.Errorf("read count matrix: empty input")
	}
	header := strings.Split(strings.TrimRight(scanner.Text(), "\r\n"), "\t")
	if len(header) < 2 {
		return nil, fmt.Errorf("read count matrix: header has no cell columns")
	}
	cm := &CountMatrix{Cells: header[1:]}
	var data []float64
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != len(header) {
			return nil, fmt.Errorf("read count matrix: gene %q has %d columns, expected %d", fields[0], len(fields)-1, len(header)-1)
		}
		cm.Genes = append(cm.Genes, fields[0])
		for _, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("read count matrix: gene %q: %w", fields[0], err)
			}
			if v < 0 || v != math.Floor(v) {
				return nil, fmt.Errorf("read count matrix: gene %q: count %q is not a non-negative integer", fields[0], f)
			}
			data = append(data, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read count matrix: %w", err)
	}
	if len(cm.Genes) == 0 {
		return nil, fmt.Errorf("read count matrix: no gene rows")
	}
	cm.Counts = mat.NewDense(len(cm.Genes), len(cm.Cells), data)
	return cm, nil
}

// ReadFittedModel reads the upstream model bundle as JSON and checks
// the parts this package relies on.
func ReadFittedModel(rdr io.Reader) (*FittedModel, error) {
	var m FittedModel
	if err := json.NewDecoder(rdr).Decode(&m); err != nil {
		return nil, fmt.Errorf("read fitted model: %w", err)
	}
	if len(m.SizeFactors) != len(m.CaptureEff) {
		return nil, fmt.Errorf("read fitted model: %d size factors vs %d capture efficiencies", len(m.SizeFactors), len(m.CaptureEff))
	}
	if len(m.BaselineMean) != len(m.BaselinePi0) {
		return nil, fmt.Errorf("read fitted model: %d baseline means vs %d zero-inflation proportions", len(m.BaselineMean), len(m.BaselinePi0))
	}
	for i, sf := range m.SizeFactors {
		if !(sf > 0) {
			return nil, fmt.Errorf("read fitted model: size factor %d is %v, must be > 0", i, sf)
		}
	}
	for i, ce := range m.CaptureEff {
		if !(ce > 0) || ce >= 1 {
			return nil, fmt.Errorf("read fitted model: capture efficiency %d is %v, must be in (0,1)", i, ce)
		}
	}
	for i, mu := range m.BaselineMean {
		if !(mu > 0) {
			return nil, fmt.Errorf("read fitted model: baseline mean %d is %v, must be > 0", i, mu)
		}
		if pi0 := m.BaselinePi0[i]; !(pi0 > 0) || pi0 >= 1 {
			return nil, fmt.Errorf("read fitted model: zero-inflation proportion %d is %v, must be in (0,1)", i, pi0)
		}
	}
	return &m, nil
}

// ReadCellInfo reads per-cell annotations: a TSV with header
// "cell<TAB>type[<TAB>covariate...]" and one row per cell, in count
// matrix column order. The cell-type column is dummy-coded into the
// design matrix X (first column all ones; reference level is the first
// label seen); any remaining numeric columns become the adjustment
// covariate matrix W (nil when absent).
func ReadCellInfo(rdr io.Reader) (designX, designW *mat.Dense, err error) {
	scanner := bufio.NewScanner(rdr)
	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("read cell info: empty input")
	}
	header := strings.Split(strings.TrimRight(scanner.Text(), "\r\n"), "\t")
	if len(header) < 2 {
		return nil, nil, fmt.Errorf("read cell info: need at least cell and type columns")
	}
	ncov := len(header) - 2
	var labels []string
	levelOf := map[string]int{}
	var level []int
	var covs []float64
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != len(header) {
			return nil, nil, fmt.Errorf("read cell info: cell %q has %d columns, expected %d", fields[0], len(fields), len(header))
		}
		lv, ok := levelOf[fields[1]]
		if !ok {
			lv = len(labels)
			levelOf[fields[1]] = lv
			labels = append(labels, fields[1])
		}
		level = append(level, lv)
		for _, f := range fields[2:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("read cell info: cell %q: %w", fields[0], err)
			}
			covs = append(covs, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read cell info: %w", err)
	}
	ncell := len(level)
	if ncell == 0 {
		return nil, nil, fmt.Errorf("read cell info: no cell rows")
	}
	designX = mat.NewDense(ncell, len(labels), nil)
	for i, lv := range level {
		designX.Set(i, 0, 1)
		if lv > 0 {
			designX.Set(i, lv, 1)
		}
	}
	if ncov > 0 {
		designW = mat.NewDense(ncell, ncov, covs)
	}
	return designX, designW, nil
}

// open returns a reader for filename, decompressing transparently when
// the name ends in .gz; "-" means stdin.
func open(filename string, stdin io.Reader) (io.ReadCloser, error) {
	if filename == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(filename, ".gz") {
		return f, nil
	}
	gzr, err := pgzip.NewReader(bufio.NewReaderSize(f, 4*1024*1024))
	if err != nil {
		f.Close()
		return nil, err
	}
	return gzipReadCloser{gzr, f}, nil
}

type gzipReadCloser struct {
	*pgzip.Reader
	f *os.File
}

func (g gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if err2 := g.f.Close(); err == nil {
		err = err2
	}
	return err
}
