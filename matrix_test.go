// Copyright (C) The DECENT Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package decent

import (
	"io/ioutil"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
	"gopkg.in/check.v1"
)

type matrixSuite struct{}

var _ = check.Suite(&matrixSuite{})

func (s *matrixSuite) TestReadCountMatrix(c *check.C) {
	in := "gene\tc1\tc2\tc3\n" +
		"g1\t0\t5\t2\n" +
		"g2\t1\t0\t7\n"
	cm, err := ReadCountMatrix(strings.NewReader(in))
	c.Assert(err, check.IsNil)
	c.Check(cm.Genes, check.DeepEquals, []string{"g1", "g2"})
	c.Check(cm.Cells, check.DeepEquals, []string{"c1", "c2", "c3"})
	c.Check(cm.Counts.At(0, 1), check.Equals, 5.0)
	c.Check(cm.Counts.At(1, 2), check.Equals, 7.0)
}

func (s *matrixSuite) TestReadCountMatrixErrors(c *check.C) {
	for _, in := range []string{
		"",
		"gene\n",
		"gene\tc1\tc2\ng1\t1\n",
		"gene\tc1\ng1\t-3\n",
		"gene\tc1\ng1\t1.5\n",
		"gene\tc1\ng1\tx\n",
		"gene\tc1\tc2\n",
	} {
		_, err := ReadCountMatrix(strings.NewReader(in))
		c.Check(err, check.NotNil, check.Commentf("input %q", in))
	}
}

func (s *matrixSuite) TestReadCellInfo(c *check.C) {
	in := "cell\ttype\tbatch\n" +
		"c1\tA\t0.1\n" +
		"c2\tB\t0.2\n" +
		"c3\tA\t0.3\n" +
		"c4\tC\t0.4\n"
	x, w, err := ReadCellInfo(strings.NewReader(in))
	c.Assert(err, check.IsNil)
	r, cols := x.Dims()
	c.Check(r, check.Equals, 4)
	c.Check(cols, check.Equals, 3)
	// first column is the intercept; reference level (A) has no
	// indicator of its own
	c.Check(x.RawRowView(0), check.DeepEquals, []float64{1, 0, 0})
	c.Check(x.RawRowView(1), check.DeepEquals, []float64{1, 1, 0})
	c.Check(x.RawRowView(2), check.DeepEquals, []float64{1, 0, 0})
	c.Check(x.RawRowView(3), check.DeepEquals, []float64{1, 0, 1})
	c.Assert(w, check.NotNil)
	c.Check(w.At(2, 0), check.Equals, 0.3)
}

func (s *matrixSuite) TestReadCellInfoNoCovariates(c *check.C) {
	in := "cell\ttype\nc1\tA\nc2\tB\n"
	x, w, err := ReadCellInfo(strings.NewReader(in))
	c.Assert(err, check.IsNil)
	c.Check(w, check.IsNil)
	_, cols := x.Dims()
	c.Check(cols, check.Equals, 2)
}

func (s *matrixSuite) TestReadFittedModel(c *check.C) {
	in := `{"sizeFactors":[1,0.8],"captureEff":[0.3,0.2],
		"baselineMean":[5,9],"baselinePi0":[0.1,0.2],"tau":[-4,0.1]}`
	m, err := ReadFittedModel(strings.NewReader(in))
	c.Assert(err, check.IsNil)
	c.Check(m.Link(), check.Equals, DispersionLink{Tau0: -4, Tau1: 0.1})
	cd := m.cellData()
	c.Check(cd.sf, check.DeepEquals, []float64{1, 0.8})
	c.Check(cd.doIntercept[0], check.Equals, logit(0.3))
	c.Check(cd.doSlope, check.DeepEquals, []float64{0, 0})

	for _, bad := range []string{
		`{"sizeFactors":[1,0],"captureEff":[0.3,0.2],"baselineMean":[5],"baselinePi0":[0.1]}`,
		`{"sizeFactors":[1],"captureEff":[0.3,0.2],"baselineMean":[5],"baselinePi0":[0.1]}`,
		`{"sizeFactors":[1],"captureEff":[1.5],"baselineMean":[5],"baselinePi0":[0.1]}`,
		`{"sizeFactors":[1],"captureEff":[0.3],"baselineMean":[5,6],"baselinePi0":[0.1]}`,
		`not json`,
	} {
		_, err := ReadFittedModel(strings.NewReader(bad))
		c.Check(err, check.NotNil, check.Commentf("input %q", bad))
	}
}

func (s *matrixSuite) TestOpenGzip(c *check.C) {
	dir := c.MkDir()
	fnm := dir + "/counts.tsv.gz"
	f, err := os.Create(fnm)
	c.Assert(err, check.IsNil)
	gzw := pgzip.NewWriter(f)
	_, err = gzw.Write([]byte("gene\tc1\ng1\t4\n"))
	c.Assert(err, check.IsNil)
	c.Assert(gzw.Close(), check.IsNil)
	c.Assert(f.Close(), check.IsNil)

	rdr, err := open(fnm, nil)
	c.Assert(err, check.IsNil)
	defer rdr.Close()
	buf, err := ioutil.ReadAll(rdr)
	c.Assert(err, check.IsNil)
	c.Check(string(buf), check.Equals, "gene\tc1\ng1\t4\n")
}
