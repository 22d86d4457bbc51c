// Copyright (C) The DECENT Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package decent

import (
	"bytes"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"gopkg.in/check.v1"
)

type pipelineSuite struct{}

var _ = check.Suite(&pipelineSuite{})

func (s *pipelineSuite) TestLRTCommand(c *check.C) {
	tmpdir := c.MkDir()
	outfile := tmpdir + "/lrt.tsv"
	npydir := c.MkDir()
	code := (&lrtCmd{}).RunCommand("decent lrt", []string{
		"-i", "testdata/counts.tsv",
		"-model", "testdata/model.json",
		"-cells", "testdata/cells.tsv",
		"-parallel",
		"-o", outfile,
		"-output-npy", npydir,
	}, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Assert(code, check.Equals, 0)

	buf, err := ioutil.ReadFile(outfile)
	c.Assert(err, check.IsNil)
	lines := strings.Split(strings.TrimRight(string(buf), "\n"), "\n")
	c.Assert(len(lines), check.Equals, 7) // header + 6 genes
	header := strings.Split(lines[0], "\t")
	c.Check(header[0], check.Equals, "gene")
	c.Check(header[1], check.Equals, "stat")
	c.Check(header[2], check.Equals, "pval")
	for _, line := range lines[1:] {
		fields := strings.Split(line, "\t")
		c.Assert(len(fields), check.Equals, len(header))
		stat, err := strconv.ParseFloat(fields[1], 64)
		c.Assert(err, check.IsNil)
		pval, err := strconv.ParseFloat(fields[2], 64)
		c.Assert(err, check.IsNil)
		c.Check(stat >= 0, check.Equals, true)
		c.Check(pval >= 0 && pval <= 1, check.Equals, true)
	}

	for _, npy := range []string{"stat.npy", "pval.npy", "par_null.npy", "par_alt.npy"} {
		fi, err := os.Stat(npydir + "/" + npy)
		c.Check(err, check.IsNil)
		if err == nil {
			c.Check(fi.Size() > 0, check.Equals, true)
		}
	}
}

func (s *pipelineSuite) TestLRTCommandMissingFlags(c *check.C) {
	code := (&lrtCmd{}).RunCommand("decent lrt", []string{
		"-i", "testdata/counts.tsv",
	}, bytes.NewReader(nil), &bytes.Buffer{}, &bytes.Buffer{})
	c.Check(code, check.Equals, 2)
}

func (s *pipelineSuite) TestImputeCommand(c *check.C) {
	tmpdir := c.MkDir()
	outfile := tmpdir + "/imputed.tsv"
	code := (&imputeCmd{}).RunCommand("decent impute", []string{
		"-i", "testdata/counts.tsv",
		"-model", "testdata/model.json",
		"-cells", "testdata/cells.tsv",
		"-seed", "9",
		"-o", outfile,
	}, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Assert(code, check.Equals, 0)

	f, err := os.Open(outfile)
	c.Assert(err, check.IsNil)
	defer f.Close()
	imputed, err := ReadCountMatrix(f)
	c.Assert(err, check.IsNil)
	c.Check(imputed.Genes, check.DeepEquals, []string{"flatA", "flatB", "deA", "deB", "sparse", "deC"})
	c.Check(len(imputed.Cells), check.Equals, 12)
}

func (s *pipelineSuite) TestUsage(c *check.C) {
	stderr := &bytes.Buffer{}
	code := runCommand("decent", []string{"bogus"}, bytes.NewReader(nil), &bytes.Buffer{}, stderr)
	c.Check(code, check.Equals, 2)
	c.Check(strings.Contains(stderr.String(), "lrt"), check.Equals, true)
	c.Check(strings.Contains(stderr.String(), "impute"), check.Equals, true)
}
