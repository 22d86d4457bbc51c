// Copyright (C) The DECENT Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package decent

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"

	"github.com/kshedden/gonpy"
	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

type lrtCmd struct{}

func (cmd *lrtCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprofAddr := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	countsFilename := flags.String("i", "-", "count matrix `file` (TSV, genes × cells, .gz ok)")
	modelFilename := flags.String("model", "", "fitted model bundle `file` (JSON)")
	cellsFilename := flags.String("cells", "", "cell annotation `file` (TSV: cell, type, covariates..., .gz ok)")
	outputFilename := flags.String("o", "-", "output `file`")
	npyDir := flags.String("output-npy", "", "also write stat/pval/parameter matrices as .npy files in `dir`")
	parallel := flags.Bool("parallel", false, "fit genes concurrently")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *modelFilename == "" || *cellsFilename == "" {
		err = fmt.Errorf("-model and -cells are required")
		return 2
	}

	if *pprofAddr != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	counts, model, designX, designW, err := loadInputs(*countsFilename, *modelFilename, *cellsFilename, stdin)
	if err != nil {
		return 1
	}
	out, err := RunLikelihoodRatioTest(counts, model, designX, designW, model.Link(), *parallel)
	if err != nil {
		return 1
	}

	var output io.WriteCloser
	if *outputFilename == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(*outputFilename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
		if err != nil {
			return 1
		}
		defer output.Close()
	}
	bufw := bufio.NewWriter(output)
	err = writeLRTOutput(bufw, out)
	if err != nil {
		return 1
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}

	if *npyDir != "" {
		err = writeLRTNumpy(*npyDir, out)
		if err != nil {
			return 1
		}
	}

	medp, _ := stats.Median(out.Pval)
	meanstat, _ := stats.Mean(out.Stat)
	log.Infof("lrt: median p-value %.4g, mean statistic %.4g", medp, meanstat)
	return 0
}

// loadInputs reads the count matrix, model bundle, and cell
// annotations, fetching the three files concurrently.
func loadInputs(countsFilename, modelFilename, cellsFilename string, stdin io.Reader) (counts *CountMatrix, model *FittedModel, designX, designW *mat.Dense, err error) {
	var eg errgroup.Group
	eg.Go(func() error {
		f, err := open(countsFilename, stdin)
		if err != nil {
			return err
		}
		defer f.Close()
		counts, err = ReadCountMatrix(f)
		return err
	})
	eg.Go(func() error {
		f, err := open(modelFilename, nil)
		if err != nil {
			return err
		}
		defer f.Close()
		model, err = ReadFittedModel(f)
		return err
	})
	eg.Go(func() error {
		f, err := open(cellsFilename, nil)
		if err != nil {
			return err
		}
		defer f.Close()
		designX, designW, err = ReadCellInfo(f)
		return err
	})
	if err = eg.Wait(); err != nil {
		return nil, nil, nil, nil, err
	}
	return counts, model, designX, designW, nil
}

func writeLRTOutput(w io.Writer, out *LRTOutput) error {
	_, nNull := out.ParNull.Dims()
	_, nAlt := out.ParAlt.Dims()
	fmt.Fprint(w, "gene\tstat\tpval")
	writeParHeader(w, "null", nNull)
	writeParHeader(w, "alt", nAlt)
	fmt.Fprint(w, "\n")
	for i, gene := range out.Genes {
		if _, err := fmt.Fprintf(w, "%s\t%g\t%g", gene, out.Stat[i], out.Pval[i]); err != nil {
			return err
		}
		for _, v := range out.ParNull.RawRowView(i) {
			fmt.Fprintf(w, "\t%g", v)
		}
		for _, v := range out.ParAlt.RawRowView(i) {
			fmt.Fprintf(w, "\t%g", v)
		}
		if _, err := fmt.Fprint(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

func writeParHeader(w io.Writer, model string, width int) {
	fmt.Fprintf(w, "\t%s.pi0_logit", model)
	for j := 0; j < width-2; j++ {
		fmt.Fprintf(w, "\t%s.b%d", model, j)
	}
	fmt.Fprintf(w, "\t%s.logdisp", model)
}

func writeLRTNumpy(dir string, out *LRTOutput) error {
	write := func(name string, shape []int, data []float64) error {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
		if err != nil {
			return err
		}
		defer f.Close()
		bufw := bufio.NewWriter(f)
		npw, err := gonpy.NewWriter(nopCloser{bufw})
		if err != nil {
			return err
		}
		npw.Shape = shape
		if err = npw.WriteFloat64(data); err != nil {
			return err
		}
		if err = bufw.Flush(); err != nil {
			return err
		}
		return f.Close()
	}
	ngene := len(out.Genes)
	_, nNull := out.ParNull.Dims()
	_, nAlt := out.ParAlt.Dims()
	if err := write("stat.npy", []int{ngene}, out.Stat); err != nil {
		return err
	}
	if err := write("pval.npy", []int{ngene}, out.Pval); err != nil {
		return err
	}
	if err := write("par_null.npy", []int{ngene, nNull}, out.ParNull.RawMatrix().Data); err != nil {
		return err
	}
	return write("par_alt.npy", []int{ngene, nAlt}, out.ParAlt.RawMatrix().Data)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
