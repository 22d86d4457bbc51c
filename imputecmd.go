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
	"strings"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// imputecmd fits the per-gene models (reusing the lrt machinery) and
// replaces each observed count with one draw from the posterior of its
// latent pre-dropout count.
type imputeCmd struct{}

func (cmd *imputeCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	parallel := flags.Bool("parallel", false, "fit genes concurrently")
	seed := flags.Uint64("seed", 1, "random `seed` for the posterior draw")
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
	lrt, err := RunLikelihoodRatioTest(counts, model, designX, designW, model.Link(), *parallel)
	if err != nil {
		return 1
	}
	imputed := ImputeCounts(counts, model, lrt, designX, designW, model.Link(), *seed)

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
	err = writeCountMatrix(bufw, counts.Genes, counts.Cells, imputed)
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
	return 0
}

func writeCountMatrix(w io.Writer, genes, cells []string, m *mat.Dense) error {
	if _, err := fmt.Fprintf(w, "gene\t%s\n", strings.Join(cells, "\t")); err != nil {
		return err
	}
	for i, gene := range genes {
		if _, err := fmt.Fprint(w, gene); err != nil {
			return err
		}
		for _, v := range m.RawRowView(i) {
			fmt.Fprintf(w, "\t%.0f", v)
		}
		if _, err := fmt.Fprint(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}
