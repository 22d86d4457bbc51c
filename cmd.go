// Copyright (C) The DECENT Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package decent

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

type cmdHandler interface {
	RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int
}

var handlers = map[string]cmdHandler{
	"lrt":    &lrtCmd{},
	"impute": &imputeCmd{},
}

func Main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		logrus.StandardLogger().Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	}
	os.Exit(runCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func runCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		if h, ok := handlers[args[0]]; ok {
			return h.RunCommand(prog+" "+args[0], args[1:], stdin, stdout, stderr)
		}
		fmt.Fprintf(stderr, "%s: unrecognized command %q\n", prog, args[0])
	}
	var names []string
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(stderr, "usage: %s command [options]\n\navailable commands:\n", prog)
	for _, name := range names {
		fmt.Fprintf(stderr, "  %s\n", name)
	}
	return 2
}
