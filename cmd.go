// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Handler is the subcommand shape: given a program name, arguments, and
// stdio streams, run and return a process exit code.
type Handler interface {
	RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int

func (f HandlerFunc) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return f(prog, args, stdin, stdout, stderr)
}

// multi dispatches prog+args[0] to a registered Handler, the way a
// multi-command binary with several verbs typically does: args[0] names
// the subcommand, the rest are passed through unchanged.
type multi map[string]Handler

func (m multi) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintf(stderr, "usage: %s {%s} [options]\n", prog, strings.Join(m.names(), "|"))
		return 2
	}
	h, ok := m[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "%s: unrecognized subcommand %q\n", prog, args[0])
		return 2
	}
	return h.RunCommand(prog+" "+args[0], args[1:], stdin, stdout, stderr)
}

func (m multi) names() []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	return names
}

// versionHandler prints a fixed version string and exits 0.
type versionHandler struct{}

func (versionHandler) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fmt.Fprintf(stdout, "%s (minimac-go) %s\n", prog, programVersion)
	return 0
}

const programVersion = "dev"

var handler Handler = multi{
	"impute":    HandlerFunc(runImputeCommand),
	"version":   versionHandler{},
	"-version":  versionHandler{},
	"--version": versionHandler{},
}

// Main is the process entrypoint: wires up logging, then dispatches
// os.Args through handler and exits with its status.
func Main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		logrus.StandardLogger().Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	}
	os.Exit(handler.RunCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// runImputeCommand parses the imputation CLI flags described in the
// external interfaces and runs one Run.
func runImputeCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg := DefaultConfig()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)

	flags.StringVar(&cfg.RefHapsPath, "refHaps", "", "reference haplotype file")
	flags.StringVar(&cfg.RefSnpsPath, "refSnps", "", "reference SNP list file")
	flags.StringVar(&cfg.HapsPath, "haps", "", "target haplotype file")
	flags.StringVar(&cfg.SnpsPath, "snps", "", "target SNP list file")
	flags.StringVar(&cfg.RecPath, "rec", "", "starting crossover-rate file")
	flags.StringVar(&cfg.EratePath, "erate", "", "starting error-rate file")
	flags.IntVar(&cfg.Rounds, "rounds", cfg.Rounds, "number of model-fitting rounds")
	flags.IntVar(&cfg.States, "states", cfg.States, "number of reference states to condition on")
	flags.BoolVar(&cfg.EM, "em", false, "use EM (CountExpected) instead of stochastic (ProfileModel) fitting")
	flags.StringVar(&cfg.Prefix, "prefix", cfg.Prefix, "output file prefix")
	flags.BoolVar(&cfg.Phased, "phased", false, "also write P.hapDose and P.haps")
	flags.BoolVar(&cfg.Gzip, "gzip", false, "gzip-compress output files")
	flags.IntVar(&cfg.Workers, "cpus", runtime.NumCPU(), "number of worker goroutines")
	flags.StringVar(&cfg.Start, "start", "", "clip reference to start at this marker")
	flags.StringVar(&cfg.Stop, "stop", "", "clip reference to stop at this marker")
	flags.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "master random seed for stochastic fitting")

	if err := flags.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if cfg.RefHapsPath == "" || cfg.RefSnpsPath == "" || cfg.HapsPath == "" || cfg.SnpsPath == "" {
		fmt.Fprintln(stderr, "--refHaps, --refSnps, --haps and --snps are required")
		return 2
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	if err := Run(cfg, stderr); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
