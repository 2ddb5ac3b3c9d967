// Command dyms is the CLI front end for the dyms language: it reads a
// source file, compiles it, and runs it on the VM.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"dyms/internal/config"
	"dyms/vm"
)

var (
	cfgPath  string
	traceRun bool
	stressGC bool
)

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	var cerrs vm.CompileErrors
	var rerr *vm.RuntimeError
	switch {
	case errors.As(err, &cerrs):
		os.Exit(65)
	case errors.As(err, &rerr):
		os.Exit(70)
	}
	os.Exit(1)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "dyms",
		Short:        "dyms runs dyms language scripts",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "dyms.toml", "path to config file")

	runCmd := &cobra.Command{
		Use:   "run <file>",
		Short: "compile and execute a script",
		Args:  cobra.ExactArgs(1),
		RunE:  runScript,
	}
	runCmd.Flags().BoolVar(&traceRun, "trace", false, "log every executed instruction")
	runCmd.Flags().BoolVar(&stressGC, "stress-gc", false, "collect garbage before every allocation")

	root.AddCommand(runCmd, versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the dyms version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "dyms 0.1.0")
		},
	}
}

// extensions names the source file suffixes dyms recognizes, carried over
// from the teacher's main.go check.
var extensions = map[string]bool{".dy": true, ".dx": true}

func runScript(cmd *cobra.Command, args []string) error {
	path := args[0]
	if !extensions[filepath.Ext(path)] {
		return fmt.Errorf("%s: expected a .dy or .dx source file", path)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	opts := []vm.Option{
		vm.WithStdout(cmd.OutOrStdout()),
		vm.WithStderr(cmd.ErrOrStderr()),
		vm.WithInitialHeap(int64(cfg.VM.InitialHeapMB) << 20),
	}
	if stressGC || cfg.VM.StressGC {
		opts = append(opts, vm.WithStressGC())
	}
	if traceRun || cfg.VM.Trace {
		opts = append(opts, vm.WithTrace())
	}

	_, err = vm.Interpret(string(source), opts...)
	if err != nil {
		printError(cmd, err)
		return err
	}
	return nil
}

func printError(cmd *cobra.Command, err error) {
	w := cmd.ErrOrStderr()
	colorize := false
	if f, ok := w.(*os.File); ok {
		colorize = isatty.IsTerminal(f.Fd())
	}
	if colorize {
		fmt.Fprintf(w, "\x1b[31m%s\x1b[0m\n", err)
	} else {
		fmt.Fprintln(w, err)
	}
}

