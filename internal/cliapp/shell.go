// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cliapp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// newShellCmd builds the interactive REPL: a line-oriented loop that
// tokenizes each line with splitFields and dispatches it through the same
// cobra command table used for one-shot invocations.
func newShellCmd(app *App, ro *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:    "shell",
		Short:  "start an interactive session",
		Hidden: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, app, ro, os.Stdin, os.Stdout)
		},
	}
}

func runShell(cmd *cobra.Command, app *App, ro *rootOpts, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, shellPrompt(app))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := splitFields(line)
		switch fields[0] {
		case "exit", "quit", "q":
			return nil
		case "!":
			if len(fields) > 1 {
				if err := app.runExternal(fields[1], strings.Join(fields[2:], " ")); err != nil {
					printOperationError(os.Stderr, err)
				}
			}
			continue
		}
		if err := dispatch(cmd, app, ro, fields); err != nil {
			printOperationError(os.Stderr, err)
		}
	}
}

// dispatch runs one shell line through a fresh copy of the verb command
// table so per-invocation flag state (e.g. find's PredicateFlags) never
// leaks between lines.
func dispatch(parent *cobra.Command, app *App, ro *rootOpts, fields []string) error {
	table := &cobra.Command{Use: "fastdbfs-shell", SilenceUsage: true, SilenceErrors: true}
	for _, c := range buildCommands(app, ro) {
		table.AddCommand(c)
	}
	table.SetArgs(fields)
	table.SetOut(parent.OutOrStdout())
	table.SetErr(parent.ErrOrStderr())
	return table.ExecuteContext(parent.Context())
}

func shellPrompt(app *App) string {
	if app.session == nil {
		return "fastdbfs> "
	}
	return fmt.Sprintf("fastdbfs:%s> ", app.session.Pwd())
}
