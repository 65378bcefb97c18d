// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package cliapp is the thin command-line/REPL surface over a dbfs.Session:
// one cobra subcommand per verb, sharing a single command table with the
// interactive shell.
package cliapp

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/salva/fastdbfs/internal/config"
	"github.com/salva/fastdbfs/internal/dbfs"
	"github.com/salva/fastdbfs/internal/progress"
)

// App holds the state shared by every command: the active session (once
// opened), the loaded config, and the local working directory (lcwd tracks
// "lcd" independently of the process's real cwd so "lpwd" reflects it even
// before any lcd is issued).
type App struct {
	cfg     *config.Config
	log     *logrus.Logger
	session *dbfs.Session
	lcwd    string
}

func newApp(cfg *config.Config, log *logrus.Logger) *App {
	lcwd, err := os.Getwd()
	if err != nil {
		lcwd = "."
	}
	return &App{cfg: cfg, log: log, lcwd: lcwd}
}

func (a *App) requireSession() error {
	if a.session == nil {
		return fmt.Errorf("no open session: run 'open PROFILE' first")
	}
	return nil
}

// Open resolves profile against the loaded config and starts a Session. If
// the profile has no token on file, it is prompted for interactively rather
// than ever being accepted on the command line where it could leak into
// shell history or a process listing.
func (a *App) Open(profile string) error {
	p, err := a.cfg.Profile(profile)
	if err != nil {
		return err
	}
	if p.Token == "" {
		tok, terr := promptToken(profile)
		if terr != nil {
			return terr
		}
		p.Token = tok
	}
	s := a.cfg.Settings
	sess, err := dbfs.Open(dbfs.SessionConfig{
		Host:                p.Host,
		Token:               p.Token,
		Workers:             s.Workers,
		ChunkSize:           s.ChunkSize,
		MaxRetries:          s.MaxRetries,
		ErrorDelay:          s.ErrorDelay,
		ErrorDelayIncrement: s.ErrorDelayIncrement,
		Log:                 logrus.NewEntry(a.log).WithField("profile", profile),
	})
	if err != nil {
		return err
	}
	a.session = sess
	return nil
}

// promptToken reads a token from the controlling terminal with echo
// disabled. Falls back to a plain line read when stdin is not a terminal
// (piped input, tests).
func promptToken(profile string) (string, error) {
	fmt.Fprintf(os.Stderr, "Token for %s: ", profile)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		var line string
		if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
			return "", err
		}
		return line, nil
	}
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// resolveLocal resolves a local path against lcwd.
func (a *App) resolveLocal(p string) string {
	if p == "" {
		return a.lcwd
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(a.lcwd, p))
}

// signalContext returns a context canceled on the first SIGINT/SIGTERM so
// an in-flight transfer gets a chance to unwind instead of being killed
// mid-write.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// printOperationError prints "Operation failed: <Kind> - <message>" to
// stderr, the interactive display contract every verb shares.
func printOperationError(w io.Writer, err error) {
	fmt.Fprintf(w, "Operation failed: %v\n", dbfs.Classify(err))
}

func (a *App) printLs(w io.Writer, entries []dbfs.FileInfo, long bool) {
	for _, fi := range entries {
		if long {
			fmt.Fprintf(w, "%-4s %12d %s\n", fi.Type(), fi.Size, fi.Basename())
		} else {
			fmt.Fprintln(w, fi.Basename())
		}
	}
}

func (a *App) runPager(path string) error {
	pager := a.cfg.Settings.Pager
	if pager == "" {
		pager = "less"
	}
	return a.runExternal(pager, path)
}

func (a *App) runEditor(path string) error {
	editor := a.cfg.Settings.Editor
	if editor == "" {
		editor = "vi"
	}
	return a.runExternal(editor, path)
}

func (a *App) runExternal(program, path string) error {
	cmd := exec.Command(program, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// newSingleProgress wires up a terminal progress bar for one-file transfers
// unless quiet is set, in which case progress is silently discarded.
func newSingleProgress(quiet bool, path string, total int64) (dbfs.ProgressFunc, func()) {
	if quiet {
		return func(string, int64, int64) {}, func() {}
	}
	return progress.Single(path, total)
}

func splitFields(line string) []string {
	return strings.Fields(line)
}
