// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cliapp

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/salva/fastdbfs/internal/config"
	"github.com/salva/fastdbfs/internal/dbfs"
	"github.com/salva/fastdbfs/internal/progress"
)

// rootOpts holds persistent (global) CLI flags.
type rootOpts struct {
	profile string
	quiet   bool
}

// Execute builds and runs the full fastdbfs command tree. version is
// reported by "fastdbfs --version".
func Execute(version string) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := cfg.ConfigureLogging(os.Stderr)
	if err != nil {
		return err
	}

	app := newApp(cfg, log)
	ro := &rootOpts{}

	root := &cobra.Command{
		Use:           "fastdbfs",
		Short:         "Concurrent command-line client for DBFS",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.PersistentFlags().StringVarP(&ro.profile, "profile", "p", "", "profile to open at startup")
	root.PersistentFlags().BoolVarP(&ro.quiet, "quiet", "q", false, "suppress progress bars")

	for _, cmd := range buildCommands(app, ro) {
		root.AddCommand(cmd)
	}
	root.AddCommand(newShellCmd(app, ro))

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if app.session != nil || ro.profile == "" {
			return nil
		}
		return app.Open(ro.profile)
	}

	return root.ExecuteContext(ctx)
}

// buildCommands returns the full verb table (minus "shell", added
// separately) as cobra commands operating on app's session.
func buildCommands(app *App, ro *rootOpts) []*cobra.Command {
	return []*cobra.Command{
		newOpenCmd(app),
		newCdCmd(app),
		newPwdCmd(app),
		newLcdCmd(app),
		newLpwdCmd(app),
		newLsCmd(app, false),
		newLsCmd(app, true),
		newMkdirCmd(app),
		newMkcdCmd(app),
		newRmCmd(app),
		newMvCmd(app),
		newPutCmd(app, ro),
		newGetCmd(app, ro),
		newFindCmd(app),
		newRgetCmd(app, ro),
		newRputCmd(app, ro),
		newCatCmd(app),
		newShowCmd(app),
		newPagerCmd(app, "more"),
		newPagerCmd(app, "less"),
		newEditCmd(app),
	}
}

func newOpenCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "open PROFILE",
		Short: "open a DBFS session for PROFILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Open(args[0])
		},
	}
}

func newCdCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cd [PATH]",
		Short: "change the remote working directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			p := "/"
			if len(args) == 1 {
				p = args[0]
			}
			return app.session.Cd(cmd.Context(), p)
		},
	}
}

func newPwdCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "pwd",
		Short: "print the remote working directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			fmt.Println(app.session.Pwd())
			return nil
		},
	}
}

func newLcdCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "lcd [PATH]",
		Short: "change the local working directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := app.lcwd
			if len(args) == 1 {
				target = app.resolveLocal(args[0])
			}
			st, err := os.Stat(target)
			if err != nil {
				return err
			}
			if !st.IsDir() {
				return fmt.Errorf("%s is not a directory", target)
			}
			app.lcwd = target
			return nil
		},
	}
}

func newLpwdCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "lpwd",
		Short: "print the local working directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(app.lcwd)
			return nil
		},
	}
}

func newLsCmd(app *App, long bool) *cobra.Command {
	use := "ls [PATH]"
	if long {
		use = "ll [PATH]"
	}
	return &cobra.Command{
		Use:   use,
		Short: "list a remote directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			p := ""
			if len(args) == 1 {
				p = args[0]
			}
			entries, err := app.session.Ls(cmd.Context(), p)
			if err != nil {
				return err
			}
			app.printLs(os.Stdout, entries, long)
			return nil
		},
	}
}

func newMkdirCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir PATH",
		Short: "create a remote directory (and parents)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			return app.session.Mkdir(cmd.Context(), args[0])
		},
	}
}

func newMkcdCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "mkcd PATH",
		Short: "create a remote directory and cd into it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			if err := app.session.Mkdir(cmd.Context(), args[0]); err != nil {
				return err
			}
			return app.session.Cd(cmd.Context(), args[0])
		},
	}
}

func newRmCmd(app *App) *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "rm PATH",
		Short: "remove a remote file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			return app.session.Rm(cmd.Context(), args[0], recursive)
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "R", false, "remove directories recursively")
	return cmd
}

func newMvCmd(app *App) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "mv SRC DST",
		Short: "rename/move a remote path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			return app.session.Mv(cmd.Context(), args[0], args[1], overwrite)
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite an existing file at DST")
	return cmd
}

func newPutCmd(app *App, ro *rootOpts) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "put LOCAL [REMOTE]",
		Short: "upload a local file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			local := app.resolveLocal(args[0])
			remote := ""
			if len(args) == 2 {
				remote = args[1]
			} else {
				remote = filepathBase(local)
			}
			st, err := os.Stat(local)
			if err != nil {
				return err
			}
			cb, done := newSingleProgress(ro.quiet, remote, st.Size())
			defer done()
			return app.session.Put(cmd.Context(), local, remote, overwrite, cb)
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite an existing remote file")
	return cmd
}

func newGetCmd(app *App, ro *rootOpts) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "get REMOTE [LOCAL]",
		Short: "download a remote file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			fi, err := app.session.GetStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			local := ""
			if len(args) == 2 {
				local = app.resolveLocal(args[1])
			} else {
				local = app.resolveLocal(fi.Basename())
			}
			cb, done := newSingleProgress(ro.quiet, args[0], fi.Size)
			defer done()
			return app.session.Get(cmd.Context(), args[0], local, overwrite, cb)
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite an existing local file")
	return cmd
}

func newFindCmd(app *App) *cobra.Command {
	var flags PredicateFlags
	cmd := &cobra.Command{
		Use:   "find [PATH]",
		Short: "recursively list a remote directory with filters",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			bundle, err := flags.Compile(cmd)
			if err != nil {
				return err
			}
			p := ""
			if len(args) == 1 {
				p = args[0]
			}
			return app.session.Find(cmd.Context(), p, bundle, flags.BuildFilter(), func(e *dbfs.WalkEntry) {
				printWalkEntry(os.Stdout, e)
			})
		},
	}
	flags.Register(cmd)
	return cmd
}

func newRgetCmd(app *App, ro *rootOpts) *cobra.Command {
	var flags PredicateFlags
	var overwrite, sync bool
	cmd := &cobra.Command{
		Use:   "rget SRC TARGET",
		Short: "recursively download a remote directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			bundle, err := flags.Compile(cmd)
			if err != nil {
				return err
			}
			target := app.resolveLocal(args[1])
			var mp *progress.Multi
			var cb dbfs.ProgressFunc
			if !ro.quiet {
				mp, err = progress.NewMulti()
				if err != nil {
					return err
				}
				defer mp.Close()
				cb = mp.Func()
			} else {
				cb = func(string, int64, int64) {}
			}
			return app.session.RGet(cmd.Context(), args[0], target, overwrite, sync, bundle, flags.BuildFilter(), cb, func(e *dbfs.WalkEntry) {
				printWalkEntry(os.Stdout, e)
			})
		},
	}
	flags.Register(cmd)
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite existing local files")
	cmd.Flags().BoolVar(&sync, "sync", false, "skip files that are already up to date")
	return cmd
}

func newRputCmd(app *App, ro *rootOpts) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "rput SRC TARGET",
		Short: "recursively upload a local directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			src := app.resolveLocal(args[0])
			var mp *progress.Multi
			var cb dbfs.ProgressFunc
			var err error
			if !ro.quiet {
				mp, err = progress.NewMulti()
				if err != nil {
					return err
				}
				defer mp.Close()
				cb = mp.Func()
			} else {
				cb = func(string, int64, int64) {}
			}
			return app.session.RPut(cmd.Context(), src, args[1], overwrite, cb, func(e *dbfs.WalkEntry) {
				printWalkEntry(os.Stdout, e)
			})
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite existing remote files")
	return cmd
}

func newCatCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cat PATH",
		Short: "print a remote file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withTempCopy(cmd.Context(), args[0], func(local string) error {
				f, err := os.Open(local)
				if err != nil {
					return err
				}
				defer f.Close()
				_, err = io.Copy(os.Stdout, f)
				return err
			})
		},
	}
}

func newShowCmd(app *App) *cobra.Command {
	cmd := newCatCmd(app)
	cmd.Use = "show PATH"
	cmd.Short = "alias for cat"
	return cmd
}

func newPagerCmd(app *App, name string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " PATH",
		Short: "page a remote file with " + name,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withTempCopy(cmd.Context(), args[0], app.runPager)
		},
	}
}

func newEditCmd(app *App) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "edit PATH",
		Short: "edit a remote file and upload it back on exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withTempCopy(cmd.Context(), args[0], func(local string) error {
				if err := app.runEditor(local); err != nil {
					return err
				}
				return app.session.Put(cmd.Context(), local, args[0], overwrite, nil)
			})
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", true, "overwrite the remote file with the edited copy")
	return cmd
}

// withTempCopy downloads path to a temp file, invokes fn on its local path,
// and removes the temp file afterward regardless of fn's outcome.
func (a *App) withTempCopy(ctx context.Context, path string, fn func(local string) error) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	tmp, err := a.session.GetToTemp(ctx, path, nil)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	return fn(tmp)
}

func printWalkEntry(w io.Writer, e *dbfs.WalkEntry) {
	if e.Err != nil {
		fmt.Fprintf(w, "%s: %v\n", e.FI.AbsPath, e.Err)
		return
	}
	if !e.Good {
		return
	}
	fmt.Fprintln(w, e.FI.AbsPath)
}

func filepathBase(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' || p[i] == os.PathSeparator {
			return p[i+1:]
		}
	}
	return p
}
