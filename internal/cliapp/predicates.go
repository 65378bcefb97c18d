// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cliapp

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/salva/fastdbfs/internal/dbfs"
)

// PredicateFlags binds the --min-size/--name/--re/... flag family shared by
// find and rget to a cobra command, then compiles them into a
// dbfs.PredicateBundle.
type PredicateFlags struct {
	MinSize         string
	MaxSize         string
	NewerThan       string
	OlderThan       string
	Name            string
	IName           string
	Re              string
	IRe             string
	WholeRe         string
	IWholeRe        string
	MinDepth        int
	MaxDepth        int
	ExcludeMinSize  string
	ExcludeMaxSize  string
	ExcludeNewer    string
	ExcludeOlder    string
	ExcludeName     string
	ExcludeIName    string
	ExcludeRe       string
	ExcludeIRe      string
	ExcludeWholeRe  string
	ExcludeIWholeRe string
	ExcludeMinDepth int
	ExcludeMaxDepth int
	ExternalFilter  string
}

// Register attaches every predicate flag, its exclude_* counterpart, and
// --external-filter to cmd.
func (p *PredicateFlags) Register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&p.MinSize, "min-size", "", "keep entries at least this many bytes")
	f.StringVar(&p.MaxSize, "max-size", "", "keep entries at most this many bytes")
	f.StringVar(&p.NewerThan, "newer-than", "", "keep entries modified after this time (RFC3339)")
	f.StringVar(&p.OlderThan, "older-than", "", "keep entries modified before this time (RFC3339)")
	f.StringVar(&p.Name, "name", "", "keep entries whose basename matches this glob")
	f.StringVar(&p.IName, "iname", "", "case-insensitive --name")
	f.StringVar(&p.Re, "re", "", "keep entries whose basename matches this regex")
	f.StringVar(&p.IRe, "ire", "", "case-insensitive --re")
	f.StringVar(&p.WholeRe, "wholere", "", "keep entries whose relative path matches this regex")
	f.StringVar(&p.IWholeRe, "iwholere", "", "case-insensitive --wholere")
	f.IntVar(&p.MinDepth, "min-depth", 0, "minimum depth below the walk root")
	f.IntVar(&p.MaxDepth, "max-depth", 0, "maximum depth below the walk root (unbounded when not given)")
	f.StringVar(&p.ExcludeMinSize, "exclude-min-size", "", "drop entries at least this many bytes")
	f.StringVar(&p.ExcludeMaxSize, "exclude-max-size", "", "drop entries at most this many bytes")
	f.StringVar(&p.ExcludeNewer, "exclude-newer-than", "", "drop entries modified after this time (RFC3339)")
	f.StringVar(&p.ExcludeOlder, "exclude-older-than", "", "drop entries modified before this time (RFC3339)")
	f.StringVar(&p.ExcludeName, "exclude-name", "", "drop entries whose basename matches this glob")
	f.StringVar(&p.ExcludeIName, "exclude-iname", "", "case-insensitive --exclude-name")
	f.StringVar(&p.ExcludeRe, "exclude-re", "", "drop entries whose basename matches this regex")
	f.StringVar(&p.ExcludeIRe, "exclude-ire", "", "case-insensitive --exclude-re")
	f.StringVar(&p.ExcludeWholeRe, "exclude-wholere", "", "drop entries whose relative path matches this regex")
	f.StringVar(&p.ExcludeIWholeRe, "exclude-iwholere", "", "case-insensitive --exclude-wholere")
	f.IntVar(&p.ExcludeMinDepth, "exclude-min-depth", 0, "drop entries at least this deep below the walk root")
	f.IntVar(&p.ExcludeMaxDepth, "exclude-max-depth", 0, "drop entries at most this deep below the walk root")
	f.StringVar(&p.ExternalFilter, "external-filter", "", "shell command run once per listing batch: relpaths arrive on its stdin, the relpaths to keep are read back from its stdout")
}

// Compile translates the bound flag values into a dbfs.PredicateBundle.
func (p *PredicateFlags) Compile(cmd *cobra.Command) (dbfs.PredicateBundle, error) {
	bundle := dbfs.PredicateBundle{}

	if p.MinSize != "" {
		n, err := parseSize(p.MinSize)
		if err != nil {
			return nil, fmt.Errorf("--min-size: %w", err)
		}
		bundle["min_size"] = n
	}
	if p.MaxSize != "" {
		n, err := parseSize(p.MaxSize)
		if err != nil {
			return nil, fmt.Errorf("--max-size: %w", err)
		}
		bundle["max_size"] = n
	}
	if p.NewerThan != "" {
		t, err := time.Parse(time.RFC3339, p.NewerThan)
		if err != nil {
			return nil, fmt.Errorf("--newer-than: %w", err)
		}
		bundle["newer_than"] = t.Unix()
	}
	if p.OlderThan != "" {
		t, err := time.Parse(time.RFC3339, p.OlderThan)
		if err != nil {
			return nil, fmt.Errorf("--older-than: %w", err)
		}
		bundle["older_than"] = t.Unix()
	}
	if p.ExcludeMinSize != "" {
		n, err := parseSize(p.ExcludeMinSize)
		if err != nil {
			return nil, fmt.Errorf("--exclude-min-size: %w", err)
		}
		bundle["exclude_min_size"] = n
	}
	if p.ExcludeMaxSize != "" {
		n, err := parseSize(p.ExcludeMaxSize)
		if err != nil {
			return nil, fmt.Errorf("--exclude-max-size: %w", err)
		}
		bundle["exclude_max_size"] = n
	}
	if p.ExcludeNewer != "" {
		t, err := time.Parse(time.RFC3339, p.ExcludeNewer)
		if err != nil {
			return nil, fmt.Errorf("--exclude-newer-than: %w", err)
		}
		bundle["exclude_newer_than"] = t.Unix()
	}
	if p.ExcludeOlder != "" {
		t, err := time.Parse(time.RFC3339, p.ExcludeOlder)
		if err != nil {
			return nil, fmt.Errorf("--exclude-older-than: %w", err)
		}
		bundle["exclude_older_than"] = t.Unix()
	}
	if p.Name != "" {
		bundle["name"] = dbfs.CompileGlob(p.Name)
	}
	if p.ExcludeName != "" {
		bundle["exclude_name"] = dbfs.CompileGlob(p.ExcludeName)
	}
	if err := compileAnchored(bundle, "iname", p.IName, false); err != nil {
		return nil, err
	}
	if err := compileAnchored(bundle, "exclude_iname", p.ExcludeIName, false); err != nil {
		return nil, err
	}
	if err := compileSearch(bundle, "re", p.Re, true); err != nil {
		return nil, err
	}
	if err := compileSearch(bundle, "exclude_re", p.ExcludeRe, true); err != nil {
		return nil, err
	}
	if err := compileSearch(bundle, "ire", p.IRe, false); err != nil {
		return nil, err
	}
	if err := compileSearch(bundle, "exclude_ire", p.ExcludeIRe, false); err != nil {
		return nil, err
	}
	if err := compileSearch(bundle, "wholere", p.WholeRe, true); err != nil {
		return nil, err
	}
	if err := compileSearch(bundle, "iwholere", p.IWholeRe, false); err != nil {
		return nil, err
	}
	if err := compileSearch(bundle, "exclude_wholere", p.ExcludeWholeRe, true); err != nil {
		return nil, err
	}
	if err := compileSearch(bundle, "exclude_iwholere", p.ExcludeIWholeRe, false); err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("min-depth") {
		bundle["min_depth"] = int64(p.MinDepth)
	}
	if cmd.Flags().Changed("max-depth") {
		bundle["max_depth"] = int64(p.MaxDepth)
	}
	if cmd.Flags().Changed("exclude-min-depth") {
		bundle["exclude_min_depth"] = int64(p.ExcludeMinDepth)
	}
	if cmd.Flags().Changed("exclude-max-depth") {
		bundle["exclude_max_depth"] = int64(p.ExcludeMaxDepth)
	}
	return bundle, nil
}

// BuildFilter turns --external-filter into a dbfs.ExternalFilterFunc that
// shells out once per listing batch, the way runExternal shells out for
// the pager and editor: the batch's relpaths go to the command's stdin one
// per line, and the relpaths to keep come back the same way on stdout. A
// command that fails or exits non-zero keeps nothing from that batch.
func (p *PredicateFlags) BuildFilter() dbfs.ExternalFilterFunc {
	if p.ExternalFilter == "" {
		return nil
	}
	command := p.ExternalFilter
	return func(candidates map[string]dbfs.FileInfo) []string {
		rels := make([]string, 0, len(candidates))
		for rel := range candidates {
			rels = append(rels, rel)
		}
		sort.Strings(rels)

		var stdin bytes.Buffer
		for _, rel := range rels {
			stdin.WriteString(rel)
			stdin.WriteByte('\n')
		}

		cmd := exec.Command("sh", "-c", command)
		cmd.Stdin = &stdin
		var stdout bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return nil
		}

		var keep []string
		for _, line := range strings.Split(stdout.String(), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				keep = append(keep, line)
			}
		}
		return keep
	}
}

// compileAnchored turns a shell glob into an anchored regex. Only * and ?
// are wildcards; every other character matches itself.
func compileAnchored(bundle dbfs.PredicateBundle, key, pattern string, caseSensitive bool) error {
	if pattern == "" {
		return nil
	}
	var glob strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			glob.WriteString(".*")
		case '?':
			glob.WriteString(".")
		default:
			glob.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	re, err := dbfs.CompileAnchoredRegex(glob.String(), caseSensitive)
	if err != nil {
		return fmt.Errorf("--%s: %w", key, err)
	}
	bundle[key] = re
	return nil
}

func compileSearch(bundle dbfs.PredicateBundle, key, pattern string, caseSensitive bool) error {
	if pattern == "" {
		return nil
	}
	re, err := dbfs.CompileSearchRegex(pattern, caseSensitive)
	if err != nil {
		return fmt.Errorf("--%s: %w", key, err)
	}
	bundle[key] = re
	return nil
}

func parseSize(s string) (int64, error) {
	var n int64
	var unit string
	if _, err := fmt.Sscanf(s, "%d%s", &n, &unit); err != nil {
		if _, err2 := fmt.Sscanf(s, "%d", &n); err2 != nil {
			return 0, fmt.Errorf("invalid size %q", s)
		}
		return n, nil
	}
	switch unit {
	case "K", "KB", "KiB":
		n *= 1 << 10
	case "M", "MB", "MiB":
		n *= 1 << 20
	case "G", "GB", "GiB":
		n *= 1 << 30
	default:
		return 0, fmt.Errorf("invalid size suffix %q", unit)
	}
	return n, nil
}
