// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// PredicateBundle is a mapping from predicate name to compiled value; a
// missing key means "not active". Evaluation is conjunctive: an entry is
// kept iff every positive predicate matches AND no exclude predicate
// matches. Implemented as an explicit table from predicate name to
// evaluator rather than reflected method dispatch.
type PredicateBundle map[string]any

type predicateEvaluator func(value any, fi FileInfo, relpath string) bool

// predicateRegistry is the explicit table of positive predicate names to
// their evaluators. exclude_* variants reuse the same evaluator and invert
// the verdict (see EvaluateBundle).
var predicateRegistry = map[string]predicateEvaluator{
	"min_size": func(v any, fi FileInfo, _ string) bool {
		if fi.IsDir {
			return true
		}
		return fi.Size >= v.(int64)
	},
	"max_size": func(v any, fi FileInfo, _ string) bool {
		if fi.IsDir {
			return true
		}
		return fi.Size <= v.(int64)
	},
	"newer_than": func(v any, fi FileInfo, _ string) bool {
		return fi.MTimeMS/1000 >= v.(int64)
	},
	"older_than": func(v any, fi FileInfo, _ string) bool {
		return fi.MTimeMS/1000 <= v.(int64)
	},
	"name": func(v any, fi FileInfo, _ string) bool {
		ok, _ := filepath.Match(v.(string), fi.Basename())
		return ok
	},
	"iname": func(v any, fi FileInfo, _ string) bool {
		re := v.(*regexp.Regexp)
		return re.MatchString(fi.Basename())
	},
	"re": func(v any, fi FileInfo, _ string) bool {
		return v.(*regexp.Regexp).MatchString(fi.Basename())
	},
	"ire": func(v any, fi FileInfo, _ string) bool {
		return v.(*regexp.Regexp).MatchString(fi.Basename())
	},
	"wholere": func(v any, _ FileInfo, relpath string) bool {
		return v.(*regexp.Regexp).MatchString(relpath)
	},
	"iwholere": func(v any, _ FileInfo, relpath string) bool {
		return v.(*regexp.Regexp).MatchString(relpath)
	},
	"min_depth": func(v any, _ FileInfo, relpath string) bool {
		return depthOf(relpath) >= v.(int64)
	},
	"max_depth": func(v any, _ FileInfo, relpath string) bool {
		return depthOf(relpath) <= v.(int64)
	},
}

func depthOf(relpath string) int64 {
	if relpath == "." || relpath == "" {
		return 0
	}
	return int64(strings.Count(strings.Trim(relpath, "/"), "/")) + 1
}

// CompileGlob compiles a shell glob into the "name" predicate's native form
// (filepath.Match is used directly, no compilation needed).
func CompileGlob(pattern string) string { return pattern }

// CompileAnchoredRegex compiles pattern anchored full-match on the
// basename, for iname. caseSensitive controls whether (?i) is added: the
// natural, non-inverted mapping.
func CompileAnchoredRegex(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	return compileRegex("^(?:"+pattern+")$", caseSensitive)
}

// CompileSearchRegex compiles a regex for re/ire/wholere/iwholere, which
// search (not anchor) within the target string.
func CompileSearchRegex(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	return compileRegex(pattern, caseSensitive)
}

func compileRegex(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}

// EvaluateBundle returns true iff fi/relpath satisfies every positive
// predicate in the bundle and no exclude_* predicate matches.
func EvaluateBundle(bundle PredicateBundle, fi FileInfo, relpath string) bool {
	for name, eval := range predicateRegistry {
		if v, ok := bundle[name]; ok {
			if !eval(v, fi, relpath) {
				return false
			}
		}
		if v, ok := bundle["exclude_"+name]; ok {
			if eval(v, fi, relpath) {
				return false
			}
		}
	}
	return true
}
