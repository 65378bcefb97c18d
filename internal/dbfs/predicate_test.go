// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import "testing"

func TestEvaluateBundleMinMaxSize(t *testing.T) {
	fi := NewRemoteFileInfo(false, 100, 0, "/a/b.txt")
	bundle := PredicateBundle{"min_size": int64(50), "max_size": int64(200)}
	if !EvaluateBundle(bundle, fi, "b.txt") {
		t.Fatalf("expected entry within [50,200] to pass")
	}
	bundle["max_size"] = int64(99)
	if EvaluateBundle(bundle, fi, "b.txt") {
		t.Fatalf("expected entry over max_size to fail")
	}
}

func TestEvaluateBundleSizeIgnoresDirs(t *testing.T) {
	dir := NewRemoteFileInfo(true, 0, 0, "/a")
	bundle := PredicateBundle{"min_size": int64(1000)}
	if !EvaluateBundle(bundle, dir, "a") {
		t.Fatalf("size predicates must not filter out directories")
	}
}

func TestEvaluateBundleNameGlob(t *testing.T) {
	fi := NewRemoteFileInfo(false, 1, 0, "/data/model.bin")
	bundle := PredicateBundle{"name": CompileGlob("*.bin")}
	if !EvaluateBundle(bundle, fi, "model.bin") {
		t.Fatalf("expected *.bin to match model.bin")
	}
	bundle["name"] = CompileGlob("*.txt")
	if EvaluateBundle(bundle, fi, "model.bin") {
		t.Fatalf("expected *.txt not to match model.bin")
	}
}

func TestEvaluateBundleExcludeName(t *testing.T) {
	fi := NewRemoteFileInfo(false, 1, 0, "/data/.gitkeep")
	bundle := PredicateBundle{"exclude_name": CompileGlob(".*")}
	if EvaluateBundle(bundle, fi, ".gitkeep") {
		t.Fatalf("expected dotfile to be excluded")
	}
}

func TestCompileAnchoredRegexCaseSensitivity(t *testing.T) {
	re, err := CompileAnchoredRegex("README", false)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !re.MatchString("readme") {
		t.Fatalf("iname must be case-insensitive")
	}

	sensitive, err := CompileAnchoredRegex("README", true)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if sensitive.MatchString("readme") {
		t.Fatalf("name regex must stay case-sensitive")
	}
	if !sensitive.MatchString("README") {
		t.Fatalf("exact case must still match")
	}
}

func TestCompileAnchoredRegexAnchoring(t *testing.T) {
	re, err := CompileAnchoredRegex("foo", true)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if re.MatchString("foobar") {
		t.Fatalf("anchored regex must not match a prefix-only string")
	}
	if !re.MatchString("foo") {
		t.Fatalf("anchored regex must match an exact string")
	}
}

func TestCompileSearchRegexIsUnanchored(t *testing.T) {
	re, err := CompileSearchRegex("bar", true)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !re.MatchString("foobarbaz") {
		t.Fatalf("search regex must match as a substring")
	}
}

func TestEvaluateBundleWholeRe(t *testing.T) {
	fi := NewRemoteFileInfo(false, 1, 0, "/a/b/c.bin")
	re, err := CompileSearchRegex(`^a/b/`, true)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	bundle := PredicateBundle{"wholere": re}
	if !EvaluateBundle(bundle, fi, "a/b/c.bin") {
		t.Fatalf("wholere must match against relpath, not basename")
	}
}

func TestEvaluateBundleMinMaxDepth(t *testing.T) {
	fi := NewRemoteFileInfo(false, 1, 0, "/a/b/c.bin")
	bundle := PredicateBundle{"min_depth": int64(3)}
	if !EvaluateBundle(bundle, fi, "a/b/c.bin") {
		t.Fatalf("depth 3 should satisfy min_depth 3")
	}
	bundle = PredicateBundle{"max_depth": int64(2)}
	if EvaluateBundle(bundle, fi, "a/b/c.bin") {
		t.Fatalf("depth 3 should fail max_depth 2")
	}
}

func TestDepthOfRoot(t *testing.T) {
	if depthOf(".") != 0 {
		t.Fatalf("expected root depth 0")
	}
	if depthOf("a") != 1 {
		t.Fatalf("expected depth 1 for a top-level entry")
	}
	if depthOf("a/b") != 2 {
		t.Fatalf("expected depth 2 for a nested entry")
	}
}

func TestEvaluateBundleConjunction(t *testing.T) {
	fi := NewRemoteFileInfo(false, 500, 0, "/models/m.bin")
	bundle := PredicateBundle{
		"min_size":     int64(100),
		"name":         CompileGlob("*.bin"),
		"exclude_name": CompileGlob("*.tmp"),
	}
	if !EvaluateBundle(bundle, fi, "m.bin") {
		t.Fatalf("expected entry satisfying every positive predicate and no exclude to pass")
	}
}
