// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import (
	"context"
	"os"
	"path/filepath"
	"sort"
)

// WalkEntry is one node of a walk, delivered to the caller's emit callback
// once it and everything ahead of it in abspath order is settled.
type WalkEntry struct {
	FI   FileInfo
	Good bool // true if it passed the predicate bundle and external filter
	Err  error
	Done bool
}

// ExternalFilterFunc receives the relpath->FileInfo candidates discovered in
// one listing batch and returns the relpaths to keep. A nil filter keeps
// every candidate that the predicate bundle already selected.
type ExternalFilterFunc func(candidates map[string]FileInfo) []string

// WalkOptions configures a remote walk.
type WalkOptions struct {
	Root    string
	Bundle  PredicateBundle
	Filter  ExternalFilterFunc
	Workers int
}

// walker drives one remote recursive traversal. Listings are fanned out
// across a priority Swarm keyed by path (shallow paths drain first), but
// every mutation of pending happens on the single driver goroutine that
// reads the shared response channel, so no locking is needed around it.
type walker struct {
	backend Backend
	opts    WalkOptions
	emit    func(*WalkEntry)
	swarm   *Swarm
	pending []*WalkEntry
}

// WalkRemote performs an in-order (ascending abspath) recursive traversal of
// opts.Root over backend, calling emit once for every entry as soon as it
// and all entries sorting ahead of it have been resolved.
func WalkRemote(ctx context.Context, backend Backend, opts WalkOptions, emit func(*WalkEntry)) error {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	rootFI, err := backend.GetStatus(ctx, opts.Root)
	if err != nil {
		return err
	}

	w := &walker{
		backend: backend,
		opts:    opts,
		emit:    emit,
		swarm:   NewPrioritySwarm(ctx, opts.Workers),
		pending: []*WalkEntry{{FI: rootFI}},
	}

	if !rootFI.IsDir {
		return w.swarm.RunWhile(ctx, func(ctx context.Context) error {
			w.markGood(w.pending[0])
			w.emitReady()
			return nil
		})
	}

	respCh := make(chan TaskOutcome)
	driver := func(ctx context.Context) error {
		w.markGood(w.pending[0])
		w.enqueueListing(ctx, opts.Root, respCh)
		outstanding := 1
		for outstanding > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case res := <-respCh:
				outstanding--
				w.handleListing(ctx, res, respCh, &outstanding)
			}
		}
		return nil
	}
	return w.swarm.RunWhile(ctx, driver)
}

func (w *walker) enqueueListing(ctx context.Context, path string, respCh chan TaskOutcome) {
	w.swarm.Put(&SwarmTask{
		Key: StrKey(path),
		Run: func(ctx context.Context) (any, error) {
			return w.backend.List(ctx, path)
		},
		Response: respCh,
	})
}

func (w *walker) markGood(e *WalkEntry) {
	rel := relOf(w.opts.Root, e.FI.AbsPath, e.FI.Local)
	e.Good = EvaluateBundle(w.opts.Bundle, e.FI, rel)
	if e.FI.AbsPath == w.opts.Root {
		e.Good = true // the root itself is always traversed, never filtered out
	}
	if !e.FI.IsDir {
		e.Done = true
	}
}

func (w *walker) handleListing(ctx context.Context, res TaskOutcome, respCh chan TaskOutcome, outstanding *int) {
	path := res.Key.str
	idx := w.findPending(path)
	if idx < 0 {
		return
	}
	entry := w.pending[idx]
	entry.Done = true
	if res.Err != nil {
		entry.Err = res.Err
		w.emitReady()
		return
	}

	children := res.Value.([]FileInfo)
	newEntries := make([]*WalkEntry, 0, len(children))
	candidates := make(map[string]FileInfo, len(children))
	for _, c := range children {
		newEntries = append(newEntries, &WalkEntry{FI: c})
		candidates[relOf(w.opts.Root, c.AbsPath, c.Local)] = c
	}

	var selected map[string]bool
	if w.opts.Filter != nil {
		selected = make(map[string]bool, len(candidates))
		for _, rel := range w.opts.Filter(candidates) {
			selected[rel] = true
		}
	}

	for _, ce := range newEntries {
		rel := relOf(w.opts.Root, ce.FI.AbsPath, ce.FI.Local)
		ce.Good = EvaluateBundle(w.opts.Bundle, ce.FI, rel)
		if w.opts.Filter != nil {
			ce.Good = ce.Good && selected[rel]
		}
		if !ce.FI.IsDir {
			ce.Done = true
		}
	}

	w.insertSorted(newEntries)

	for _, ce := range newEntries {
		if !ce.FI.IsDir {
			continue
		}
		if w.prunedByMaxDepth(ce) {
			ce.Done = true
			continue
		}
		w.enqueueListing(ctx, ce.FI.AbsPath, respCh)
		*outstanding++
	}

	w.emitReady()
}

// prunedByMaxDepth stops descent once a directory's own depth has reached
// max_depth: its children would exceed the bound, so listing it would be
// wasted work. The directory entry itself is still emitted.
func (w *walker) prunedByMaxDepth(ce *WalkEntry) bool {
	v, ok := w.opts.Bundle["max_depth"]
	if !ok {
		return false
	}
	rel := relOf(w.opts.Root, ce.FI.AbsPath, ce.FI.Local)
	return depthOf(rel) >= v.(int64)
}

func (w *walker) findPending(path string) int {
	for i, e := range w.pending {
		if e.FI.AbsPath == path {
			return i
		}
	}
	return -1
}

func (w *walker) insertSorted(entries []*WalkEntry) {
	for _, e := range entries {
		idx := sort.Search(len(w.pending), func(i int) bool {
			return w.pending[i].FI.AbsPath >= e.FI.AbsPath
		})
		w.pending = append(w.pending, nil)
		copy(w.pending[idx+1:], w.pending[idx:])
		w.pending[idx] = e
	}
}

func (w *walker) emitReady() {
	for len(w.pending) > 0 && w.pending[0].Done {
		e := w.pending[0]
		w.pending = w.pending[1:]
		if w.emit != nil {
			w.emit(e)
		}
	}
}

// WalkLocal performs a depth-first OS walk of root, the local mirror image
// of WalkRemote. Each directory's immediate children are read with one
// os.ReadDir call, turned into a single candidate batch, filtered through
// the predicate bundle and the external filter exactly like one of
// WalkRemote's listings, and emitted before descending into any of that
// batch's subdirectories — so a caller such as rput can start transferring
// files from the first directory without waiting for the rest of the tree
// to be scanned.
func WalkLocal(ctx context.Context, root string, bundle PredicateBundle, filter ExternalFilterFunc, emit func(*WalkEntry)) error {
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	rootFI := NewLocalFileInfo(info.IsDir(), info.Size(), info.ModTime().UnixNano(), root)
	emit(&WalkEntry{FI: rootFI, Good: true, Done: true})
	if !rootFI.IsDir {
		return nil
	}
	return walkLocalDir(ctx, root, root, bundle, filter, emit)
}

// walkLocalDir lists dir's immediate children as one batch, filters and
// emits them, then recurses into the subdirectories that survived
// max_depth pruning.
func walkLocalDir(ctx context.Context, root, dir string, bundle PredicateBundle, filter ExternalFilterFunc, emit func(*WalkEntry)) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		emit(&WalkEntry{FI: FileInfo{AbsPath: dir, Local: true}, Err: err, Done: true})
		return nil
	}

	type child struct {
		fi  FileInfo
		rel string
	}
	children := make([]child, 0, len(entries))
	candidates := make(map[string]FileInfo, len(entries))
	for _, d := range entries {
		p := filepath.Join(dir, d.Name())
		info, ierr := d.Info()
		if ierr != nil {
			return ierr
		}
		fi := NewLocalFileInfo(d.IsDir(), info.Size(), info.ModTime().UnixNano(), p)
		rel := relOf(root, p, true)
		children = append(children, child{fi: fi, rel: rel})
		candidates[rel] = fi
	}

	var selected map[string]bool
	if filter != nil {
		selected = make(map[string]bool, len(candidates))
		for _, rel := range filter(candidates) {
			selected[rel] = true
		}
	}

	for _, c := range children {
		good := EvaluateBundle(bundle, c.fi, c.rel)
		if filter != nil {
			good = good && selected[c.rel]
		}
		emit(&WalkEntry{FI: c.fi, Good: good, Done: true})
	}

	for _, c := range children {
		if !c.fi.IsDir {
			continue
		}
		if v, ok := bundle["max_depth"]; ok && depthOf(c.rel) >= v.(int64) {
			continue
		}
		if err := walkLocalDir(ctx, root, c.fi.AbsPath, bundle, filter, emit); err != nil {
			return err
		}
	}
	return nil
}
