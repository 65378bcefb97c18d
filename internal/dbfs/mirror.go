// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"sync"
)

// Direction supplies the side-specific behavior a Mirror needs: how to
// resolve a relpath under target, how to materialize a directory, how to
// transfer one file, and whether a file needs to be (re)transferred at all.
// Implemented by rgetDirection (remote->local) and rputDirection
// (local->remote).
type Direction interface {
	ResolveTarget(target, relpath string) string
	Mkdirs(ctx context.Context, targetPath string) error
	Transfer(ctx context.Context, src FileInfo, targetPath string, overwrite bool) error
	NeedsSync(ctx context.Context, src FileInfo, targetPath string) (bool, error)
	Walk(ctx context.Context, root string, bundle PredicateBundle, filter ExternalFilterFunc, emit func(*WalkEntry)) error
}

// MirrorOptions configures one recursive transfer.
type MirrorOptions struct {
	Src       string
	Target    string
	Overwrite bool
	Sync      bool
	Bundle    PredicateBundle
	Filter    ExternalFilterFunc
	Workers   int
}

// transferJob pairs a WalkEntry with the resolved target path it is being
// transferred to, so the completion drain can re-attach it to the entry.
type transferJob struct {
	entry      *WalkEntry
	relpath    string
	targetPath string
}

// Mirror drives one direction-polymorphic recursive transfer: a Walker
// produces entries, and each good entry is transferred on a dedicated
// worker pool while the walk continues concurrently.
func Mirror(ctx context.Context, dir Direction, opts MirrorOptions, emit func(*WalkEntry)) error {
	if opts.Sync {
		opts.Overwrite = true
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}

	high := NewFIFOSwarm(ctx, opts.Workers, opts.Workers)
	respCh := make(chan TaskOutcome, opts.Workers)

	var mu sync.Mutex
	active := make(map[string]*transferJob)

	drain := func(blocking bool) {
		for {
			var res TaskOutcome
			var ok bool
			if blocking {
				res, ok = <-respCh, true
				blocking = false
			} else {
				select {
				case res = <-respCh:
					ok = true
				default:
					ok = false
				}
			}
			if !ok {
				return
			}
			mu.Lock()
			job, found := active[res.Key.str]
			if found {
				delete(active, res.Key.str)
			}
			mu.Unlock()
			if !found {
				continue
			}
			if res.Err != nil {
				job.entry.Err = res.Err
			}
			emit(job.entry)
		}
	}

	walkErr := high.RunWhile(ctx, func(ctx context.Context) error {
		return dir.Walk(ctx, opts.Src, opts.Bundle, opts.Filter, func(entry *WalkEntry) {
			drain(false)

			relpath := relpathForMirror(opts.Src, entry.FI)
			targetPath := dir.ResolveTarget(opts.Target, relpath)

			if entry.FI.IsDir {
				if entry.Good {
					if err := dir.Mkdirs(ctx, targetPath); err != nil {
						entry.Err = err
					}
				}
				emit(entry)
				return
			}

			if opts.Sync && entry.Good {
				needs, err := dir.NeedsSync(ctx, entry.FI, targetPath)
				if err != nil {
					entry.Err = err
					emit(entry)
					return
				}
				if !needs {
					entry.Good = false
				}
			}

			if !entry.Good {
				emit(entry)
				return
			}

			mu.Lock()
			active[relpath] = &transferJob{entry: entry, relpath: relpath, targetPath: targetPath}
			mu.Unlock()

			fi := entry.FI
			ov := opts.Overwrite
			high.Put(&SwarmTask{
				Key: StrKey(relpath),
				Run: func(ctx context.Context) (any, error) {
					return nil, dir.Transfer(ctx, fi, targetPath, ov)
				},
				Response: respCh,
			})
		})
	})

	drain(false)
	for {
		mu.Lock()
		n := len(active)
		mu.Unlock()
		if n == 0 {
			break
		}
		drain(true)
	}

	return walkErr
}

func relpathForMirror(root string, fi FileInfo) string {
	return relOf(root, fi.AbsPath, fi.Local)
}

// rgetDirection implements Direction for remote-to-local recursive download.
type rgetDirection struct {
	backend   Backend
	swarm     *Swarm
	chunkSize int64
	progress  ProgressFunc
}

// NewRGetDirection builds the remote->local Direction for Mirror. low is the
// Swarm that ChunkedReader fans range requests out onto.
func NewRGetDirection(backend Backend, low *Swarm, chunkSize int64, progress ProgressFunc) Direction {
	return &rgetDirection{backend: backend, swarm: low, chunkSize: chunkSize, progress: progress}
}

func (d *rgetDirection) ResolveTarget(target, relpath string) string {
	if relpath == "." {
		return target
	}
	return filepath.Join(target, filepath.FromSlash(relpath))
}

func (d *rgetDirection) Mkdirs(ctx context.Context, targetPath string) error {
	return os.MkdirAll(targetPath, 0o755)
}

func (d *rgetDirection) Transfer(ctx context.Context, src FileInfo, targetPath string, overwrite bool) error {
	return DownloadToFile(ctx, d.backend, src.AbsPath, targetPath, overwrite, d.swarm, d.chunkSize, d.progress)
}

func (d *rgetDirection) NeedsSync(ctx context.Context, src FileInfo, targetPath string) (bool, error) {
	st, err := os.Stat(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	if st.Size() != src.Size {
		return true, nil
	}
	localMS := st.ModTime().UnixNano() / 1e6
	return localMS < src.MTimeMS, nil
}

func (d *rgetDirection) Walk(ctx context.Context, root string, bundle PredicateBundle, filter ExternalFilterFunc, emit func(*WalkEntry)) error {
	return WalkRemote(ctx, d.backend, WalkOptions{Root: root, Bundle: bundle, Filter: filter}, emit)
}

// rputDirection implements Direction for local-to-remote recursive upload.
type rputDirection struct {
	backend   Backend
	chunkSize int64
	progress  ProgressFunc
}

// NewRPutDirection builds the local->remote Direction for Mirror.
func NewRPutDirection(backend Backend, chunkSize int64, progress ProgressFunc) Direction {
	return &rputDirection{backend: backend, chunkSize: chunkSize, progress: progress}
}

func (d *rputDirection) ResolveTarget(target, relpath string) string {
	if relpath == "." {
		return target
	}
	return normalizeRemotePath(path.Join(target, relpath))
}

func (d *rputDirection) Mkdirs(ctx context.Context, targetPath string) error {
	return d.backend.Mkdirs(ctx, targetPath)
}

func (d *rputDirection) Transfer(ctx context.Context, src FileInfo, targetPath string, overwrite bool) error {
	return UploadFile(ctx, d.backend, src.AbsPath, targetPath, overwrite, d.chunkSize, d.progress, nil)
}

func (d *rputDirection) NeedsSync(ctx context.Context, src FileInfo, targetPath string) (bool, error) {
	fi, err := d.backend.GetStatus(ctx, targetPath)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	if fi.Size != src.Size {
		return true, nil
	}
	return fi.MTimeMS < src.MTimeMS, nil
}

func (d *rputDirection) Walk(ctx context.Context, root string, bundle PredicateBundle, filter ExternalFilterFunc, emit func(*WalkEntry)) error {
	return WalkLocal(ctx, root, bundle, filter, emit)
}
