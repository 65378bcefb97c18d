// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SessionConfig holds the fully-resolved tunables a Session needs to start
// talking to a DBFS host. Profile lookup (reading an INI file, picking a
// section) happens one layer up, in internal/config; Session itself only
// ever sees the resolved values, so this package has no dependency on any
// config file format.
type SessionConfig struct {
	Host                string
	Token               string
	Workers             int
	ChunkSize           int64
	MaxRetries          int
	ErrorDelay          time.Duration
	ErrorDelayIncrement time.Duration
	RateLimitHeader     string
	Log                 *logrus.Entry
}

// DefaultSessionConfig returns the documented defaults: 8 workers, 1 MiB
// chunks, 10 retries, 1s initial error delay with 1s linear increment.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Workers:             8,
		ChunkSize:           defaultChunkSize,
		MaxRetries:          10,
		ErrorDelay:          time.Second,
		ErrorDelayIncrement: time.Second,
	}
}

// Session is the top-level façade: it owns the ApiClient, its RateGate, and
// the current remote working directory, and exposes every public operation
// a CLI or shell front-end needs. Swarms are created per-operation and live
// no longer than that operation.
type Session struct {
	cfg SessionConfig
	api *ApiClient
	log *logrus.Entry

	mu  sync.Mutex
	cwd string
}

// Open builds a Session against an already-resolved profile configuration.
func Open(cfg SessionConfig) (*Session, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	gate := NewRateGate(cfg.Workers)
	api := NewApiClient(ClientConfig{
		Host:                cfg.Host,
		Token:               cfg.Token,
		MaxRetries:          cfg.MaxRetries,
		ErrorDelay:          cfg.ErrorDelay,
		ErrorDelayIncrement: cfg.ErrorDelayIncrement,
		RateLimitHeader:     cfg.RateLimitHeader,
		Log:                 log,
	}, gate)
	return &Session{cfg: cfg, api: api, log: log, cwd: "/"}, nil
}

func (s *Session) resolve(p string) string {
	s.mu.Lock()
	cwd := s.cwd
	s.mu.Unlock()
	if p == "" {
		return cwd
	}
	if strings.HasPrefix(p, "/") {
		return normalizeRemotePath(p)
	}
	return normalizeRemotePath(path.Join(cwd, p))
}

// Cd changes the current remote working directory. The target must exist
// and be a directory.
func (s *Session) Cd(ctx context.Context, p string) error {
	target := s.resolve(p)
	fi, err := s.api.GetStatus(ctx, target)
	if err != nil {
		return err
	}
	if !fi.IsDir {
		return &ApiError{Code: "RESOURCE_DOES_NOT_EXIST", Message: target + " is not a directory"}
	}
	s.mu.Lock()
	s.cwd = target
	s.mu.Unlock()
	return nil
}

// Pwd returns the current remote working directory.
func (s *Session) Pwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Ls lists the contents of path (cwd if empty).
func (s *Session) Ls(ctx context.Context, p string) ([]FileInfo, error) {
	return s.api.List(ctx, s.resolve(p))
}

// Mkdir creates path and any missing parents.
func (s *Session) Mkdir(ctx context.Context, p string) error {
	return s.api.Mkdirs(ctx, s.resolve(p))
}

// Rm removes path; recursive must be true to remove a non-empty directory.
// If the removed path is, or is an ancestor of, cwd, cwd is repaired to the
// parent of the removed path.
func (s *Session) Rm(ctx context.Context, p string, recursive bool) error {
	target := s.resolve(p)
	if err := s.api.Delete(ctx, target, recursive); err != nil {
		return err
	}
	s.mu.Lock()
	if s.cwd == target || strings.HasPrefix(s.cwd, target+"/") {
		s.cwd = normalizeRemotePath(path.Dir(target))
	}
	s.mu.Unlock()
	return nil
}

// Mv renames src to dst. If overwrite is true and the move fails because
// the destination already exists as a plain file, the destination is
// removed and the move is retried once; a directory target is never
// clobbered this way.
func (s *Session) Mv(ctx context.Context, src, dst string, overwrite bool) error {
	from := s.resolve(src)
	to := s.resolve(dst)
	err := s.api.Move(ctx, from, to)
	if err == nil || !overwrite {
		return err
	}
	var ae *ApiError
	if !asApiError(err, &ae) || ae.Code != "RESOURCE_ALREADY_EXISTS" {
		return err
	}
	dstFi, statErr := s.api.GetStatus(ctx, to)
	if statErr != nil || dstFi.IsDir {
		return err
	}
	if derr := s.api.Delete(ctx, to, false); derr != nil {
		return derr
	}
	return s.api.Move(ctx, from, to)
}

func asApiError(err error, target **ApiError) bool {
	ae, ok := err.(*ApiError)
	if !ok {
		return false
	}
	*target = ae
	return true
}

// GetStatus fetches metadata for path.
func (s *Session) GetStatus(ctx context.Context, p string) (FileInfo, error) {
	return s.api.GetStatus(ctx, s.resolve(p))
}

// FileTestE reports whether path exists.
func (s *Session) FileTestE(ctx context.Context, p string) (bool, error) {
	_, err := s.GetStatus(ctx, p)
	if err == nil {
		return true, nil
	}
	if errIsNotFound(err) {
		return false, nil
	}
	return false, err
}

// FileTestD reports whether path exists and is a directory.
func (s *Session) FileTestD(ctx context.Context, p string) (bool, error) {
	fi, err := s.GetStatus(ctx, p)
	if err != nil {
		if errIsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return fi.IsDir, nil
}

// FileTestF reports whether path exists and is a plain file.
func (s *Session) FileTestF(ctx context.Context, p string) (bool, error) {
	fi, err := s.GetStatus(ctx, p)
	if err != nil {
		if errIsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return !fi.IsDir, nil
}

func errIsNotFound(err error) bool {
	var ae *ApiError
	return asApiError(err, &ae) && ae.Code == "RESOURCE_DOES_NOT_EXIST"
}

// Put uploads a local file to a remote path.
func (s *Session) Put(ctx context.Context, srcLocal, target string, overwrite bool, progress ProgressFunc) error {
	return UploadFile(ctx, s.api, srcLocal, s.resolve(target), overwrite, s.cfg.ChunkSize, progress, s.log)
}

// Get downloads a remote file to a local path.
func (s *Session) Get(ctx context.Context, src, dstLocal string, overwrite bool, progress ProgressFunc) error {
	swarm := NewFIFOSwarm(ctx, s.cfg.Workers, s.cfg.Workers)
	return swarm.RunWhile(ctx, func(ctx context.Context) error {
		return DownloadToFile(ctx, s.api, s.resolve(src), dstLocal, overwrite, swarm, s.cfg.ChunkSize, progress)
	})
}

// GetToTemp downloads src to a newly created temp file and returns its path.
// The caller owns the returned file and is responsible for removing it.
func (s *Session) GetToTemp(ctx context.Context, src string, progress ProgressFunc) (string, error) {
	tmp, err := os.CreateTemp("", "fastdbfs-get-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	tmp.Close()

	swarm := NewFIFOSwarm(ctx, s.cfg.Workers, s.cfg.Workers)
	err = swarm.RunWhile(ctx, func(ctx context.Context) error {
		return DownloadToFile(ctx, s.api, s.resolve(src), tmpPath, true, swarm, s.cfg.ChunkSize, progress)
	})
	if err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}

// Find recursively walks path, applying bundle and the optional filter, and
// calls cb for every entry in ascending path order.
func (s *Session) Find(ctx context.Context, p string, bundle PredicateBundle, filter ExternalFilterFunc, cb func(*WalkEntry)) error {
	return WalkRemote(ctx, s.api, WalkOptions{Root: s.resolve(p), Bundle: bundle, Workers: s.cfg.Workers, Filter: filter}, cb)
}

// RGet recursively downloads src to a local directory target.
func (s *Session) RGet(ctx context.Context, src, target string, overwrite, sync bool, bundle PredicateBundle, filter ExternalFilterFunc, progress ProgressFunc, cb func(*WalkEntry)) error {
	low := NewFIFOSwarm(ctx, s.cfg.Workers, s.cfg.Workers)
	low.Start()
	defer func() {
		low.Terminate()
		low.Wait()
	}()
	dir := NewRGetDirection(s.api, low, s.cfg.ChunkSize, progress)
	return Mirror(ctx, dir, MirrorOptions{
		Src: s.resolve(src), Target: target, Overwrite: overwrite, Sync: sync,
		Bundle: bundle, Filter: filter, Workers: s.cfg.Workers,
	}, cb)
}

// RPut recursively uploads a local directory src to a remote target.
func (s *Session) RPut(ctx context.Context, src, target string, overwrite bool, progress ProgressFunc, cb func(*WalkEntry)) error {
	dir := NewRPutDirection(s.api, s.cfg.ChunkSize, progress)
	return Mirror(ctx, dir, MirrorOptions{
		Src: src, Target: s.resolve(target), Overwrite: overwrite, Sync: false,
		Workers: s.cfg.Workers,
	}, cb)
}

// String renders a Session for debugging/logging.
func (s *Session) String() string {
	return fmt.Sprintf("Session{host=%s, cwd=%s}", s.cfg.Host, s.Pwd())
}
