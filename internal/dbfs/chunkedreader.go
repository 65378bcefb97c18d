// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// ProgressFunc reports cumulative bytes transferred for a single file.
// done is monotonically non-decreasing within one operation, but may jump
// by more than one chunk between calls.
type ProgressFunc func(path string, done, total int64)

const defaultChunkSize = 1 << 20 // 1 MiB default chunk size.

// DownloadChunked fetches status, fans out range reads across swarm, and
// writes each chunk to out at its exact offset. Chunks may complete out of
// order; the final content is correct because every write targets an
// explicit offset.
func DownloadChunked(ctx context.Context, backend Backend, src string, out io.WriterAt, swarm *Swarm, chunkSize int64, progress ProgressFunc) (int64, error) {
	fi, err := backend.GetStatus(ctx, src)
	if err != nil {
		return 0, err
	}
	size := fi.Size
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	numChunks := 0
	for offset := int64(0); offset < size; offset += chunkSize {
		numChunks++
	}
	if numChunks == 0 {
		if progress != nil {
			progress(src, 0, size)
		}
		return size, nil
	}

	respCh := make(chan TaskOutcome, numChunks)
	var bytesCopied int64
	var firstErr error

	drainReady := func() {
		for firstErr == nil {
			select {
			case res := <-respCh:
				numChunks--
				if res.Err != nil {
					firstErr = res.Err
					continue
				}
				bytesCopied += res.Value.(int64)
				if progress != nil {
					progress(src, bytesCopied, size)
				}
			default:
				return
			}
		}
	}

	for offset := int64(0); offset < size; offset += chunkSize {
		length := chunkSize
		if offset+length > size {
			length = size - offset
		}
		off, ln := offset, length
		swarm.Put(&SwarmTask{
			Key: swarm.NextKey(),
			Run: func(ctx context.Context) (any, error) {
				data, err := readFull(ctx, backend, src, off, ln)
				if err != nil {
					return nil, err
				}
				if _, err := out.WriteAt(data, off); err != nil {
					return nil, err
				}
				return ln, nil
			},
			Response: respCh,
		})
		drainReady()
	}

	for numChunks > 0 {
		res := <-respCh
		numChunks--
		if res.Err != nil {
			if firstErr == nil {
				firstErr = res.Err
			}
			continue
		}
		bytesCopied += res.Value.(int64)
		if progress != nil {
			progress(src, bytesCopied, size)
		}
	}

	if firstErr != nil {
		return bytesCopied, firstErr
	}
	return size, nil
}

// readFull loops internally until its window is filled: the backend's read
// may return fewer bytes than requested.
func readFull(ctx context.Context, backend Backend, path string, offset, length int64) ([]byte, error) {
	buf := make([]byte, 0, length)
	for int64(len(buf)) < length {
		remaining := length - int64(len(buf))
		chunk, err := backend.Read(ctx, path, offset+int64(len(buf)), remaining)
		if err != nil {
			return nil, err
		}
		if int64(len(chunk)) <= 0 || int64(len(chunk)) > remaining {
			return nil, &ProtocolError{Reason: "read returned a length outside (0, remaining]"}
		}
		buf = append(buf, chunk...)
	}
	return buf, nil
}

// DownloadToFile wraps DownloadChunked with the atomic-temp-file idiom:
// write to a sibling temp file, rename into place on success, remove the
// temp file on any failure.
func DownloadToFile(ctx context.Context, backend Backend, src, dstPath string, overwrite bool, swarm *Swarm, chunkSize int64, progress ProgressFunc) error {
	if !overwrite {
		if _, err := os.Stat(dstPath); err == nil {
			return &ApiError{Code: "RESOURCE_ALREADY_EXISTS", Message: "local target already exists: " + dstPath}
		} else if !os.IsNotExist(err) {
			return err
		}
	}

	dir := filepath.Dir(dstPath)
	tmp, err := os.CreateTemp(dir, ".fastdbfs-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := DownloadChunked(ctx, backend, src, tmp, swarm, chunkSize, progress); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		return err
	}
	tmpPath = ""
	return nil
}
