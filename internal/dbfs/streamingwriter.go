// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// UploadFile implements the sequential handle-based upload: small files go
// through a single put call; larger files use create/add-block/close, then
// verify the reported remote size matches bytes sent.
func UploadFile(ctx context.Context, backend Backend, localPath, remotePath string, overwrite bool, chunkSize int64, progress ProgressFunc, log *logrus.Entry) error {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	size := st.Size()

	if size <= chunkSize {
		contents := make([]byte, size)
		if _, err := io.ReadFull(f, contents); err != nil && err != io.EOF {
			return err
		}
		if err := backend.Put(ctx, remotePath, contents, overwrite); err != nil {
			return err
		}
		if progress != nil {
			progress(remotePath, size, size)
		}
		return nil
	}

	handle, err := backend.Create(ctx, remotePath, overwrite)
	if err != nil {
		return err
	}

	buf := make([]byte, chunkSize)
	var sent int64
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if err := backend.AddBlock(ctx, handle, buf[:n]); err != nil {
				return err
			}
			sent += int64(n)
			if progress != nil {
				progress(remotePath, sent, size)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}

	if err := backend.CloseHandle(ctx, handle); err != nil {
		return err
	}

	remoteFi, err := backend.GetStatus(ctx, remotePath)
	if err != nil {
		return err
	}
	if remoteFi.Size != sent {
		if derr := backend.Delete(ctx, remotePath, false); derr != nil {
			log.WithField("path", remotePath).WithError(derr).Warn("failed to delete corrupt upload")
		}
		return &CorruptionError{Path: remotePath, Expected: sent, Actual: remoteFi.Size}
	}

	return nil
}
