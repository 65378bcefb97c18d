// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import "context"

// Backend is the subset of ApiClient's surface consumed by Walker, Mirror,
// ChunkedReader and StreamingWriter. Extracted as an interface so tests can
// exercise those components against an in-memory fake instead of a real
// DBFS server.
type Backend interface {
	GetStatus(ctx context.Context, path string) (FileInfo, error)
	List(ctx context.Context, path string) ([]FileInfo, error)
	Mkdirs(ctx context.Context, path string) error
	Delete(ctx context.Context, path string, recursive bool) error
	Move(ctx context.Context, src, dst string) error
	Create(ctx context.Context, path string, overwrite bool) (int64, error)
	AddBlock(ctx context.Context, handle int64, block []byte) error
	CloseHandle(ctx context.Context, handle int64) error
	Put(ctx context.Context, path string, contents []byte, overwrite bool) error
	Read(ctx context.Context, path string, offset, length int64) ([]byte, error)
}

var _ Backend = (*ApiClient)(nil)
