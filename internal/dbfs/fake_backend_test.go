// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
)

// fakeBackend is an in-memory Backend used to exercise Walker, Mirror,
// ChunkedReader and StreamingWriter without a real DBFS server.
type fakeBackend struct {
	mu          sync.Mutex
	dirs        map[string]bool
	files       map[string][]byte
	mtimeMS     map[string]int64
	handles     map[int64][]byte
	handlePaths map[int64]string
	nextH       int64
}

var _ Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		dirs:        map[string]bool{"/": true},
		files:       map[string][]byte{},
		mtimeMS:     map[string]int64{},
		handles:     map[int64][]byte{},
		handlePaths: map[int64]string{},
	}
}

// mkdirsLocked creates path and every missing ancestor. Caller holds mu.
func (b *fakeBackend) mkdirsLocked(p string) {
	p = normalizeRemotePath(p)
	parts := strings.Split(strings.Trim(p, "/"), "/")
	cur := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		cur += "/" + part
		b.dirs[cur] = true
	}
}

// putFile seeds a file directly, bypassing the handle protocol, for test setup.
func (b *fakeBackend) putFile(p string, contents []byte, mtimeMS int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p = normalizeRemotePath(p)
	b.mkdirsLocked(path.Dir(p))
	b.files[p] = contents
	b.mtimeMS[p] = mtimeMS
}

func (b *fakeBackend) GetStatus(ctx context.Context, p string) (FileInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p = normalizeRemotePath(p)
	if b.dirs[p] {
		return NewRemoteFileInfo(true, 0, 0, p), nil
	}
	if data, ok := b.files[p]; ok {
		return NewRemoteFileInfo(false, int64(len(data)), b.mtimeMS[p], p), nil
	}
	return FileInfo{}, &ApiError{Code: "RESOURCE_DOES_NOT_EXIST", Message: p, StatusCode: 404}
}

func (b *fakeBackend) List(ctx context.Context, p string) ([]FileInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p = normalizeRemotePath(p)
	if !b.dirs[p] {
		return nil, &ApiError{Code: "RESOURCE_DOES_NOT_EXIST", Message: p, StatusCode: 404}
	}
	prefix := p
	if prefix != "/" {
		prefix += "/"
	}
	var out []FileInfo
	for d := range b.dirs {
		if d == p || !strings.HasPrefix(d, prefix) {
			continue
		}
		if strings.Contains(strings.TrimPrefix(d, prefix), "/") {
			continue
		}
		out = append(out, NewRemoteFileInfo(true, 0, 0, d))
	}
	for f, data := range b.files {
		if !strings.HasPrefix(f, prefix) {
			continue
		}
		if strings.Contains(strings.TrimPrefix(f, prefix), "/") {
			continue
		}
		out = append(out, NewRemoteFileInfo(false, int64(len(data)), b.mtimeMS[f], f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AbsPath < out[j].AbsPath })
	return out, nil
}

func (b *fakeBackend) Mkdirs(ctx context.Context, p string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mkdirsLocked(p)
	return nil
}

func (b *fakeBackend) Delete(ctx context.Context, p string, recursive bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p = normalizeRemotePath(p)
	if _, ok := b.files[p]; ok {
		delete(b.files, p)
		delete(b.mtimeMS, p)
		return nil
	}
	if !b.dirs[p] {
		return &ApiError{Code: "RESOURCE_DOES_NOT_EXIST", Message: p, StatusCode: 404}
	}
	prefix := p + "/"
	hasChildren := false
	for d := range b.dirs {
		if strings.HasPrefix(d, prefix) {
			hasChildren = true
			break
		}
	}
	for f := range b.files {
		if strings.HasPrefix(f, prefix) {
			hasChildren = true
			break
		}
	}
	if hasChildren && !recursive {
		return &ApiError{Code: "DIRECTORY_NOT_EMPTY", Message: p, StatusCode: 400}
	}
	delete(b.dirs, p)
	for d := range b.dirs {
		if strings.HasPrefix(d, prefix) {
			delete(b.dirs, d)
		}
	}
	for f := range b.files {
		if strings.HasPrefix(f, prefix) {
			delete(b.files, f)
			delete(b.mtimeMS, f)
		}
	}
	return nil
}

func (b *fakeBackend) Move(ctx context.Context, src, dst string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	src = normalizeRemotePath(src)
	dst = normalizeRemotePath(dst)
	if _, ok := b.dirs[dst]; ok {
		return &ApiError{Code: "RESOURCE_ALREADY_EXISTS", Message: dst, StatusCode: 400}
	}
	if _, ok := b.files[dst]; ok {
		return &ApiError{Code: "RESOURCE_ALREADY_EXISTS", Message: dst, StatusCode: 400}
	}
	if data, ok := b.files[src]; ok {
		b.mkdirsLocked(path.Dir(dst))
		b.files[dst] = data
		b.mtimeMS[dst] = b.mtimeMS[src]
		delete(b.files, src)
		delete(b.mtimeMS, src)
		return nil
	}
	if b.dirs[src] {
		b.mkdirsLocked(path.Dir(dst))
		b.dirs[dst] = true
		prefix := src + "/"
		for d := range b.dirs {
			if strings.HasPrefix(d, prefix) {
				b.dirs[dst+strings.TrimPrefix(d, src)] = true
				delete(b.dirs, d)
			}
		}
		for f, data := range b.files {
			if strings.HasPrefix(f, prefix) {
				nf := dst + strings.TrimPrefix(f, src)
				b.files[nf] = data
				b.mtimeMS[nf] = b.mtimeMS[f]
				delete(b.files, f)
				delete(b.mtimeMS, f)
			}
		}
		delete(b.dirs, src)
		return nil
	}
	return &ApiError{Code: "RESOURCE_DOES_NOT_EXIST", Message: src, StatusCode: 404}
}

func (b *fakeBackend) Create(ctx context.Context, p string, overwrite bool) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p = normalizeRemotePath(p)
	if _, ok := b.files[p]; ok && !overwrite {
		return 0, &ApiError{Code: "RESOURCE_ALREADY_EXISTS", Message: p, StatusCode: 400}
	}
	b.nextH++
	h := b.nextH
	b.handles[h] = []byte{}
	if b.handlePaths == nil {
		b.handlePaths = map[int64]string{}
	}
	b.handlePaths[h] = p
	return h, nil
}

func (b *fakeBackend) AddBlock(ctx context.Context, handle int64, block []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.handles[handle]
	if !ok {
		return &ApiError{Code: "RESOURCE_DOES_NOT_EXIST", Message: "no such handle", StatusCode: 404}
	}
	b.handles[handle] = append(buf, block...)
	return nil
}

func (b *fakeBackend) CloseHandle(ctx context.Context, handle int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.handles[handle]
	if !ok {
		return &ApiError{Code: "RESOURCE_DOES_NOT_EXIST", Message: "no such handle", StatusCode: 404}
	}
	p := b.handlePaths[handle]
	b.mkdirsLocked(path.Dir(p))
	b.files[p] = buf
	delete(b.handles, handle)
	delete(b.handlePaths, handle)
	return nil
}

func (b *fakeBackend) Put(ctx context.Context, p string, contents []byte, overwrite bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p = normalizeRemotePath(p)
	if _, ok := b.files[p]; ok && !overwrite {
		return &ApiError{Code: "RESOURCE_ALREADY_EXISTS", Message: p, StatusCode: 400}
	}
	b.mkdirsLocked(path.Dir(p))
	cp := make([]byte, len(contents))
	copy(cp, contents)
	b.files[p] = cp
	return nil
}

func (b *fakeBackend) Read(ctx context.Context, p string, offset, length int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p = normalizeRemotePath(p)
	data, ok := b.files[p]
	if !ok {
		return nil, &ApiError{Code: "RESOURCE_DOES_NOT_EXIST", Message: p, StatusCode: 404}
	}
	if offset >= int64(len(data)) {
		return []byte{}, nil
	}
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	out := make([]byte, end-offset)
	copy(out, data[offset:end])
	return out, nil
}
