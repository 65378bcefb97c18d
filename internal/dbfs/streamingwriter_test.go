// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestUploadFileSmallFileUsesPut(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "small.txt")
	if err := os.WriteFile(local, []byte("tiny"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b := newFakeBackend()
	ctx := context.Background()
	if err := UploadFile(ctx, b, local, "/small.txt", false, defaultChunkSize, nil, nil); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	fi, err := b.GetStatus(ctx, "/small.txt")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if fi.Size != 4 {
		t.Fatalf("expected 4 bytes uploaded, got %d", fi.Size)
	}
	if b.nextH != 0 {
		t.Fatalf("small upload must not open a streaming handle")
	}
}

func TestUploadFileLargeFileUsesHandleProtocol(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "big.bin")
	contents := bytes.Repeat([]byte("abcdefgh"), 100) // 800 bytes
	if err := os.WriteFile(local, contents, 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b := newFakeBackend()
	ctx := context.Background()
	var chunkSize int64 = 64
	if err := UploadFile(ctx, b, local, "/big.bin", false, chunkSize, nil, nil); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if b.nextH != 1 {
		t.Fatalf("expected exactly one streaming handle to be opened, got %d", b.nextH)
	}
	fi, err := b.GetStatus(ctx, "/big.bin")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if fi.Size != int64(len(contents)) {
		t.Fatalf("expected %d bytes, got %d", len(contents), fi.Size)
	}
	got, err := b.Read(ctx, "/big.bin", 0, int64(len(contents)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, contents) {
		t.Fatalf("uploaded content mismatch")
	}
}

func TestUploadFileReportsProgress(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "big.bin")
	contents := bytes.Repeat([]byte("z"), 200)
	if err := os.WriteFile(local, contents, 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b := newFakeBackend()
	ctx := context.Background()
	var lastDone, lastTotal int64
	progress := func(path string, done, total int64) {
		lastDone, lastTotal = done, total
	}
	if err := UploadFile(ctx, b, local, "/big.bin", false, 32, progress, nil); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if lastDone != int64(len(contents)) || lastTotal != int64(len(contents)) {
		t.Fatalf("expected final progress to report completion, got done=%d total=%d", lastDone, lastTotal)
	}
}

func TestUploadFileRefusesExistingWithoutOverwrite(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "small.txt")
	if err := os.WriteFile(local, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b := newFakeBackend()
	ctx := context.Background()
	if err := UploadFile(ctx, b, local, "/small.txt", false, defaultChunkSize, nil, nil); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	err := UploadFile(ctx, b, local, "/small.txt", false, defaultChunkSize, nil, nil)
	if err == nil {
		t.Fatalf("expected the second upload without overwrite to fail")
	}
}
