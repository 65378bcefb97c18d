// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
)

// testServer wires an httptest.Server speaking the same wire protocol
// ApiClient expects directly on top of a fakeBackend, so Session/ApiClient
// integration tests can run against something resembling a real DBFS host
// without any network dependency.
type testServer struct {
	*httptest.Server
	backend         *fakeBackend
	rateLimitHeader string
	rateLimitOnce   bool // if true, the next call gets one 429 before succeeding
}

func newTestServer(backend *fakeBackend) *testServer {
	ts := &testServer{backend: backend, rateLimitHeader: "X-RateLimit-Exceeded"}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.handle))
	return ts
}

func (ts *testServer) handle(w http.ResponseWriter, r *http.Request) {
	ctx := context.Background()
	op := r.URL.Path[len("/api/2.0/dbfs/"):]

	if ts.rateLimitOnce {
		ts.rateLimitOnce = false
		w.Header().Set(ts.rateLimitHeader, "true")
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	var params map[string]any
	if r.Method == http.MethodGet {
		params = map[string]any{}
		for k, v := range r.URL.Query() {
			params[k] = v[0]
		}
	} else {
		_ = json.NewDecoder(r.Body).Decode(&params)
	}

	switch op {
	case "get-status":
		fi, err := ts.backend.GetStatus(ctx, str(params, "path"))
		if err != nil {
			ts.writeError(w, err)
			return
		}
		ts.writeJSON(w, statusJSON(fi))
	case "list":
		files, err := ts.backend.List(ctx, str(params, "path"))
		if err != nil {
			ts.writeError(w, err)
			return
		}
		out := make([]map[string]any, len(files))
		for i, f := range files {
			out[i] = statusJSON(f)
		}
		ts.writeJSON(w, map[string]any{"files": out})
	case "mkdirs":
		if err := ts.backend.Mkdirs(ctx, str(params, "path")); err != nil {
			ts.writeError(w, err)
			return
		}
		ts.writeJSON(w, map[string]any{})
	case "delete":
		if err := ts.backend.Delete(ctx, str(params, "path"), boolp(params, "recursive")); err != nil {
			ts.writeError(w, err)
			return
		}
		ts.writeJSON(w, map[string]any{})
	case "move":
		if err := ts.backend.Move(ctx, str(params, "source_path"), str(params, "destination_path")); err != nil {
			ts.writeError(w, err)
			return
		}
		ts.writeJSON(w, map[string]any{})
	case "create":
		h, err := ts.backend.Create(ctx, str(params, "path"), boolp(params, "overwrite"))
		if err != nil {
			ts.writeError(w, err)
			return
		}
		ts.writeJSON(w, map[string]any{"handle": h})
	case "add-block":
		hv, _ := params["handle"].(float64)
		handle := int64(hv)
		data, _ := base64.StdEncoding.DecodeString(str(params, "data"))
		if err := ts.backend.AddBlock(ctx, handle, data); err != nil {
			ts.writeError(w, err)
			return
		}
		ts.writeJSON(w, map[string]any{})
	case "close":
		hv, _ := params["handle"].(float64)
		handle := int64(hv)
		if err := ts.backend.CloseHandle(ctx, handle); err != nil {
			ts.writeError(w, err)
			return
		}
		ts.writeJSON(w, map[string]any{})
	case "put":
		data, _ := base64.StdEncoding.DecodeString(str(params, "contents"))
		if err := ts.backend.Put(ctx, str(params, "path"), data, boolp(params, "overwrite")); err != nil {
			ts.writeError(w, err)
			return
		}
		ts.writeJSON(w, map[string]any{})
	case "read":
		offset, _ := strconv.ParseInt(str(params, "offset"), 10, 64)
		length, _ := strconv.ParseInt(str(params, "length"), 10, 64)
		data, err := ts.backend.Read(ctx, str(params, "path"), offset, length)
		if err != nil {
			ts.writeError(w, err)
			return
		}
		ts.writeJSON(w, map[string]any{"bytes_read": len(data), "data": base64.StdEncoding.EncodeToString(data)})
	default:
		http.NotFound(w, r)
	}
}

func (ts *testServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func (ts *testServer) writeError(w http.ResponseWriter, err error) {
	ae, ok := err.(*ApiError)
	if !ok {
		ae = &ApiError{Code: "INTERNAL_ERROR", Message: err.Error(), StatusCode: http.StatusInternalServerError}
	}
	status := ae.StatusCode
	if status == 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error_code": ae.Code, "message": ae.Message})
}

func statusJSON(fi FileInfo) map[string]any {
	return map[string]any{
		"path":              fi.AbsPath,
		"is_dir":            fi.IsDir,
		"file_size":         fi.Size,
		"modification_time": fi.MTimeMS,
	}
}

func str(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func boolp(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	switch vv := v.(type) {
	case bool:
		return vv
	case string:
		return vv == "true"
	}
	return false
}
