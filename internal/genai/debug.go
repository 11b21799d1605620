package genai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// debugLog writes one JSON file per model call under <stateDir>/debug.
// A nil *debugLog discards everything.
type debugLog struct {
	dir string
	seq atomic.Uint64
}

func newDebugLog(o Opts) *debugLog {
	if !o.DebugMode || o.StateDir == "" {
		return nil
	}
	return &debugLog{dir: filepath.Join(o.StateDir, "debug")}
}

type debugEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	Model     string    `json:"model"`
	Params    any       `json:"params"`
	Response  any       `json:"response"`
	Error     string    `json:"error,omitempty"`
}

func (d *debugLog) write(method, model string, params, response any, callErr error) {
	if d == nil {
		return
	}
	entry := debugEntry{
		Timestamp: time.Now().UTC(),
		Method:    method,
		Model:     model,
		Params:    params,
		Response:  response,
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("genai.debugLog: marshal failed", "error", err, "method", method)
		return
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		slog.Warn("genai.debugLog: create directory failed", "error", err, "dir", d.dir)
		return
	}
	name := fmt.Sprintf("%s_%06d_%s.json", entry.Timestamp.Format("20060102T150405"), d.seq.Add(1), method)
	if err := os.WriteFile(filepath.Join(d.dir, name), data, 0o644); err != nil {
		slog.Warn("genai.debugLog: write failed", "error", err, "file", name)
	}
}
