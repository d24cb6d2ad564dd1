package driver

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// eventLog is the per-run append-only `logs.jsonl` event stream.
type eventLog struct {
	path string
	mu   sync.Mutex
}

func openEventLog(runDir string) (*eventLog, error) {
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, err
	}
	return &eventLog{path: filepath.Join(runDir, "logs.jsonl")}, nil
}

// Append writes one JSON event line, stamped with the current time.
func (e *eventLog) Append(event map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	event["ts"] = time.Now().Format(time.RFC3339Nano)

	f, err := os.OpenFile(e.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}
