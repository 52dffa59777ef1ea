// Package domain holds the plain data types shared across the sandbox
// runtime: function metadata, network policy rules, and the invocation
// request/response records that cross the engine's front door (§6.1 of the
// design). None of these types carry behaviour beyond small helpers; they
// exist so every package speaks the same vocabulary.
package domain

import (
	"encoding/json"
	"time"
)

// Function is the metadata record the platform's metadata store (§6.5)
// returns for a functionId: which project owns it, which package digest is
// currently active, and the environment variables to inject into the guest.
type Function struct {
	ID             string            `json:"id"`
	Project        string            `json:"project"`
	ActiveVersion  int               `json:"active_version"`
	PackageDigest  string            `json:"package_digest"`
	PackagePath    string            `json:"package_path"`
	SizeBytes      int64             `json:"size_bytes,omitempty"`
	EnvVars        map[string]string `json:"env_vars,omitempty"`
	MemoryMB       int               `json:"memory_mb,omitempty"`
	TimeoutMs      int               `json:"timeout_ms,omitempty"`
	TrafficSplit   map[int]int       `json:"traffic_split,omitempty"` // version -> percentage, must sum to 100
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// MarshalBinary/UnmarshalBinary let a Function be stored directly as a
// cache.Cache value (the interface trades in []byte).
func (f *Function) MarshalBinary() ([]byte, error) {
	return json.Marshal(f)
}

func (f *Function) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, f)
}

// LogEntry is one console.* call captured during an invocation (§3).
type LogEntry struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// InvokeRequest is the input record handed to the engine's front door (§6.1).
// All string-keyed maps are keyed exactly as the caller supplied them,
// except Headers which is always lowercased by the front door before this
// record is constructed.
type InvokeRequest struct {
	FunctionID  string            `json:"function_id"`
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	OriginalURL string            `json:"original_url"`
	Path        string            `json:"path"`
	Protocol    string            `json:"protocol"`
	Hostname    string            `json:"hostname"`
	Secure      bool              `json:"secure"`
	IP          string            `json:"ip"`
	IPs         []string          `json:"ips,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
	Query       map[string]string `json:"query,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// InvokeResponse is the output record returned by the engine (§6.1).
// Exactly one of (Data-bearing success) or Error is meaningful; Error is
// non-empty only on the 404/500/503/504 paths described in §7.
type InvokeResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Data       json.RawMessage   `json:"data,omitempty"`
	Logs       []LogEntry        `json:"logs,omitempty"`
	Error      string            `json:"error,omitempty"`
}
