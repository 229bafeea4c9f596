// Package audit writes a structured record of every network allow-set
// mutation mori's orchestrator makes, so an operator can reconstruct which
// addresses a confined child was ever permitted to reach and when.
// Grounded on core/audit.go's pooled-struct JSON-encode-to-writer pattern
// (AuditEntry/WriteLog/auditPool), retargeted from DNS-proxy client/domain
// logging to network-allow-set mutation logging — the concern mori actually
// has, since its DNS resolution is a client-side lookup, not a proxied
// query a remote client makes.
package audit

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Action identifies what kind of allow-set mutation an Entry records.
type Action string

const (
	ActionInsert Action = "insert"
	ActionRemove Action = "remove"
)

// Entry is one network allow-set mutation, attributable to either a static
// policy entry, a domain's resolved address, or a nameserver.
type Entry struct {
	Timestamp int64  `json:"ts"`
	Action    Action `json:"action"`
	IPv4      string `json:"ipv4"`
	Source    string `json:"source"` // "static", "domain:<name>", or "nameserver"
}

// entryPool reduces allocation pressure on the refresh task's hot path,
// which can emit a handful of entries every refresh interval for the
// lifetime of a long-running child.
var entryPool = sync.Pool{
	New: func() interface{} {
		return &Entry{}
	},
}

// Logger writes Entry records to w as newline-delimited JSON. The zero
// value is unusable; construct with New.
type Logger struct {
	mu sync.Mutex
	w  io.Writer
}

// New constructs a Logger writing to w (cmd/mori passes os.Stderr).
func New(w io.Writer) *Logger {
	return &Logger{w: w}
}

// Record writes one mutation record.
func (l *Logger) Record(action Action, ipv4, source string) error {
	v := entryPool.Get()
	entry := v.(*Entry)
	entry.Timestamp = time.Now().Unix()
	entry.Action = action
	entry.IPv4 = ipv4
	entry.Source = source

	l.mu.Lock()
	err := json.NewEncoder(l.w).Encode(entry)
	l.mu.Unlock()

	entry.IPv4 = ""
	entry.Source = ""
	entry.Timestamp = 0
	entryPool.Put(entry)
	return err
}
