package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"medauth/core/storage"
)

// Event is one immutable audit record. Every issuance, verification,
// registration and revocation emits exactly one. Entries are hash-chained:
// EntryHash covers the fields plus PrevHash, so rewriting history breaks
// the chain.
type Event struct {
	EventID   string            `json:"eventID"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"eventType"` // "issuance", "verification", "revocation", "registration", "anchoring"
	RecordID  string            `json:"recordID"`  // payload hash or issuer ID
	Outcome   string            `json:"outcome"`
	Detail    map[string]string `json:"detail,omitempty"`
	PrevHash  string            `json:"prevHash"`
	EntryHash string            `json:"entryHash"`
}

// Logger is the audit emission boundary. Durability and querying are the
// sink's concern; emission is fire-and-forget.
type Logger interface {
	LogEvent(event Event)
}

// Sink persists finished events.
type Sink interface {
	Write(event Event) error
}

// ChainLogger assigns IDs, timestamps and chain hashes, then hands the
// event to its sink. Sink failures are logged, never surfaced: audit
// emission must not fail the operation being audited.
type ChainLogger struct {
	mu       sync.Mutex
	sink     Sink
	prevHash string
}

// NewChainLogger starts a chain logger. When the sink knows where a
// previous run left off, the chain resumes from that entry instead of
// starting over.
func NewChainLogger(sink Sink) *ChainLogger {
	l := &ChainLogger{sink: sink}
	if r, ok := sink.(interface{ LastEntryHash() string }); ok {
		l.prevHash = r.LastEntryHash()
	}
	return l
}

func (l *ChainLogger) LogEvent(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.PrevHash = l.prevHash
	event.EntryHash = entryHash(event)
	l.prevHash = event.EntryHash

	if l.sink != nil {
		if err := l.sink.Write(event); err != nil {
			log.Printf("[audit] sink write failed for %s: %v", event.EventID, err)
		}
	}
}

// entryHash covers every field except EntryHash itself, in a fixed order.
func entryHash(e Event) string {
	h := sha256.New()
	h.Write([]byte(e.EventID))
	h.Write([]byte(e.Timestamp.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte(e.EventType))
	h.Write([]byte(e.RecordID))
	h.Write([]byte(e.Outcome))
	keys := make([]string, 0, len(e.Detail))
	for k := range e.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte(e.Detail[k]))
	}
	h.Write([]byte(e.PrevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// StdoutSink prints events; used in dev mode and tests.
type StdoutSink struct{}

func (StdoutSink) Write(event Event) error {
	fmt.Printf("[%s] [%s] Record: %s, Outcome: %s, Detail: %+v\n",
		event.Timestamp.Format(time.RFC3339), event.EventType, event.RecordID, event.Outcome, event.Detail)
	return nil
}

// StorageSink appends events to the encrypted leveldb under
// storage.PrefixAudit with a monotonically increasing sequence key.
// The trail is append-only: a restart resumes after the last persisted
// entry, it never rewrites one.
type StorageSink struct {
	mu       sync.Mutex
	db       *storage.Storage
	seq      uint64
	lastHash string
}

// NewStorageSink opens the audit trail, resuming after the highest
// persisted sequence. Keys are zero-padded, so the lexicographic maximum
// is the numeric maximum.
func NewStorageSink(db *storage.Storage) *StorageSink {
	s := &StorageSink{db: db}
	keys, err := db.ListKeys(storage.PrefixAudit)
	if err != nil || len(keys) == 0 {
		return s
	}
	last := keys[0]
	for _, k := range keys[1:] {
		if k > last {
			last = k
		}
	}
	n, err := strconv.ParseUint(last, 10, 64)
	if err != nil {
		return s
	}
	s.seq = n + 1
	if data, err := db.Get(storage.PrefixAudit + last); err == nil {
		var e Event
		if json.Unmarshal(data, &e) == nil {
			s.lastHash = e.EntryHash
		}
	}
	return s
}

// LastEntryHash reports the hash of the most recently persisted entry so
// a restarted ChainLogger can continue the chain.
func (s *StorageSink) LastEntryHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHash
}

func (s *StorageSink) Write(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%020d", storage.PrefixAudit, s.seq)
	if err := s.db.Put(key, data); err != nil {
		return err
	}
	s.seq++
	s.lastHash = event.EntryHash
	return nil
}

// NopLogger discards events. Handy for benchmarks and some tests.
type NopLogger struct{}

func (NopLogger) LogEvent(Event) {}
