package memodb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"

	"github.com/soundpin/soundpin/internal/jsonfile"
)

const (
	indexFilename = "memos.json"
	audioDirName  = "audio"
)

// Record is the metadata entry of one persisted voice memo. Records are
// immutable once created; corrections require delete and recreate.
type Record struct {
	ID           string    `json:"id"`
	PayloadPath  string    `json:"payload_path"`
	PlayablePath string    `json:"playable_path"`
	CreatedAt    time.Time `json:"created_at"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	Label        string    `json:"label"`
	DurationMs   int       `json:"duration_ms"`
	MimeType     string    `json:"mime_type"`
}

// HasLocation returns whether the record carries a location snapshot. The
// (0,0) coordinate is the documented sentinel for "no location available",
// so a genuine reading at that exact coordinate is indistinguishable from an
// absent one.
func (r *Record) HasLocation() bool {
	return r.Lat != 0 || r.Lon != 0
}

// NewID generates a fresh globally unique record id.
func NewID() string {
	return uuid.NewString()
}

// extensionForMime returns the payload file extension appropriate for
// containers of the given mime type.
func extensionForMime(mime string) string {
	switch mime {
	case "audio/m4a", "audio/mp4", "audio/x-m4a":
		return "m4a"
	case "audio/aac":
		return "aac"
	case "audio/ogg":
		return "ogg"
	case "audio/wav", "audio/wave":
		return "wav"
	default:
		return "bin"
	}
}

// DB is an append-only, filesystem-backed store of memo records. Payloads
// live under an audio/ subdir keyed by record id; the index is a single JSON
// file holding all records, newest first. Insertion order is authoritative.
type DB struct {
	root string
	log  slog.Logger

	// mtx serializes the index read-modify-write cycle for callers in
	// this process. There is no cross-process guard; correctness depends
	// on the single active session invariant.
	mtx sync.Mutex
}

// New opens (or creates) a store rooted at the given directory.
func New(root string, log slog.Logger) (*DB, error) {
	if log == nil {
		log = slog.Disabled
	}
	if err := os.MkdirAll(filepath.Join(root, audioDirName), 0o700); err != nil {
		return nil, fmt.Errorf("unable to create store dir: %w", err)
	}
	return &DB{root: root, log: log}, nil
}

func (db *DB) indexPath() string {
	return filepath.Join(db.root, indexFilename)
}

func (db *DB) readIndex() ([]Record, error) {
	var recs []Record
	err := jsonfile.Read(db.indexPath(), &recs)
	if err == jsonfile.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read index: %w", err)
	}
	return recs, nil
}

// Append persists the payload under a fresh location keyed by the record id,
// then prepends the record to the index. The two writes are not atomic as a
// unit: an interruption in between leaves an orphaned payload behind, never
// a corrupted index. The returned record has its payload references filled
// in.
func (db *DB) Append(rec Record, payload []byte) (Record, error) {
	if rec.ID == "" {
		return Record{}, fmt.Errorf("record has no id")
	}
	if len(payload) == 0 {
		return Record{}, fmt.Errorf("refusing to persist empty payload")
	}

	db.mtx.Lock()
	defer db.mtx.Unlock()

	relPath := filepath.Join(audioDirName, rec.ID+"."+extensionForMime(rec.MimeType))
	rec.PayloadPath = relPath
	rec.PlayablePath = filepath.Join(db.root, relPath)

	if err := os.WriteFile(rec.PlayablePath, payload, 0o600); err != nil {
		return Record{}, fmt.Errorf("unable to write payload: %w", err)
	}

	recs, err := db.readIndex()
	if err != nil {
		return Record{}, err
	}
	recs = append([]Record{rec}, recs...)
	if err := jsonfile.Write(db.indexPath(), recs, db.log); err != nil {
		return Record{}, fmt.Errorf("unable to write index: %w", err)
	}

	db.log.Debugf("Appended record %s (%d payload bytes)", rec.ID, len(payload))
	return rec, nil
}

// List returns all records in index order (newest first). A missing or
// unreadable index yields an empty list so that a first run never errors.
func (db *DB) List() []Record {
	db.mtx.Lock()
	defer db.mtx.Unlock()

	recs, err := db.readIndex()
	if err != nil {
		db.log.Warnf("Unable to read memo index: %v", err)
		return nil
	}
	return recs
}

// ReadPayload returns the binary payload bytes of a record.
func (db *DB) ReadPayload(rec Record) ([]byte, error) {
	return os.ReadFile(filepath.Join(db.root, rec.PayloadPath))
}

// PlayablePath resolves the reference usable by the local playback engine.
func (db *DB) PlayablePath(rec Record) string {
	if rec.PlayablePath != "" {
		return rec.PlayablePath
	}
	return filepath.Join(db.root, rec.PayloadPath)
}
