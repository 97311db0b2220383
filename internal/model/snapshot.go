package model

import "encoding/json"

// Metadata is the persisted write-time metadata, stored in metadata.json.
// LastWriteTime is Unix milliseconds; the authoritative value between the
// local and remote copies is whichever is numerically larger.
type Metadata struct {
	LastWriteTime int64 `json:"lastWriteTime"`
}

// SnapshotFile is one JSON file in a full-tree snapshot. Path is relative
// to the data directory, slash-separated.
type SnapshotFile struct {
	Path    string          `json:"path"`
	Content json.RawMessage `json:"content"`
}

// Snapshot is a complete read-only copy of the local data tree, tagged with
// the write-time metadata current at the time of the walk.
type Snapshot struct {
	Files         []SnapshotFile `json:"files"`
	LastWriteTime int64          `json:"last_write_time"`
}

// ArchiveSnapshotData is the payload of the archive's snapshot endpoint.
type ArchiveSnapshotData struct {
	Files    []SnapshotFile `json:"files"`
	Metadata Metadata       `json:"metadata"`
}

// ArchiveSnapshotResponse is the envelope returned by the archive's
// snapshot-with-metadata endpoint.
type ArchiveSnapshotResponse struct {
	Success bool                `json:"success"`
	Data    ArchiveSnapshotData `json:"data"`
}
