package sqlite

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/scanprofile/internal/pointcloud"
)

// ErrNoSnapshot is returned by Latest when a session has no snapshot.
var ErrNoSnapshot = errors.New("sqlite: no depth snapshot")

// Snapshot is a stored depth map.
type Snapshot struct {
	SnapshotID string               `json:"snapshot_id"`
	SessionID  string               `json:"session_id"`
	CapturedNs int64                `json:"captured_ns"`
	DepthMap   *pointcloud.DepthMap `json:"-"`
}

// SnapshotStore persists depth maps as gzip-compressed little-endian
// uint16 cells.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Insert stores snap, assigning an ID and capture time when unset.
func (s *SnapshotStore) Insert(snap *Snapshot) error {
	if snap.DepthMap == nil {
		return errors.New("insert snapshot: nil depth map")
	}
	if snap.SnapshotID == "" {
		snap.SnapshotID = uuid.New().String()
	}
	if snap.CapturedNs == 0 {
		snap.CapturedNs = time.Now().UnixNano()
	}
	dm := snap.DepthMap
	cal, err := json.Marshal(dm.Cal)
	if err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}
	blob, err := compressDepth(dm.Pix)
	if err != nil {
		return fmt.Errorf("compress depth map: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO depth_snapshots (
			snapshot_id, session_id, width, height, calibration, depth_gz, captured_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.SnapshotID, snap.SessionID, dm.W, dm.H, string(cal), blob, snap.CapturedNs)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Latest returns the newest snapshot of a session, or of any session when
// sessionID is empty.
func (s *SnapshotStore) Latest(sessionID string) (*Snapshot, error) {
	row := s.db.QueryRow(`
		SELECT snapshot_id, session_id, width, height, calibration, depth_gz, captured_ns
		FROM depth_snapshots
		WHERE (? = '' OR session_id = ?)
		ORDER BY captured_ns DESC
		LIMIT 1`, sessionID, sessionID)

	snap := &Snapshot{}
	var w, h int
	var cal string
	var blob []byte
	err := row.Scan(&snap.SnapshotID, &snap.SessionID, &w, &h, &cal, &blob, &snap.CapturedNs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	dm := &pointcloud.DepthMap{W: w, H: h}
	if err := json.Unmarshal([]byte(cal), &dm.Cal); err != nil {
		return nil, fmt.Errorf("decode calibration: %w", err)
	}
	if dm.Pix, err = decompressDepth(blob, w*h); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", snap.SnapshotID, err)
	}
	snap.DepthMap = dm
	return snap, nil
}

func compressDepth(pix []uint16) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := binary.Write(gz, binary.LittleEndian, pix); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressDepth(blob []byte, n int) ([]uint16, error) {
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	pix := make([]uint16, n)
	if err := binary.Read(gz, binary.LittleEndian, pix); err != nil {
		return nil, fmt.Errorf("depth cells: %w", err)
	}
	if _, err := gz.Read(make([]byte, 1)); err != io.EOF {
		return nil, errors.New("depth cells: trailing data")
	}
	return pix, nil
}
