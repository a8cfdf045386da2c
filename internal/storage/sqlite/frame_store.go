package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FrameRecord is the persisted summary of one processed frame.
type FrameRecord struct {
	FrameID     string  `json:"frame_id"`
	SessionID   string  `json:"session_id"`
	Mode        string  `json:"mode"`
	BlockID     uint64  `json:"block_id"`
	Points      int     `json:"points"`
	ValidPoints int     `json:"valid_points"`
	MinZ        float64 `json:"min_z"`
	MaxZ        float64 `json:"max_z"`
	MeanZ       float64 `json:"mean_z"`
	StdZ        float64 `json:"std_z"`
	CapturedNs  int64   `json:"captured_ns"`
}

// FrameStore provides persistence for frame summaries.
type FrameStore struct {
	db *sql.DB
}

// NewFrameStore creates a new FrameStore.
func NewFrameStore(db *sql.DB) *FrameStore {
	return &FrameStore{db: db}
}

const insertFrame = `
	INSERT INTO frames (
		frame_id, session_id, mode, block_id, points, valid_points,
		min_z, max_z, mean_z, std_z, captured_ns
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func prepareFrame(rec *FrameRecord) {
	if rec.FrameID == "" {
		rec.FrameID = uuid.New().String()
	}
	if rec.CapturedNs == 0 {
		rec.CapturedNs = time.Now().UnixNano()
	}
}

func frameArgs(rec *FrameRecord) []any {
	return []any{
		rec.FrameID, rec.SessionID, rec.Mode, int64(rec.BlockID), rec.Points, rec.ValidPoints,
		rec.MinZ, rec.MaxZ, rec.MeanZ, rec.StdZ, rec.CapturedNs,
	}
}

// Insert stores rec. An empty FrameID is replaced by a new UUID and a zero
// CapturedNs by the current time.
func (s *FrameStore) Insert(rec *FrameRecord) error {
	prepareFrame(rec)
	if _, err := s.db.Exec(insertFrame, frameArgs(rec)...); err != nil {
		return fmt.Errorf("insert frame: %w", err)
	}
	return nil
}

// InsertBatch stores recs in one transaction.
func (s *FrameStore) InsertBatch(recs []*FrameRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin frame batch: %w", err)
	}
	stmt, err := tx.Prepare(insertFrame)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare frame insert: %w", err)
	}
	defer stmt.Close()
	for _, rec := range recs {
		prepareFrame(rec)
		if _, err := stmt.Exec(frameArgs(rec)...); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert frame: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit frame batch: %w", err)
	}
	return nil
}

// List returns the most recent frames of a session, newest first. An
// empty sessionID lists every session.
func (s *FrameStore) List(sessionID string, limit int) ([]*FrameRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT frame_id, session_id, mode, block_id, points, valid_points,
		       min_z, max_z, mean_z, std_z, captured_ns
		FROM frames
		WHERE (? = '' OR session_id = ?)
		ORDER BY captured_ns DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, sessionID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	defer rows.Close()

	var out []*FrameRecord
	for rows.Next() {
		r := &FrameRecord{}
		var blockID int64
		if err := rows.Scan(
			&r.FrameID, &r.SessionID, &r.Mode, &blockID, &r.Points, &r.ValidPoints,
			&r.MinZ, &r.MaxZ, &r.MeanZ, &r.StdZ, &r.CapturedNs,
		); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		r.BlockID = uint64(blockID)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of frames stored for a session, or for every
// session when sessionID is empty.
func (s *FrameStore) Count(sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM frames WHERE (? = '' OR session_id = ?)`, sessionID, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count frames: %w", err)
	}
	return n, nil
}
