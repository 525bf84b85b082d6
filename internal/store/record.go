package store

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/ayusman/nayana/internal/eye"
	"github.com/ayusman/nayana/internal/gesture"
	"github.com/ayusman/nayana/internal/record"
)

// DefaultBufferSize is the number of records a RecordBuffer holds before it
// writes them out.
const DefaultBufferSize = 100

// RecordStats aggregates the stored records of one session.
type RecordStats struct {
	TotalFrames    int                   `json:"total_frames"`
	FramesWithFace int                   `json:"frames_with_face"`
	BlinkFrames    int                   `json:"blink_frames"`
	AvgFPS         float64               `json:"avg_fps"`
	GestureFrames  map[gesture.Label]int `json:"gesture_frames"`
}

// RecordRepository stores per-frame records.
type RecordRepository struct {
	db *sql.DB
}

// Records returns the frame record repository for this store.
func (s *Store) Records() *RecordRepository {
	return &RecordRepository{db: s.db}
}

const recordColumns = `session_id, frame_number, timestamp, left_ear, right_ear,
	left_gaze_x, left_gaze_y, right_gaze_x, right_gaze_y, combined_gaze_x, combined_gaze_y,
	is_blinking, gesture, gesture_duration, fps`

// Append inserts records in a single transaction.
func (r *RecordRepository) Append(records []record.FrameRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO frame_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		lx, ly := gazeArgs(rec.LeftGaze)
		rx, ry := gazeArgs(rec.RightGaze)
		cx, cy := gazeArgs(rec.CombinedGaze)
		_, err := stmt.Exec(
			rec.SessionID, rec.FrameNumber, rec.Timestamp,
			floatArg(rec.LeftEAR), floatArg(rec.RightEAR),
			lx, ly, rx, ry, cx, cy,
			rec.IsBlinking, string(rec.Gesture), rec.GestureDuration, rec.FPS,
		)
		if err != nil {
			return fmt.Errorf("failed to insert frame %d: %w", rec.FrameNumber, err)
		}
	}

	return tx.Commit()
}

// ListBySession returns records of a session in frame order. A limit of zero
// or less returns all records from offset on.
func (r *RecordRepository) ListBySession(sessionID string, limit, offset int) ([]record.FrameRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	var records []record.FrameRecord
	err := r.each(
		`SELECT `+recordColumns+` FROM frame_records WHERE session_id = ?
		 ORDER BY frame_number LIMIT ? OFFSET ?`,
		[]any{sessionID, limit, offset},
		func(rec record.FrameRecord) error {
			records = append(records, rec)
			return nil
		},
	)
	return records, err
}

// Each calls fn for every record of a session in frame order. fn must not use
// the store.
func (r *RecordRepository) Each(sessionID string, fn func(record.FrameRecord) error) error {
	return r.each(
		`SELECT `+recordColumns+` FROM frame_records WHERE session_id = ? ORDER BY frame_number`,
		[]any{sessionID},
		fn,
	)
}

// Count returns the number of records stored for a session.
func (r *RecordRepository) Count(sessionID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM frame_records WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

// Stats aggregates the stored records of a session.
func (r *RecordRepository) Stats(sessionID string) (*RecordStats, error) {
	st := &RecordStats{GestureFrames: make(map[gesture.Label]int)}
	var avg sql.NullFloat64
	var blinks sql.NullInt64
	err := r.db.QueryRow(
		`SELECT COUNT(*), COUNT(COALESCE(left_ear, right_ear)), SUM(is_blinking), AVG(fps)
		 FROM frame_records WHERE session_id = ?`,
		sessionID,
	).Scan(&st.TotalFrames, &st.FramesWithFace, &blinks, &avg)
	if err != nil {
		return nil, err
	}
	st.BlinkFrames = int(blinks.Int64)
	st.AvgFPS = avg.Float64

	rows, err := r.db.Query(
		`SELECT gesture, COUNT(*) FROM frame_records WHERE session_id = ? GROUP BY gesture`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		st.GestureFrames[gesture.Label(label)] = n
	}
	return st, rows.Err()
}

func (r *RecordRepository) each(q string, args []any, fn func(record.FrameRecord) error) error {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanRecord(row scanner) (record.FrameRecord, error) {
	var rec record.FrameRecord
	var label string
	var leftEAR, rightEAR, lx, ly, rx, ry, cx, cy sql.NullFloat64

	err := row.Scan(&rec.SessionID, &rec.FrameNumber, &rec.Timestamp, &leftEAR, &rightEAR,
		&lx, &ly, &rx, &ry, &cx, &cy,
		&rec.IsBlinking, &label, &rec.GestureDuration, &rec.FPS)
	if err != nil {
		return rec, err
	}

	rec.LeftEAR = optionalFloat(leftEAR)
	rec.RightEAR = optionalFloat(rightEAR)
	rec.LeftGaze = optionalGaze(lx, ly)
	rec.RightGaze = optionalGaze(rx, ry)
	rec.CombinedGaze = optionalGaze(cx, cy)
	rec.Gesture = gesture.Label(label)
	return rec, nil
}

func floatArg(o eye.Optional[float64]) sql.NullFloat64 {
	return sql.NullFloat64{Float64: o.Value, Valid: o.Valid}
}

func gazeArgs(o eye.Optional[eye.Gaze]) (sql.NullFloat64, sql.NullFloat64) {
	return sql.NullFloat64{Float64: o.Value.X, Valid: o.Valid},
		sql.NullFloat64{Float64: o.Value.Y, Valid: o.Valid}
}

func optionalFloat(v sql.NullFloat64) eye.Optional[float64] {
	if !v.Valid {
		return eye.None[float64]()
	}
	return eye.Some(v.Float64)
}

func optionalGaze(x, y sql.NullFloat64) eye.Optional[eye.Gaze] {
	if !x.Valid || !y.Valid {
		return eye.None[eye.Gaze]()
	}
	return eye.Some(eye.Gaze{X: x.Float64, Y: y.Float64})
}

// RecordBuffer batches records and appends them to the repository once the
// buffer is full. It is safe for concurrent use.
type RecordBuffer struct {
	mu   sync.Mutex
	repo *RecordRepository
	size int
	buf  []record.FrameRecord
}

// NewRecordBuffer creates a buffer that flushes every size records.
func NewRecordBuffer(repo *RecordRepository, size int) *RecordBuffer {
	if size < 1 {
		size = DefaultBufferSize
	}
	return &RecordBuffer{
		repo: repo,
		size: size,
		buf:  make([]record.FrameRecord, 0, size),
	}
}

// Write adds a record, flushing when the buffer is full.
func (b *RecordBuffer) Write(rec record.FrameRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, rec)
	if len(b.buf) < b.size {
		return nil
	}
	return b.flushLocked()
}

// Flush appends all buffered records.
func (b *RecordBuffer) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

// Len returns the number of buffered records.
func (b *RecordBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

func (b *RecordBuffer) flushLocked() error {
	if len(b.buf) == 0 {
		return nil
	}
	if err := b.repo.Append(b.buf); err != nil {
		return fmt.Errorf("failed to flush %d records: %w", len(b.buf), err)
	}
	b.buf = b.buf[:0]
	return nil
}
