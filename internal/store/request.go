package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// DefaultListLimit is used by List when limit is not positive.
const DefaultListLimit = 50

// Hand is one hand reported by a recorded request.
type Hand struct {
	Box        [4]int       `json:"box"`
	Confidence float64      `json:"confidence"`
	Keypoints  [][2]float64 `json:"keypoints"`
}

// Request is a recorded detection request.
type Request struct {
	ID        string `json:"id"`
	Success   bool   `json:"success"`
	HandCount int    `json:"hands"`
	Error     string `json:"error,omitempty"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`

	// DurationMs is the server-side processing time.
	DurationMs float64   `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`

	// Hands is only populated by GetByID.
	Hands []Hand `json:"detections,omitempty"`
}

// RequestRepository records and reads detection requests.
type RequestRepository struct {
	db *sql.DB
}

// Requests returns the request repository for this store.
func (s *Store) Requests() *RequestRepository {
	return &RequestRepository{db: s.db}
}

// Create inserts a request and its hands in a single transaction.
// HandCount is set from Hands.
func (r *RequestRepository) Create(ctx context.Context, req *Request) error {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	req.HandCount = len(req.Hands)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO requests (id, success, hands, error, width, height, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.Success, req.HandCount, req.Error, req.Width, req.Height, req.DurationMs, req.CreatedAt,
	)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO request_hands (request_id, hand_index, x1, y1, x2, y2, confidence, keypoints)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, h := range req.Hands {
		keypoints := h.Keypoints
		if keypoints == nil {
			keypoints = [][2]float64{}
		}
		data, err := json.Marshal(keypoints)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, req.ID, i, h.Box[0], h.Box[1], h.Box[2], h.Box[3], h.Confidence, string(data)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByID retrieves a request and its hands.
func (r *RequestRepository) GetByID(id string) (*Request, error) {
	req := &Request{}

	err := r.db.QueryRow(
		`SELECT id, success, hands, error, width, height, duration_ms, created_at
		 FROM requests WHERE id = ?`,
		id,
	).Scan(&req.ID, &req.Success, &req.HandCount, &req.Error, &req.Width, &req.Height, &req.DurationMs, &req.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	hands, err := r.hands(id)
	if err != nil {
		return nil, err
	}
	req.Hands = hands

	return req, nil
}

func (r *RequestRepository) hands(requestID string) ([]Hand, error) {
	rows, err := r.db.Query(
		`SELECT x1, y1, x2, y2, confidence, keypoints
		 FROM request_hands
		 WHERE request_id = ?
		 ORDER BY hand_index`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hands := []Hand{}
	for rows.Next() {
		var h Hand
		var data string
		if err := rows.Scan(&h.Box[0], &h.Box[1], &h.Box[2], &h.Box[3], &h.Confidence, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &h.Keypoints); err != nil {
			return nil, err
		}
		hands = append(hands, h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return hands, nil
}

// List retrieves the most recent requests, newest first, without their hands.
func (r *RequestRepository) List(limit int) ([]*Request, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.Query(
		`SELECT id, success, hands, error, width, height, duration_ms, created_at
		 FROM requests ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []*Request{}
	for rows.Next() {
		req := &Request{}

		err := rows.Scan(&req.ID, &req.Success, &req.HandCount, &req.Error, &req.Width, &req.Height, &req.DurationMs, &req.CreatedAt)
		if err != nil {
			return nil, err
		}

		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return requests, nil
}

// Delete removes a request and its hands.
func (r *RequestRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM requests WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
