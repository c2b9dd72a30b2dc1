package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
)

const requestColumns = `id, prompt, images, aspect_ratio, resolution, output_format, status, generated_image_url, created_at`

// RequestRepository handles PostgreSQL operations for generation requests
type RequestRepository struct {
	db *sql.DB
}

// NewRequestRepository creates a new RequestRepository
func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new request in the running state and fills in ID and CreatedAt
func (r *RequestRepository) Create(ctx context.Context, req *domain.GenerationRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.InputImages == nil {
		req.InputImages = []string{}
	}
	req.Status = domain.StatusRunning
	req.ResultImageURL = nil

	query := `
		INSERT INTO image_generation_requests (
			id, prompt, images, aspect_ratio, resolution, output_format, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		req.ID,
		req.Prompt,
		pq.Array(req.InputImages),
		string(req.AspectRatio),
		string(req.Resolution),
		string(req.OutputFormat),
		string(req.Status),
	).Scan(&req.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create generation request: %w", err)
	}

	return nil
}

// Complete performs the single running -> done|failed transition.
// Rows that are already terminal are left untouched and ErrAlreadyTerminal is returned.
func (r *RequestRepository) Complete(ctx context.Context, id string, status domain.Status, resultURL *string) (*domain.GenerationRequest, error) {
	if !domain.CanTransition(domain.StatusRunning, status) {
		return nil, domain.ErrInvalidTransition
	}
	if status == domain.StatusDone && (resultURL == nil || *resultURL == "") {
		return nil, domain.ErrMissingResult
	}
	if status == domain.StatusFailed {
		resultURL = nil
	}

	var url sql.NullString
	if resultURL != nil {
		url = sql.NullString{String: *resultURL, Valid: true}
	}

	query := `
		UPDATE image_generation_requests
		SET status = $2, generated_image_url = $3
		WHERE id = $1 AND status = 'running'
		RETURNING ` + requestColumns

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, id, string(status), url))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrAlreadyTerminal
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete generation request: %w", err)
	}

	return req, nil
}

// Get retrieves a request by its ID
func (r *RequestRepository) Get(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM image_generation_requests WHERE id = $1`

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generation request: %w", err)
	}

	return req, nil
}

// Count returns the exact number of stored requests
func (r *RequestRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM image_generation_requests`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count generation requests: %w", err)
	}
	return count, nil
}

// List returns one window of requests, newest first
func (r *RequestRepository) List(ctx context.Context, offset, limit int) ([]domain.GenerationRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM image_generation_requests
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list generation requests: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

// FailStale marks every request still running since before the cutoff as failed
func (r *RequestRepository) FailStale(ctx context.Context, cutoff time.Time) ([]domain.GenerationRequest, error) {
	query := `
		UPDATE image_generation_requests
		SET status = 'failed', generated_image_url = NULL
		WHERE status = 'running' AND created_at < $1
		RETURNING ` + requestColumns

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to fail stale generation requests: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*domain.GenerationRequest, error) {
	var (
		req                         domain.GenerationRequest
		images                      []string
		aspect, res, format, status string
		url                         sql.NullString
	)

	err := row.Scan(
		&req.ID,
		&req.Prompt,
		pq.Array(&images),
		&aspect,
		&res,
		&format,
		&status,
		&url,
		&req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	req.Status = st
	req.AspectRatio = domain.AspectRatio(aspect)
	req.Resolution = domain.Resolution(res)
	req.OutputFormat = domain.OutputFormat(format)
	req.InputImages = images
	if req.InputImages == nil {
		req.InputImages = []string{}
	}
	if url.Valid {
		u := url.String
		req.ResultImageURL = &u
	}

	return &req, nil
}

func collect(rows *sql.Rows) ([]domain.GenerationRequest, error) {
	out := []domain.GenerationRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation request: %w", err)
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}
