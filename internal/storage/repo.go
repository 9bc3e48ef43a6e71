package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"
)

var ErrNotFound = errors.New("not found")

const maxEventsPerList = 500

var imageRequestColumns = []string{
	"request_id", "platform", "category", "aspect", "width", "height", "status", "decision_json",
	"storage_name", "image_url", "image_width", "image_height", "image_content_type", "image_alt_text",
	"created_at", "updated_at",
}

func (s *Store) GetImageRequest(ctx context.Context, requestID string) (ImageRequest, error) {
	q := s.sql.Select(imageRequestColumns...).
		From("image_requests").
		Where(sq.Eq{"request_id": requestID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return ImageRequest{}, fmt.Errorf("build get image request query: %w", err)
	}

	var r ImageRequest
	var storageName, imageURL, contentType, altText sql.NullString
	var imageWidth, imageHeight sql.NullInt64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&r.RequestID,
		&r.Platform,
		&r.Category,
		&r.Aspect,
		&r.Width,
		&r.Height,
		&r.Status,
		&r.DecisionJSON,
		&storageName,
		&imageURL,
		&imageWidth,
		&imageHeight,
		&contentType,
		&altText,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ImageRequest{}, ErrNotFound
		}
		return ImageRequest{}, fmt.Errorf("get image request: %w", err)
	}
	if storageName.Valid {
		r.StorageName = &storageName.String
	}
	if imageURL.Valid {
		r.Image = &ImageRecord{
			URL:         imageURL.String,
			Width:       int(imageWidth.Int64),
			Height:      int(imageHeight.Int64),
			ContentType: contentType.String,
			AltText:     altText.String,
		}
	}
	return r, nil
}

// UpsertImageRequest writes the latest terminal state for r.RequestID. The last
// writer wins; created_at keeps its first value.
func (s *Store) UpsertImageRequest(ctx context.Context, r ImageRequest) error {
	if strings.TrimSpace(r.RequestID) == "" {
		return fmt.Errorf("upsert image request: empty request id")
	}
	if !ValidStatus(r.Status) {
		return fmt.Errorf("upsert image request: invalid status %q", r.Status)
	}
	if strings.TrimSpace(r.DecisionJSON) == "" || !json.Valid([]byte(r.DecisionJSON)) {
		return fmt.Errorf("upsert image request: decision json is not valid json")
	}

	var imageURL, contentType, altText *string
	var imageWidth, imageHeight *int
	if r.Image != nil && r.Status == StatusSuccess {
		imageURL = &r.Image.URL
		contentType = &r.Image.ContentType
		altText = &r.Image.AltText
		imageWidth = &r.Image.Width
		imageHeight = &r.Image.Height
	}

	q := s.sql.Insert("image_requests").
		Columns(
			"request_id", "platform", "category", "aspect", "width", "height", "status", "decision_json",
			"storage_name", "image_url", "image_width", "image_height", "image_content_type", "image_alt_text",
			"updated_at",
		).
		Values(
			r.RequestID, r.Platform, r.Category, r.Aspect, r.Width, r.Height, r.Status, r.DecisionJSON,
			r.StorageName, imageURL, imageWidth, imageHeight, contentType, altText,
			nowExpr(s.driver),
		).
		Suffix(`ON CONFLICT(request_id) DO UPDATE SET
platform=excluded.platform, category=excluded.category, aspect=excluded.aspect,
width=excluded.width, height=excluded.height, status=excluded.status, decision_json=excluded.decision_json,
storage_name=excluded.storage_name, image_url=excluded.image_url, image_width=excluded.image_width,
image_height=excluded.image_height, image_content_type=excluded.image_content_type,
image_alt_text=excluded.image_alt_text, updated_at=excluded.updated_at`)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build image request upsert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upsert image request: %w", err)
	}
	return nil
}

// InsertEngineEvent appends e. EventID is minted when empty and CreatedAt falls
// back to the database clock.
func (s *Store) InsertEngineEvent(ctx context.Context, e EngineEvent) error {
	if strings.TrimSpace(e.RequestID) == "" || strings.TrimSpace(e.Type) == "" {
		return fmt.Errorf("insert engine event: request id and type are required")
	}
	if e.EventID == "" {
		e.EventID = ulid.Make().String()
	}
	dataJSON := "{}"
	if len(e.Data) > 0 {
		b, err := json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("marshal engine event data: %w", err)
		}
		dataJSON = string(b)
	}

	createdAt := nowExpr(s.driver)
	if !e.CreatedAt.IsZero() {
		createdAt = e.CreatedAt.UTC()
	}

	q := s.sql.Insert("engine_events").
		Columns("event_id", "request_id", "type", "ok", "message_safe", "data_json", "created_at").
		Values(e.EventID, e.RequestID, e.Type, e.OK, e.MessageSafe, dataJSON, createdAt)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build engine event insert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert engine event: %w", err)
	}
	return nil
}

// ListEngineEvents returns events for requestID in insertion order.
func (s *Store) ListEngineEvents(ctx context.Context, requestID string, limit int) ([]EngineEvent, error) {
	if limit <= 0 || limit > maxEventsPerList {
		limit = maxEventsPerList
	}
	q := s.sql.Select("id", "event_id", "request_id", "type", "ok", "message_safe", "data_json", "created_at").
		From("engine_events").
		Where(sq.Eq{"request_id": requestID}).
		OrderBy("id ASC").
		Limit(uint64(limit))
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list engine events query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list engine events: %w", err)
	}
	defer rows.Close()

	out := make([]EngineEvent, 0)
	for rows.Next() {
		var e EngineEvent
		var dataJSON string
		if err := rows.Scan(&e.ID, &e.EventID, &e.RequestID, &e.Type, &e.OK, &e.MessageSafe, &dataJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan engine event: %w", err)
		}
		if dataJSON != "" && dataJSON != "{}" {
			if err := json.Unmarshal([]byte(dataJSON), &e.Data); err != nil {
				return nil, fmt.Errorf("decode engine event data: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate engine events: %w", err)
	}
	return out, nil
}

func nowExpr(driver string) any {
	if driver == "postgres" {
		return sq.Expr("NOW()")
	}
	return sq.Expr("CURRENT_TIMESTAMP")
}

// NewEventID mints a sortable event id.
func NewEventID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}
