package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS cameras (
	id                   BIGSERIAL PRIMARY KEY,
	name                 TEXT NOT NULL,
	location             TEXT NOT NULL DEFAULT '',
	transport            TEXT NOT NULL DEFAULT 'local-device',
	address              TEXT NOT NULL DEFAULT '',
	port                 INTEGER NOT NULL DEFAULT 0,
	stream_url           TEXT NOT NULL DEFAULT '',
	device_index         INTEGER NOT NULL DEFAULT 0,
	active               BOOLEAN NOT NULL DEFAULT FALSE,
	sampling_interval_ms BIGINT NOT NULL DEFAULT 0,
	connection_state     TEXT NOT NULL DEFAULT 'disconnected',
	last_connected       TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS camera_schedules (
	id               BIGSERIAL PRIMARY KEY,
	camera_id        BIGINT NOT NULL UNIQUE REFERENCES cameras(id) ON DELETE CASCADE,
	kind             TEXT NOT NULL,
	interval_minutes INTEGER NOT NULL DEFAULT 0,
	hour             TEXT NOT NULL DEFAULT '',
	minute           TEXT NOT NULL DEFAULT '',
	active           BOOLEAN NOT NULL DEFAULT TRUE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS emotion_history (
	id             BIGSERIAL PRIMARY KEY,
	camera_id      BIGINT NOT NULL,
	result_id      TEXT NOT NULL,
	image_path     TEXT NOT NULL,
	processed_path TEXT NOT NULL,
	result_path    TEXT NOT NULL,
	dominant       TEXT NOT NULL,
	scores         JSONB NOT NULL,
	fallback       TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_emotion_history_camera_time ON emotion_history (camera_id, created_at DESC);
`

const cameraColumns = `id, name, location, transport, address, port, stream_url, device_index, active,
	sampling_interval_ms, connection_state, last_connected, created_at, updated_at`

const historyColumns = `id, camera_id, result_id, image_path, processed_path, result_path, dominant, scores, fallback, created_at`

// PostgresStore implements Store over database/sql with lib/pq
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresDB opens and pings a PostgreSQL connection pool
func NewPostgresDB(dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables when missing
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	log.Info().Msg("database_schema_ready")
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCamera(row rowScanner) (*models.Camera, error) {
	var (
		c          models.Camera
		transport  string
		intervalMs int64
		conn       string
		lastConn   sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Name, &c.Location, &transport, &c.Address, &c.Port, &c.StreamURL, &c.DeviceIndex,
		&c.Active, &intervalMs, &conn, &lastConn, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	kind, err := models.ParseTransportKind(transport)
	if err != nil {
		return nil, err
	}
	c.Transport = kind
	c.SamplingInterval = time.Duration(intervalMs) * time.Millisecond
	c.ConnectionState = models.ConnectionState(conn)
	if lastConn.Valid {
		t := lastConn.Time
		c.LastConnected = &t
	}
	return &c, nil
}

func (s *PostgresStore) GetCamera(ctx context.Context, id int64) (*models.Camera, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cameraColumns+` FROM cameras WHERE id = $1`, id)
	c, err := scanCamera(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("camera %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get camera %d: %w", id, err)
	}
	return c, nil
}

func (s *PostgresStore) ListCameras(ctx context.Context) ([]models.Camera, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+cameraColumns+` FROM cameras ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	defer rows.Close()

	var cams []models.Camera
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, fmt.Errorf("scan camera: %w", err)
		}
		cams = append(cams, *c)
	}
	return cams, rows.Err()
}

func (s *PostgresStore) CreateCamera(ctx context.Context, c *models.Camera) error {
	if c.ConnectionState == "" {
		c.ConnectionState = models.ConnectionDisconnected
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cameras (name, location, transport, address, port, stream_url, device_index, active, sampling_interval_ms, connection_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		c.Name, c.Location, string(c.Transport), c.Address, c.Port, c.StreamURL, c.DeviceIndex, c.Active,
		c.SamplingInterval.Milliseconds(), string(c.ConnectionState),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create camera: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCamera(ctx context.Context, c *models.Camera) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE cameras SET name = $2, location = $3, transport = $4, address = $5, port = $6, stream_url = $7,
			device_index = $8, sampling_interval_ms = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.Name, c.Location, string(c.Transport), c.Address, c.Port, c.StreamURL, c.DeviceIndex,
		c.SamplingInterval.Milliseconds(),
	).Scan(&c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("camera %d: %w", c.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update camera %d: %w", c.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteCamera(ctx context.Context, id int64) error {
	return s.execOne(ctx, fmt.Sprintf("delete camera %d", id), `DELETE FROM cameras WHERE id = $1`, id)
}

func (s *PostgresStore) SetCameraActive(ctx context.Context, id int64, active bool) error {
	return s.execOne(ctx, fmt.Sprintf("set camera %d active", id),
		`UPDATE cameras SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
}

func (s *PostgresStore) UpdateConnectionState(ctx context.Context, id int64, state models.ConnectionState, lastConnected *time.Time) error {
	var last sql.NullTime
	if lastConnected != nil {
		last = sql.NullTime{Time: *lastConnected, Valid: true}
	}
	return s.execOne(ctx, fmt.Sprintf("update camera %d connection", id), `
		UPDATE cameras SET connection_state = $2, last_connected = COALESCE($3, last_connected), updated_at = NOW()
		WHERE id = $1`, id, string(state), last)
}

func (s *PostgresStore) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

const scheduleColumns = `id, camera_id, kind, interval_minutes, hour, minute, active, created_at, updated_at`

func scanSchedule(row rowScanner) (*models.ScheduleEntry, error) {
	var (
		e    models.ScheduleEntry
		kind string
	)
	if err := row.Scan(&e.ID, &e.CameraID, &kind, &e.Trigger.IntervalMinutes, &e.Trigger.Hour, &e.Trigger.Minute,
		&e.Active, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	k, err := models.ParseTriggerKind(kind)
	if err != nil {
		return nil, err
	}
	e.Trigger.Kind = k
	return &e, nil
}

func (s *PostgresStore) ListSchedules(ctx context.Context) ([]models.ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM camera_schedules ORDER BY camera_id`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []models.ScheduleEntry
	for rows.Next() {
		e, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetSchedule(ctx context.Context, cameraID int64) (*models.ScheduleEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM camera_schedules WHERE camera_id = $1`, cameraID)
	e, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule for camera %d: %w", cameraID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule %d: %w", cameraID, err)
	}
	return e, nil
}

// UpsertSchedule keeps a single entry per camera
func (s *PostgresStore) UpsertSchedule(ctx context.Context, e *models.ScheduleEntry) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO camera_schedules (camera_id, kind, interval_minutes, hour, minute, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (camera_id) DO UPDATE SET kind = EXCLUDED.kind, interval_minutes = EXCLUDED.interval_minutes,
			hour = EXCLUDED.hour, minute = EXCLUDED.minute, active = EXCLUDED.active, updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		e.CameraID, string(e.Trigger.Kind), e.Trigger.IntervalMinutes, e.Trigger.Hour, e.Trigger.Minute, e.Active,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert schedule for camera %d: %w", e.CameraID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteSchedule(ctx context.Context, cameraID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM camera_schedules WHERE camera_id = $1`, cameraID); err != nil {
		return fmt.Errorf("delete schedule for camera %d: %w", cameraID, err)
	}
	return nil
}

func (s *PostgresStore) InsertHistory(ctx context.Context, rec *models.HistoryRecord) error {
	scores, err := json.Marshal(rec.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO emotion_history (camera_id, result_id, image_path, processed_path, result_path, dominant, scores, fallback, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		rec.CameraID, rec.ResultID, rec.ImagePath, rec.ProcessedPath, rec.ResultPath, string(rec.Dominant), scores,
		string(rec.Fallback), rec.Timestamp,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func scanHistory(row rowScanner) (*models.HistoryRecord, error) {
	var (
		r        models.HistoryRecord
		dominant string
		fallback string
		scores   []byte
	)
	if err := row.Scan(&r.ID, &r.CameraID, &r.ResultID, &r.ImagePath, &r.ProcessedPath, &r.ResultPath,
		&dominant, &scores, &fallback, &r.Timestamp); err != nil {
		return nil, err
	}
	r.Dominant = models.Emotion(dominant)
	r.Fallback = models.FallbackKind(fallback)
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &r.Scores); err != nil {
			return nil, fmt.Errorf("decode scores: %w", err)
		}
	}
	return &r, nil
}

// ListHistory returns one page newest first plus the total row count
func (s *PostgresStore) ListHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, int, error) {
	filter = normalizeFilter(filter)

	where := ""
	args := []any{}
	if filter.CameraID > 0 {
		where = " WHERE camera_id = $1"
		args = append(args, filter.CameraID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emotion_history`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM emotion_history%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		historyColumns, where, n+1, n+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := make([]models.HistoryRecord, 0, filter.Limit)
	for rows.Next() {
		r, err := scanHistory(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) ClearHistory(ctx context.Context, cameraID int64) ([]models.HistoryRecord, error) {
	query := `DELETE FROM emotion_history RETURNING ` + historyColumns
	args := []any{}
	if cameraID > 0 {
		query = `DELETE FROM emotion_history WHERE camera_id = $1 RETURNING ` + historyColumns
		args = append(args, cameraID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("clear history: %w", err)
	}
	defer rows.Close()

	var out []models.HistoryRecord
	for rows.Next() {
		r, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
