package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"go-pulsemap/types"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const incidentColumns = `id, thread_id, published, last_modified, location, district,
	category, subcategory, title, description, status, group_id, lat, lng,
	precision, severity, incident_status, geocoding_attempts, last_geocoded`

// upsertIncidentSQL never touches geocoding_attempts or last_geocoded on conflict.
const upsertIncidentSQL = `
	INSERT INTO incidents (
		id, thread_id, published, last_modified, location, district,
		category, subcategory, title, description, status, group_id,
		lat, lng, precision, severity, incident_status, geocoding_attempts
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 0)
	ON CONFLICT (id) DO UPDATE SET
		last_modified = EXCLUDED.last_modified,
		description = EXCLUDED.description,
		status = EXCLUDED.status,
		lat = EXCLUDED.lat,
		lng = EXCLUDED.lng,
		precision = EXCLUDED.precision,
		severity = EXCLUDED.severity,
		incident_status = EXCLUDED.incident_status,
		updated_at = NOW()`

type incidentRow struct {
	ID                string          `db:"id"`
	ThreadID          string          `db:"thread_id"`
	Published         time.Time       `db:"published"`
	LastModified      sql.NullTime    `db:"last_modified"`
	Location          string          `db:"location"`
	District          string          `db:"district"`
	Category          string          `db:"category"`
	Subcategory       sql.NullString  `db:"subcategory"`
	Title             string          `db:"title"`
	Description       string          `db:"description"`
	Status            sql.NullString  `db:"status"`
	GroupID           sql.NullString  `db:"group_id"`
	Lat               sql.NullFloat64 `db:"lat"`
	Lng               sql.NullFloat64 `db:"lng"`
	Precision         string          `db:"precision"`
	Severity          string          `db:"severity"`
	IncidentStatus    string          `db:"incident_status"`
	GeocodingAttempts int             `db:"geocoding_attempts"`
	LastGeocoded      sql.NullTime    `db:"last_geocoded"`
}

func (r incidentRow) toIncident() types.EnrichedIncident {
	inc := types.EnrichedIncident{
		RawIncident: types.RawIncident{
			ID:          r.ID,
			Published:   r.Published.UTC(),
			Location:    r.Location,
			District:    r.District,
			Category:    r.Category,
			Subcategory: r.Subcategory.String,
			Title:       r.Title,
			Description: r.Description,
			Status:      r.Status.String,
			GroupID:     r.GroupID.String,
		},
		ThreadID:          r.ThreadID,
		Precision:         types.Precision(r.Precision),
		Severity:          types.Severity(r.Severity),
		IncidentStatus:    types.Status(r.IncidentStatus),
		GeocodingAttempts: r.GeocodingAttempts,
	}
	if r.LastModified.Valid {
		t := r.LastModified.Time.UTC()
		inc.LastModified = &t
	}
	if r.LastGeocoded.Valid {
		t := r.LastGeocoded.Time.UTC()
		inc.LastGeocoded = &t
	}
	if r.Lat.Valid && r.Lng.Valid {
		inc.Coordinates = &types.Coordinates{Lat: r.Lat.Float64, Lng: r.Lng.Float64}
	}
	if inc.Precision == "" {
		inc.Precision = types.UnknownLocation
	}
	return inc
}

// PostgresStore is the relational Store backed by sqlx and lib/pq.
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresDB establishes a new connection to the PostgreSQL database.
func NewPostgresDB(dataSourceName string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(30 * time.Second)

	logger.Info("Successfully connected to the database")
	return db, nil
}

func NewPostgresStore(db *sqlx.DB, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, logger: logger.Named("postgres")}
}

func (s *PostgresStore) Upsert(ctx context.Context, inc *types.EnrichedIncident) error {
	var lat, lng sql.NullFloat64
	if inc.Coordinates != nil {
		lat = sql.NullFloat64{Float64: inc.Coordinates.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: inc.Coordinates.Lng, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, upsertIncidentSQL,
		inc.ID, inc.ThreadID, inc.Published, nullTime(inc.LastModified), inc.Location, inc.District,
		inc.Category, nullString(inc.Subcategory), inc.Title, inc.Description, nullString(inc.Status),
		nullString(inc.GroupID), lat, lng, string(inc.Precision), string(inc.Severity), string(inc.IncidentStatus),
	)
	if err != nil {
		return fmt.Errorf("upsert incident %s: %w", inc.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetByThread(ctx context.Context, threadID string) ([]types.EnrichedIncident, error) {
	return s.selectIncidents(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE thread_id = $1 ORDER BY published ASC, id ASC`,
		threadID)
}

func (s *PostgresStore) AppendUpdate(ctx context.Context, threadID string, u types.IncidentUpdate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incident_updates (incident_id, thread_id, timestamp, description, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (incident_id, timestamp) DO NOTHING`,
		u.IncidentID, threadID, u.Timestamp, u.Description, nullString(u.Status))
	if err != nil {
		return fmt.Errorf("append update for %s: %w", u.IncidentID, err)
	}
	return nil
}

func (s *PostgresStore) GetNeedingGeocode(ctx context.Context, limit int) ([]types.EnrichedIncident, error) {
	return s.selectIncidents(ctx, `SELECT `+incidentColumns+` FROM incidents
		WHERE lat IS NULL
			AND geocoding_attempts < $1
			AND (last_geocoded IS NULL OR last_geocoded < NOW() - INTERVAL '1 day')
		ORDER BY published DESC
		LIMIT $2`,
		MaxGeocodeAttempts, limit)
}

func (s *PostgresStore) UpdateGeocode(ctx context.Context, id string, coords *types.Coordinates, precision types.Precision) error {
	var lat, lng sql.NullFloat64
	if coords != nil {
		lat = sql.NullFloat64{Float64: coords.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: coords.Lng, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents
		SET lat = COALESCE($2, lat),
			lng = COALESCE($3, lng),
			precision = $4,
			geocoding_attempts = geocoding_attempts + 1,
			last_geocoded = NOW()
		WHERE id = $1`,
		id, lat, lng, string(precision))
	if err != nil {
		return fmt.Errorf("update geocode for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update geocode for %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetStats(ctx context.Context) (types.Stats, error) {
	var row struct {
		Total        int `db:"total"`
		Active       int `db:"active"`
		Geocoded     int `db:"geocoded"`
		NeedsGeocode int `db:"needs_geocode"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE incident_status = 'active') AS active,
			COUNT(*) FILTER (WHERE lat IS NOT NULL) AS geocoded,
			COUNT(*) FILTER (WHERE lat IS NULL AND geocoding_attempts < $1) AS needs_geocode
		FROM incidents`, MaxGeocodeAttempts)
	if err != nil {
		return types.Stats{}, fmt.Errorf("get stats: %w", err)
	}
	return types.Stats{
		Total:        row.Total,
		Active:       row.Active,
		Geocoded:     row.Geocoded,
		NeedsGeocode: row.NeedsGeocode,
	}, nil
}

func (s *PostgresStore) GetIncident(ctx context.Context, id string) (*types.EnrichedIncident, error) {
	var row incidentRow
	err := s.db.GetContext(ctx, &row, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get incident %s: %w", id, err)
	}
	inc := row.toIncident()
	return &inc, nil
}

func (s *PostgresStore) ListIncidents(ctx context.Context, f types.IncidentFilter) ([]types.EnrichedIncident, error) {
	query, args := buildListQuery(f)
	return s.selectIncidents(ctx, query, args...)
}

// buildListQuery renders the filtered listing with positional arguments.
func buildListQuery(f types.IncidentFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, values ...any) {
		for _, v := range values {
			args = append(args, v)
			clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", len(args)), 1)
		}
		where = append(where, clause)
	}

	if len(f.Categories) > 0 {
		add("category = ANY(?)", pq.Array(f.Categories))
	}
	if len(f.Statuses) > 0 {
		add("incident_status = ANY(?)", pq.Array(toStrings(f.Statuses)))
	}
	if len(f.Severities) > 0 {
		add("severity = ANY(?)", pq.Array(toStrings(f.Severities)))
	}
	if len(f.Precisions) > 0 {
		add("precision = ANY(?)", pq.Array(toStrings(f.Precisions)))
	}
	if len(f.Districts) > 0 {
		add("district = ANY(?)", pq.Array(f.Districts))
	}
	if f.DateFrom != nil {
		add("published >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		add("published <= ?", *f.DateTo)
	}
	if f.Bounds != nil {
		add("lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?",
			f.Bounds.South, f.Bounds.North, f.Bounds.West, f.Bounds.East)
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY published DESC, id ASC LIMIT %d", listLimit)
	return query, args
}

func (s *PostgresStore) GetThreadUpdates(ctx context.Context, threadID string) ([]types.IncidentUpdate, error) {
	var rows []struct {
		IncidentID  string         `db:"incident_id"`
		Timestamp   time.Time      `db:"timestamp"`
		Description string         `db:"description"`
		Status      sql.NullString `db:"status"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT incident_id, timestamp, description, status
		FROM incident_updates
		WHERE thread_id = $1
		ORDER BY timestamp ASC, incident_id ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("get updates for thread %s: %w", threadID, err)
	}

	updates := make([]types.IncidentUpdate, 0, len(rows))
	for _, r := range rows {
		updates = append(updates, types.IncidentUpdate{
			IncidentID:  r.IncidentID,
			Timestamp:   r.Timestamp.UTC(),
			Description: r.Description,
			Status:      r.Status.String,
		})
	}
	return updates, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) selectIncidents(ctx context.Context, query string, args ...any) ([]types.EnrichedIncident, error) {
	var rows []incidentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	incidents := make([]types.EnrichedIncident, 0, len(rows))
	for _, r := range rows {
		incidents = append(incidents, r.toIncident())
	}
	return incidents, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
