// Package remote holds the clients for the two opaque remote services: the
// relational attendance store (Postgres) and the photo object storage.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fieldsync/internal/model"
)

// Store is the remote attendance store. Inserts are keyed by the record's
// original identity; the primary-key uniqueness constraint is the sole
// cross-process concurrency control that lets overlapping sync passes and
// independent devices converge without a distributed lock.
type Store struct {
	pool *pgxpool.Pool
}

// ConnConfig holds the Postgres connection parameters.
type ConnConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// ConnString renders the config as a pgx connection string.
func (c ConnConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// NewStore connects a pgx pool to the remote store.
func NewStore(cfg ConnConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("error parsing remote store config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("error creating remote store pool: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertAttendance inserts a fully-formed attendance record using its
// original identity as the row key. A uniqueness violation on that identity
// is returned as ErrDuplicateIdentity so the caller can treat it as success.
func (s *Store) InsertAttendance(ctx context.Context, rec model.PendingAttendanceRecord) error {
	lat, lon, acc := coordValues(rec.Coordinate)
	zoneName, zoneCode := zoneValues(rec.Zone)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendance_events
		(id, user_id, day, kind, event_time, lat, lon, accuracy, outside_zone,
		 photo_url, zone_name, zone_code, inconsistent, note, sync_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 'synced', $15)`,
		rec.ID, rec.UserID, rec.Day, string(rec.Kind), rec.EventTime,
		lat, lon, acc, rec.OutsideZone,
		rec.PhotoURL, zoneName, zoneCode, rec.Inconsistent, rec.Note,
		rec.CreatedAt,
	)
	return wrapInsertErr("attendance", rec.ID, err)
}

// InsertSample inserts a location sample by identity.
func (s *Store) InsertSample(ctx context.Context, smp model.PendingLocationSample) error {
	lat, lon, acc := coordValues(smp.Coordinate)
	zoneName, zoneCode := zoneValues(smp.Zone)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO location_samples
		(id, user_id, day, session_id, sampled_at, lat, lon, accuracy,
		 outside_zone, zone_name, zone_code, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		smp.ID, smp.UserID, smp.Day, smp.SessionID, smp.SampledAt,
		lat, lon, acc, smp.OutsideZone, zoneName, zoneCode,
		string(smp.Source), smp.CreatedAt,
	)
	return wrapInsertErr("sample", smp.ID, err)
}

// InsertFollowUp inserts a follow-up photo row by identity.
func (s *Store) InsertFollowUp(ctx context.Context, p model.PendingFollowUpPhoto) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO follow_up_photos
		(id, user_id, session_id, slot, taken_at, photo_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.UserID, p.SessionID, int(p.Slot), p.TakenAt, p.PhotoURL, p.CreatedAt,
	)
	return wrapInsertErr("follow-up", p.ID, err)
}

// ListAttendanceByUserAndDate returns the remote attendance rows for one user
// and date, ordered by event timestamp descending. Rows carry Synced=true and
// the final zone resolution.
func (s *Store) ListAttendanceByUserAndDate(ctx context.Context, userID, day string) ([]model.AttendanceEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, day, kind, event_time, lat, lon, accuracy,
		       outside_zone, photo_url, zone_name, zone_code, inconsistent, note
		FROM attendance_events
		WHERE user_id = $1 AND day = $2
		ORDER BY event_time DESC, id ASC`,
		userID, day,
	)
	if err != nil {
		return nil, fmt.Errorf("query remote attendance: %w", err)
	}
	defer rows.Close()

	entries := []model.AttendanceEntry{}
	for rows.Next() {
		var (
			e                  model.AttendanceEntry
			kind               string
			lat, lon, acc      *float64
			zoneName, zoneCode *string
		)
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Day, &kind, &e.EventTime,
			&lat, &lon, &acc, &e.OutsideZone, &e.PhotoURL,
			&zoneName, &zoneCode, &e.Inconsistent, &e.Note,
		); err != nil {
			return nil, fmt.Errorf("scan remote attendance: %w", err)
		}
		e.Kind = model.EventKind(kind)
		e.Synced = true
		if lat != nil && lon != nil {
			c := model.Coordinate{Lat: *lat, Lon: *lon}
			if acc != nil {
				c.Accuracy = *acc
			}
			e.Coordinate = &c
		}
		if zoneName != nil && zoneCode != nil {
			e.Zone = &model.ZoneResult{Name: *zoneName, Code: *zoneCode}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate remote attendance: %w", err)
	}
	return entries, nil
}

// HasAttendance reports whether the remote store holds the given identity.
// Used by operator tooling; the sync path relies on insert conflicts instead.
func (s *Store) HasAttendance(ctx context.Context, id string) (bool, error) {
	var found string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM attendance_events WHERE id = $1`, id,
	).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check remote attendance %s: %w", id, err)
	}
	return true, nil
}

func wrapInsertErr(kind, id string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("insert %s %s: %w", kind, id, ErrDuplicateIdentity)
	}
	return fmt.Errorf("insert %s %s: %w", kind, id, err)
}

func coordValues(c *model.Coordinate) (lat, lon, acc *float64) {
	if c == nil {
		return nil, nil, nil
	}
	return &c.Lat, &c.Lon, &c.Accuracy
}

func zoneValues(z *model.ZoneResult) (name, code *string) {
	if z == nil {
		return nil, nil
	}
	return &z.Name, &z.Code
}
