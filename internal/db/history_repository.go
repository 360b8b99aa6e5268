package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/unklstewy/skyradar/pkg/adsb"
	"github.com/unklstewy/skyradar/pkg/coordinates"
	"github.com/unklstewy/skyradar/pkg/tracking"
)

// HistoryRepository records confirmed positions after every refresh.
// It is used as a refresh.Sink.
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Name implements refresh.Sink.
func (r *HistoryRepository) Name() string {
	return "postgres"
}

// Persist upserts every record and appends its confirmed position.
// A position already stored for the same timestamp is skipped, so records
// that were not updated by this refresh add no rows.
// Lost connections are retried once.
func (r *HistoryRepository) Persist(ctx context.Context, records []tracking.Record, observedAt time.Time) error {
	if len(records) == 0 {
		return nil
	}
	return WithRetry(ctx, func(ctx context.Context) error {
		return r.persist(ctx, records, observedAt)
	}, 1)
}

func (r *HistoryRepository) persist(ctx context.Context, records []tracking.Record, observedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		if err := upsertAircraft(ctx, tx, rec, observedAt); err != nil {
			return fmt.Errorf("failed to upsert aircraft %s: %w", rec.ICAO24, err)
		}
		if err := insertPosition(ctx, tx, rec); err != nil {
			return fmt.Errorf("failed to insert position for %s: %w", rec.ICAO24, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}
	return nil
}

func upsertAircraft(ctx context.Context, tx *sql.Tx, rec tracking.Record, observedAt time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO aircraft (
			icao, callsign, origin_country, latitude, longitude,
			altitude_m, ground_speed_ms, track_deg, vertical_rate_ms,
			altitude_band, first_seen, last_seen, last_updated, position_count
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1
		)
		ON CONFLICT (icao) DO UPDATE SET
			callsign = EXCLUDED.callsign,
			origin_country = EXCLUDED.origin_country,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			altitude_m = EXCLUDED.altitude_m,
			ground_speed_ms = EXCLUDED.ground_speed_ms,
			track_deg = EXCLUDED.track_deg,
			vertical_rate_ms = EXCLUDED.vertical_rate_ms,
			altitude_band = EXCLUDED.altitude_band,
			last_seen = EXCLUDED.last_seen,
			last_updated = EXCLUDED.last_updated,
			position_count = CASE
				WHEN EXCLUDED.last_seen > aircraft.last_seen THEN aircraft.position_count + 1
				ELSE aircraft.position_count
			END`,
		rec.ICAO24,
		nullString(rec.Last.Callsign),
		nullString(rec.Last.OriginCountry),
		rec.Confirmed.Latitude, rec.Confirmed.Longitude,
		nullFloat(rec.Last.Altitude),
		nullFloat(rec.Last.GroundSpeed),
		nullFloat(rec.Last.Heading),
		nullFloat(rec.Last.VerticalRate),
		rec.Band.String(),
		rec.FirstSeen.UTC(), rec.LastSeen.UTC(), observedAt.UTC(),
	)
	return err
}

func insertPosition(ctx context.Context, tx *sql.Tx, rec tracking.Record) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO aircraft_positions (
			icao, timestamp, latitude, longitude,
			altitude_m, ground_speed_ms, track_deg,
			velocity_north_ms, velocity_east_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (icao, timestamp) DO NOTHING`,
		rec.ICAO24, rec.LastSeen.UTC(),
		rec.Confirmed.Latitude, rec.Confirmed.Longitude,
		nullFloat(rec.Last.Altitude),
		nullFloat(rec.Last.GroundSpeed),
		nullFloat(rec.Last.Heading),
		rec.Velocity.NorthMps, rec.Velocity.EastMps,
	)
	return err
}

// PositionRecord is one stored position.
type PositionRecord struct {
	ICAO24    string                 `json:"icao24"`
	Timestamp time.Time              `json:"timestamp"`
	Position  coordinates.Geographic `json:"position"`
	Altitude  adsb.Optional[float64] `json:"altitude"`
	Velocity  tracking.Velocity      `json:"velocity"`
}

// GetHistory returns the most recent positions of one aircraft, newest first.
func (r *HistoryRepository) GetHistory(ctx context.Context, icao string, limit int) ([]PositionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT icao, timestamp, latitude, longitude, altitude_m,
		        velocity_north_ms, velocity_east_ms
		 FROM aircraft_positions
		 WHERE icao = $1
		 ORDER BY timestamp DESC
		 LIMIT $2`,
		tracking.NormalizeICAO24(icao), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []PositionRecord
	for rows.Next() {
		var (
			p   PositionRecord
			alt sql.NullFloat64
		)
		if err := rows.Scan(
			&p.ICAO24, &p.Timestamp,
			&p.Position.Latitude, &p.Position.Longitude, &alt,
			&p.Velocity.NorthMps, &p.Velocity.EastMps,
		); err != nil {
			return nil, err
		}
		if alt.Valid {
			p.Altitude = adsb.Some(alt.Float64)
		}
		history = append(history, p)
	}

	return history, rows.Err()
}

func nullFloat(o adsb.Optional[float64]) sql.NullFloat64 {
	v, ok := o.Get()
	return sql.NullFloat64{Float64: v, Valid: ok}
}

func nullString(o adsb.Optional[string]) sql.NullString {
	v, ok := o.Get()
	return sql.NullString{String: v, Valid: ok}
}
