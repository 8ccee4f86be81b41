package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/countdown.report/internal/segment"
)

// unixFloat converts a time to unix seconds with subsecond precision,
// the representation used for every timestamp column.
func unixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// timeFromUnix is the inverse of unixFloat.
func timeFromUnix(f float64) time.Time {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// InsertObservations appends raw segment observations to the segment
// log in a single transaction.
func (db *DB) InsertObservations(ctx context.Context, obs []segment.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			fmt.Printf("warning: failed to rollback transaction: %v\n", err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (
			site_url, visit_id, node_id, top, "left", width, height, inner_text, time_stamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx,
			o.SiteURL, o.VisitID, o.NodeID, o.Top, o.Left, o.Width, o.Height, o.InnerText, unixFloat(o.Time),
		); err != nil {
			return fmt.Errorf("failed to insert observation: %w", err)
		}
	}

	return tx.Commit()
}

// ObservationRange returns the earliest and latest observation
// timestamps in the segment log. ok is false when the log is empty.
func (db *DB) ObservationRange(ctx context.Context) (start, end float64, ok bool, err error) {
	var s, e sql.NullFloat64
	err = db.QueryRowContext(ctx, `SELECT MIN(time_stamp), MAX(time_stamp) FROM segments`).Scan(&s, &e)
	if err != nil {
		return 0, 0, false, err
	}
	if !s.Valid || !e.Valid {
		return 0, 0, false, nil
	}
	return s.Float64, e.Float64, true, nil
}

// LoadObservations returns all observations with time_stamp in
// [start, end], ordered by timestamp ascending.
func (db *DB) LoadObservations(ctx context.Context, start, end float64) ([]segment.Observation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			site_url, visit_id, node_id, top, "left", width, height, inner_text, time_stamp
		FROM
			segments
		WHERE
			time_stamp BETWEEN ? AND ?
		ORDER BY
			time_stamp
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var obs []segment.Observation
	for rows.Next() {
		var o segment.Observation
		var ts float64
		if err := rows.Scan(&o.SiteURL, &o.VisitID, &o.NodeID, &o.Top, &o.Left, &o.Width, &o.Height, &o.InnerText, &ts); err != nil {
			return nil, err
		}
		o.Time = timeFromUnix(ts)
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return obs, nil
}

// CountObservations returns the total number of rows in the segment log.
func (db *DB) CountObservations(ctx context.Context) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
