package db

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/ingest"
)

// RecordProfileUpdate stores one applied profile. Recording the same update
// twice is a no-op.
func (db *DB) RecordProfileUpdate(ctx context.Context, u ingest.Update) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO profile_updates (
			update_id, offset_x, offset_y, offset_z, listen_port,
			source, remote, conn_id, applied_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Profile.OffsetX, u.Profile.OffsetY, u.Profile.OffsetZ, u.Profile.ListenPort,
		string(u.Source), u.Remote, u.ConnID, u.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record profile update %s: %w", u.ID, err)
	}
	return nil
}

// RecentProfileUpdates returns up to limit updates, newest first.
func (db *DB) RecentProfileUpdates(ctx context.Context, limit int) ([]ingest.Update, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT update_id, offset_x, offset_y, offset_z, listen_port,
		       source, remote, conn_id, applied_at
		FROM profile_updates
		ORDER BY applied_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query profile updates: %w", err)
	}
	defer rows.Close()

	var updates []ingest.Update
	for rows.Next() {
		var (
			u         ingest.Update
			p         calibration.Profile
			source    string
			appliedAt int64
		)
		if err := rows.Scan(&u.ID, &p.OffsetX, &p.OffsetY, &p.OffsetZ, &p.ListenPort,
			&source, &u.Remote, &u.ConnID, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile update: %w", err)
		}
		u.Profile = p
		u.Source = ingest.Source(source)
		u.At = time.Unix(0, appliedAt).UTC()
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return updates, nil
}

// CountProfileUpdates returns the number of journal rows.
func (db *DB) CountProfileUpdates(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profile_updates`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
