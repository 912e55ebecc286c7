package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/templedb/templedb/internal/types"
)

// UpsertCheckout records (or refreshes) where a project is materialized.
func (s *Store) UpsertCheckout(ctx context.Context, checkout *types.Checkout) (int64, error) {
	now := time.Now().UTC()
	if checkout.CreatedAt.IsZero() {
		checkout.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkouts (project_id, branch_id, checkout_path, created_at, last_sync_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id, checkout_path) DO UPDATE SET
			branch_id = excluded.branch_id,
			last_sync_at = excluded.last_sync_at`,
		checkout.ProjectID, checkout.BranchID, checkout.Path, checkout.CreatedAt, now)
	if err != nil {
		return 0, wrapDBErrorf(err, "upsert checkout %s", checkout.Path)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM checkouts WHERE project_id = ? AND checkout_path = ?`,
		checkout.ProjectID, checkout.Path).Scan(&id)
	if err != nil {
		return 0, wrapDBErrorf(err, "resolve checkout id %s", checkout.Path)
	}
	checkout.ID = id
	return id, nil
}

// GetCheckout looks up a checkout by project and path.
func (s *Store) GetCheckout(ctx context.Context, projectID int64, path string) (*types.Checkout, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, branch_id, checkout_path, created_at, last_sync_at
		FROM checkouts WHERE project_id = ? AND checkout_path = ?`, projectID, path)
	return scanCheckout(row, path)
}

func scanCheckout(row *sql.Row, key string) (*types.Checkout, error) {
	var c types.Checkout
	var lastSync sql.NullTime
	err := row.Scan(&c.ID, &c.ProjectID, &c.BranchID, &c.Path, &c.CreatedAt, &lastSync)
	if err != nil {
		return nil, wrapDBErrorf(err, "get checkout %s", key)
	}
	if lastSync.Valid {
		c.LastSyncAt = &lastSync.Time
	}
	return &c, nil
}

// ListCheckouts returns a project's checkouts ordered by path.
func (s *Store) ListCheckouts(ctx context.Context, projectID int64) ([]*types.Checkout, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, branch_id, checkout_path, created_at, last_sync_at
		FROM checkouts WHERE project_id = ? ORDER BY checkout_path`, projectID)
	if err != nil {
		return nil, wrapDBError("list checkouts", err)
	}
	defer func() { _ = rows.Close() }()

	var checkouts []*types.Checkout
	for rows.Next() {
		var c types.Checkout
		var lastSync sql.NullTime
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.BranchID, &c.Path, &c.CreatedAt, &lastSync); err != nil {
			return nil, wrapDBError("scan checkout", err)
		}
		if lastSync.Valid {
			c.LastSyncAt = &lastSync.Time
		}
		checkouts = append(checkouts, &c)
	}
	return checkouts, rows.Err()
}

// DeleteCheckout removes a checkout; its snapshots cascade.
func (s *Store) DeleteCheckout(ctx context.Context, checkoutID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkouts WHERE id = ?`, checkoutID)
	if err != nil {
		return wrapDBErrorf(err, "delete checkout %d", checkoutID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("delete checkout", err)
	}
	if n == 0 {
		return wrapDBErrorf(sql.ErrNoRows, "delete checkout %d", checkoutID)
	}
	return nil
}

// ReplaceSnapshots swaps a checkout's snapshot set wholesale.
func (s *Store) ReplaceSnapshots(ctx context.Context, checkoutID int64, snapshots []*types.CheckoutSnapshot) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return wrapDBError("acquire connection", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediate(ctx, conn); err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if _, err := conn.ExecContext(ctx,
		`DELETE FROM checkout_snapshots WHERE checkout_id = ?`, checkoutID); err != nil {
		return wrapDBError("clear snapshots", err)
	}
	now := time.Now().UTC()
	for _, snap := range snapshots {
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO checkout_snapshots (checkout_id, file_id, content_hash, version, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			checkoutID, snap.FileID, snap.ContentHash, snap.Version, now); err != nil {
			return wrapDBErrorf(err, "insert snapshot for file %d", snap.FileID)
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return wrapDBError("commit snapshots", err)
	}
	committed = true
	return nil
}

// GetSnapshot returns the snapshot row for one file in a checkout.
func (s *Store) GetSnapshot(ctx context.Context, checkoutID, fileID int64) (*types.CheckoutSnapshot, error) {
	return getSnapshot(ctx, s.db, checkoutID, fileID)
}

func getSnapshot(ctx context.Context, q querier, checkoutID, fileID int64) (*types.CheckoutSnapshot, error) {
	var snap types.CheckoutSnapshot
	err := q.QueryRowContext(ctx, `
		SELECT checkout_id, file_id, content_hash, version, created_at
		FROM checkout_snapshots WHERE checkout_id = ? AND file_id = ?`,
		checkoutID, fileID).
		Scan(&snap.CheckoutID, &snap.FileID, &snap.ContentHash, &snap.Version, &snap.CreatedAt)
	if err != nil {
		return nil, wrapDBErrorf(err, "get snapshot for file %d", fileID)
	}
	return &snap, nil
}

// ListSnapshots returns every snapshot of a checkout.
func (s *Store) ListSnapshots(ctx context.Context, checkoutID int64) ([]*types.CheckoutSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT checkout_id, file_id, content_hash, version, created_at
		FROM checkout_snapshots WHERE checkout_id = ? ORDER BY file_id`, checkoutID)
	if err != nil {
		return nil, wrapDBError("list snapshots", err)
	}
	defer func() { _ = rows.Close() }()

	var snaps []*types.CheckoutSnapshot
	for rows.Next() {
		var snap types.CheckoutSnapshot
		if err := rows.Scan(&snap.CheckoutID, &snap.FileID, &snap.ContentHash,
			&snap.Version, &snap.CreatedAt); err != nil {
			return nil, wrapDBError("scan snapshot", err)
		}
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}

func upsertSnapshot(ctx context.Context, q querier, snap *types.CheckoutSnapshot) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO checkout_snapshots (checkout_id, file_id, content_hash, version, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(checkout_id, file_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			version = excluded.version`,
		snap.CheckoutID, snap.FileID, snap.ContentHash, snap.Version, time.Now().UTC())
	return wrapDBErrorf(err, "upsert snapshot for file %d", snap.FileID)
}

func deleteSnapshot(ctx context.Context, q querier, checkoutID, fileID int64) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM checkout_snapshots WHERE checkout_id = ? AND file_id = ?`,
		checkoutID, fileID)
	return wrapDBErrorf(err, "delete snapshot for file %d", fileID)
}

func touchCheckout(ctx context.Context, q querier, checkoutID int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE checkouts SET last_sync_at = ? WHERE id = ?`, time.Now().UTC(), checkoutID)
	return wrapDBErrorf(err, "touch checkout %d", checkoutID)
}
