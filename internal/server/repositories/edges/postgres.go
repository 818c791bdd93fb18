package edges

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/futuravault/futuravault/internal/common"
	"github.com/futuravault/futuravault/internal/dbx"
	"github.com/futuravault/futuravault/internal/server/models"
)

// PostgresRepository implements storage-edge persistence over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, e *models.StorageEdge) error {
	query := `
		INSERT INTO storage_edges (id, memory_id, backend, asset_type, remote_id, checksum, size_bytes, verification)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (memory_id, backend, asset_type)
		DO UPDATE SET
			remote_id = EXCLUDED.remote_id,
			checksum = EXCLUDED.checksum,
			size_bytes = EXCLUDED.size_bytes,
			verification = EXCLUDED.verification;
	`
	res, err := r.db.ExecContext(ctx, query,
		e.ID, e.MemoryID, string(e.Backend), string(e.AssetType),
		e.RemoteID, e.Checksum, e.SizeBytes, string(e.Verification))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

func (r *PostgresRepository) ListByMemory(ctx context.Context, memoryID string) ([]*models.StorageEdge, error) {
	query := `
		SELECT id, memory_id, backend, asset_type, remote_id, checksum, size_bytes, verification, verified_at
		FROM storage_edges
		WHERE memory_id=$1
	`
	rows, err := r.db.QueryContext(ctx, query, memoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to select edges: %w", err)
	}
	defer rows.Close()

	var result []*models.StorageEdge
	for rows.Next() {
		var item models.StorageEdge
		var backend, assetType, verification string
		if err := rows.Scan(&item.ID, &item.MemoryID, &backend, &assetType,
			&item.RemoteID, &item.Checksum, &item.SizeBytes, &verification, &item.VerifiedAt); err != nil {
			return nil, err
		}
		item.Backend = models.Backend(backend)
		item.AssetType = models.AssetType(assetType)
		item.Verification = models.EdgeVerification(verification)
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, memoryID string, backend models.Backend, assetType models.AssetType, checksum string) (*models.StorageEdge, error) {
	query := `
		UPDATE storage_edges
		SET verification='verified', verified_at=now(), checksum=$4
		WHERE memory_id=$1 AND backend=$2 AND asset_type=$3
		RETURNING id, memory_id, backend, asset_type, remote_id, checksum, size_bytes, verification, verified_at
	`

	item := &models.StorageEdge{}
	var b, at, verification string
	err := r.db.QueryRowContext(ctx, query, memoryID, string(backend), string(assetType), checksum).Scan(
		&item.ID, &item.MemoryID, &b, &at,
		&item.RemoteID, &item.Checksum, &item.SizeBytes, &verification, &item.VerifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark verified: %w", err)
	}
	item.Backend = models.Backend(b)
	item.AssetType = models.AssetType(at)
	item.Verification = models.EdgeVerification(verification)
	return item, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM storage_edges WHERE id=$1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete edge: %w", err)
	}
	return nil
}
