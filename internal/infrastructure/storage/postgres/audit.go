// Package postgres provides PostgreSQL infrastructure components.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	appctx "mercatus/internal/core/context"
	"mercatus/internal/core/id"
)

// AuditAction represents the type of audited pricing operation.
type AuditAction string

const (
	AuditActionRateUpdate AuditAction = "rate_update"
	AuditActionSyncRun    AuditAction = "sync_run"
	AuditActionSyncRetry  AuditAction = "sync_retry"
	AuditActionPriceEdit  AuditAction = "price_edit"
)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is a single audit log entry. Rate snapshots and sync error
// payloads can be large, so bodies over the threshold are stored zstd
// compressed.
type AuditEntry struct {
	ID              id.ID           `db:"id"`
	EntityType      string          `db:"entity_type"`
	EntityID        id.ID           `db:"entity_id"`
	Action          AuditAction     `db:"action"`
	ActorID         string          `db:"actor_id"`
	ActorEmail      string          `db:"actor_email"`
	Payload         json.RawMessage `db:"payload"`
	PayloadZstd     []byte          `db:"payload_zstd"`
	CompressionAlgo CompressionAlgo `db:"compression_algo"`
	CreatedAt       time.Time       `db:"created_at"`
}

// AuditTrail records pricing operations for later inspection.
type AuditTrail struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewAuditTrail creates an audit trail over txManager.
func NewAuditTrail(txManager *TxManager) (*AuditTrail, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditTrail{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Record writes one audit entry. Actor identity is taken from the request
// context when the entry does not carry it already.
func (t *AuditTrail) Record(ctx context.Context, entry AuditEntry) error {
	if actor := appctx.GetActor(ctx); actor != nil {
		if entry.ActorID == "" {
			entry.ActorID = actor.ActorID
		}
		if entry.ActorEmail == "" {
			entry.ActorEmail = actor.Email
		}
	}
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	entry.CompressionAlgo = CompressionNone
	if len(entry.Payload) > t.compressThreshold {
		entry.PayloadZstd = t.encoder.EncodeAll(entry.Payload, nil)
		entry.Payload = nil
		entry.CompressionAlgo = CompressionZstd
	}

	sql := `
		INSERT INTO sys_audit (
			id, entity_type, entity_id, action, actor_id, actor_email,
			payload, payload_zstd, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	querier := t.txManager.GetQuerier(ctx)
	_, err := querier.Exec(ctx, sql,
		entry.ID, entry.EntityType, entry.EntityID, entry.Action,
		entry.ActorID, entry.ActorEmail,
		entry.Payload, entry.PayloadZstd, entry.CompressionAlgo, entry.CreatedAt,
	)
	return err
}

// RecordChange marshals payload and records it under the given action.
func (t *AuditTrail) RecordChange(ctx context.Context, entityType string, entityID id.ID, action AuditAction, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	return t.Record(ctx, AuditEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Payload:    body,
	})
}

// History retrieves audit entries for an entity, newest first. Compressed
// payloads come back inflated.
func (t *AuditTrail) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]AuditEntry, error) {
	sql := `
		SELECT id, entity_type, entity_id, action, actor_id, actor_email,
		       payload, payload_zstd, compression_algo, created_at
		FROM sys_audit
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := t.txManager.GetQuerier(ctx).Query(ctx, sql, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		err := rows.Scan(
			&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.ActorID, &e.ActorEmail,
			&e.Payload, &e.PayloadZstd, &e.CompressionAlgo, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		if e.CompressionAlgo == CompressionZstd && len(e.PayloadZstd) > 0 {
			inflated, err := t.decoder.DecodeAll(e.PayloadZstd, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress audit payload: %w", err)
			}
			e.Payload = inflated
			e.PayloadZstd = nil
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}
