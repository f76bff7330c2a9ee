package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dentalbook/marketplace-api/internal/model"
)

type auditRepository struct {
	BaseRepository
}

// auditRow scans jsonb as text so the payload is copied out of the driver
// buffer.
type auditRow struct {
	model.AuditLog
	Data sql.NullString `db:"additional_data_text"`
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, user_id, action, resource_type, resource_id, method, request_path,
			status_code, ip_address, user_agent, request_id, additional_data,
			nhs_compliance, access_reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13, $14, $15)
	`
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	var data sql.NullString
	if len(log.AdditionalData) > 0 {
		data = sql.NullString{String: string(log.AdditionalData), Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		log.Method,
		log.RequestPath,
		log.StatusCode,
		log.IPAddress,
		log.UserAgent,
		log.RequestID,
		data,
		log.NHSCompliance,
		log.AccessReason,
		log.CreatedAt,
	)
	return mapError(err, "create audit log")
}

func (r *auditRepository) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.ResourceType != "" {
		args = append(args, filter.ResourceType)
		where = append(where, fmt.Sprintf("resource_type = $%d", len(args)))
	}

	query := `
		SELECT id, user_id, action, resource_type, resource_id, method, request_path,
			status_code, ip_address, user_agent, request_id, additional_data::text AS additional_data_text,
			nhs_compliance, access_reason, created_at
		FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []auditRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, mapError(err, "list audit logs")
	}

	logs := make([]*model.AuditLog, 0, len(rows))
	for i := range rows {
		entry := rows[i].AuditLog
		if rows[i].Data.Valid {
			entry.AdditionalData = json.RawMessage(rows[i].Data.String)
		}
		logs = append(logs, &entry)
	}
	return logs, nil
}
