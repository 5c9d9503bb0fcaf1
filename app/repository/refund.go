package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-refunds/app/entity"
)

var (
	ErrRefundNotFound      = errors.New("refund not found")
	ErrRefundAlreadyExists = errors.New("refund already exists")
	ErrRefundStateChanged  = errors.New("refund changed since it was read")
)

const refundColumns = `id, refund_id, charge_id, amount, currency, type, status, reason, description, merchant_reference,
	metadata_json, gateway_response, completed_at,
	notification_status, notification_attempts, notification_next_at, notification_last_error,
	created_at, updated_at`

type RefundFilter struct {
	ChargeID string
	Status   entity.RefundStatus
	Limit    int32
	Offset   int32
}

type RefundRepository struct {
	db DBTX
}

func NewRefundRepository(db DBTX) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(ctx context.Context, refund *entity.Refund) error {
	metadataJSON, err := serializeMetadata(refund.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO refunds (
			refund_id, charge_id, amount, currency, type, status, reason, description, merchant_reference,
			metadata_json, gateway_response, completed_at,
			notification_status, notification_attempts, notification_next_at, notification_last_error,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		nullableStringValue(refund.RefundID),
		refund.ChargeID,
		refund.Amount.StringFixed(3),
		refund.Currency,
		string(refund.Type),
		string(refund.Status),
		refund.Reason,
		nullableStringValue(refund.Description),
		nullableStringValue(refund.MerchantReference),
		metadataJSON,
		nullableJSON(refund.GatewayResponse),
		nullableTimeValue(refund.CompletedAt),
		refund.NotificationStatus,
		refund.NotificationAttempts,
		nullableTimeValue(refund.NotificationNextAt),
		nullableStringValue(refund.NotificationLastErr),
		refund.CreatedAt,
		refund.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrRefundAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	refund.ID = uint64(id)
	return nil
}

// Update writes the mutable refund fields of a status transition. The write only lands while the
// stored status still equals expected; otherwise ErrRefundStateChanged is returned.
// A stored gateway refund id is never replaced.
func (r *RefundRepository) Update(ctx context.Context, refund *entity.Refund, expected entity.RefundStatus) error {
	metadataJSON, err := serializeMetadata(refund.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE refunds SET
			refund_id = COALESCE(refund_id, ?),
			status = ?,
			reason = ?,
			description = ?,
			merchant_reference = ?,
			metadata_json = ?,
			gateway_response = ?,
			completed_at = ?,
			notification_status = ?,
			notification_attempts = ?,
			notification_next_at = ?,
			notification_last_error = ?,
			updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		nullableStringValue(refund.RefundID),
		string(refund.Status),
		refund.Reason,
		nullableStringValue(refund.Description),
		nullableStringValue(refund.MerchantReference),
		metadataJSON,
		nullableJSON(refund.GatewayResponse),
		nullableTimeValue(refund.CompletedAt),
		refund.NotificationStatus,
		refund.NotificationAttempts,
		nullableTimeValue(refund.NotificationNextAt),
		nullableStringValue(refund.NotificationLastErr),
		refund.UpdatedAt,
		refund.ID,
		string(expected),
	)
	return checkGuardedWrite(result, err)
}

// UpdateSnapshot replaces only the stored gateway payload.
func (r *RefundRepository) UpdateSnapshot(ctx context.Context, id uint64, gatewayResponse string, updatedAt time.Time) error {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE refunds SET gateway_response = ?, updated_at = ? WHERE id = ?`,
		nullableJSON(gatewayResponse),
		updatedAt,
		id,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRefundNotFound
	}
	return nil
}

// UpdateNotification writes only the notification delivery columns, and only while the stored
// delivery state still matches expectedStatus and expectedAttempts.
func (r *RefundRepository) UpdateNotification(ctx context.Context, refund *entity.Refund, expectedStatus, expectedAttempts int32) error {
	query := `
		UPDATE refunds SET
			notification_status = ?,
			notification_attempts = ?,
			notification_next_at = ?,
			notification_last_error = ?,
			updated_at = ?
		WHERE id = ? AND notification_status = ? AND notification_attempts = ?
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		refund.NotificationStatus,
		refund.NotificationAttempts,
		nullableTimeValue(refund.NotificationNextAt),
		nullableStringValue(refund.NotificationLastErr),
		refund.UpdatedAt,
		refund.ID,
		expectedStatus,
		expectedAttempts,
	)
	return checkGuardedWrite(result, err)
}

func checkGuardedWrite(result sql.Result, err error) error {
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRefundStateChanged
	}
	return nil
}

func (r *RefundRepository) FindByRefundID(ctx context.Context, refundID string) (*entity.Refund, error) {
	return r.findOne(ctx, `SELECT `+refundColumns+` FROM refunds WHERE refund_id = ? LIMIT 1`, refundID)
}

func (r *RefundRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Refund, error) {
	refund := &entity.Refund{}
	if err := scanRefund(conn(ctx, r.db).QueryRowContext(ctx, query, args...), refund); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return refund, nil
}

func (r *RefundRepository) ListByChargeID(ctx context.Context, chargeID string) ([]*entity.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE charge_id = ? ORDER BY id ASC`
	return r.query(ctx, query, chargeID)
}

func (r *RefundRepository) List(ctx context.Context, filter RefundFilter) ([]*entity.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds`

	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)

	if strings.TrimSpace(filter.ChargeID) != "" {
		conditions = append(conditions, "charge_id = ?")
		args = append(args, filter.ChargeID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	return r.query(ctx, query, args...)
}

// SumAmountByChargeIDAndStatus totals the refunds of a charge that are in status.
func (r *RefundRepository) SumAmountByChargeIDAndStatus(ctx context.Context, chargeID string, status entity.RefundStatus) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE charge_id = ? AND status = ?`

	var total decimal.Decimal
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, chargeID, string(status)).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *RefundRepository) ExistsByChargeIDAndStatus(ctx context.Context, chargeID string, status entity.RefundStatus) (bool, error) {
	query := `SELECT COUNT(1) FROM refunds WHERE charge_id = ? AND status = ?`

	var count int64
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, chargeID, string(status)).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RefundRepository) ListDueNotificationDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.Refund, error) {
	query := `
		SELECT ` + refundColumns + `
		FROM refunds
		WHERE notification_status = ?
		  AND notification_next_at IS NOT NULL
		  AND notification_next_at <= ?
		ORDER BY notification_next_at ASC
		LIMIT ?
	`
	return r.query(ctx, query, entity.NotificationDeliveryPending, now, limit)
}

// ListStaleNonTerminal returns gateway-backed refunds still pending or accepted
// that have not been touched since before.
func (r *RefundRepository) ListStaleNonTerminal(ctx context.Context, before time.Time, limit int32) ([]*entity.Refund, error) {
	query := `
		SELECT ` + refundColumns + `
		FROM refunds
		WHERE status IN (?, ?)
		  AND refund_id IS NOT NULL
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`
	return r.query(ctx, query, string(entity.RefundStatusPending), string(entity.RefundStatusAccepted), before, limit)
}

func (r *RefundRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Refund, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refunds := make([]*entity.Refund, 0)
	for rows.Next() {
		item := &entity.Refund{}
		if err := scanRefund(rows, item); err != nil {
			return nil, err
		}
		refunds = append(refunds, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return refunds, nil
}

func scanRefund(scan rowScanner, refund *entity.Refund) error {
	var refundID sql.NullString
	var refundType string
	var status string
	var description sql.NullString
	var merchantReference sql.NullString
	var metadataJSON string
	var gatewayResponse sql.NullString
	var completedAt sql.NullTime
	var notificationNextAt sql.NullTime
	var notificationLastErr sql.NullString

	err := scan.Scan(
		&refund.ID,
		&refundID,
		&refund.ChargeID,
		&refund.Amount,
		&refund.Currency,
		&refundType,
		&status,
		&refund.Reason,
		&description,
		&merchantReference,
		&metadataJSON,
		&gatewayResponse,
		&completedAt,
		&refund.NotificationStatus,
		&refund.NotificationAttempts,
		&notificationNextAt,
		&notificationLastErr,
		&refund.CreatedAt,
		&refund.UpdatedAt,
	)
	if err != nil {
		return err
	}

	refund.RefundID = stringPtrFromNull(refundID)
	refund.Type = entity.RefundType(refundType)
	refund.Status = entity.RefundStatus(status)
	refund.Description = stringPtrFromNull(description)
	refund.MerchantReference = stringPtrFromNull(merchantReference)
	refund.GatewayResponse = gatewayResponse.String
	refund.CompletedAt = timePtrFromNull(completedAt)
	refund.NotificationNextAt = timePtrFromNull(notificationNextAt)
	refund.NotificationLastErr = stringPtrFromNull(notificationLastErr)

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	refund.Metadata = metadata

	return nil
}
