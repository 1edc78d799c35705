package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"signal_bridge/internal/domain"
	"signal_bridge/internal/event"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// statusPendingSubmit is stored until the gateway reports a status.
const statusPendingSubmit = "PendingSubmit"

// Journal is the SQLite-backed order journal.
type Journal struct {
	db *gorm.DB
}

// NewJournal opens (or creates) the journal database at path.
func NewJournal(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is empty")
	}

	// Ensure directory exists
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&domain.OrderRecord{}, &domain.ExecutionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Writes (called from the recorder goroutine)
// ======================================================================================

// RecordSubmission stores the order as sent. A row created earlier by a
// status callback keeps its status fields.
func (j *Journal) RecordSubmission(ctx context.Context, ev *event.SubmissionEvent) error {
	submitted := ev.Ts
	if submitted.IsZero() {
		submitted = time.Now()
	}
	rec := domain.OrderRecord{
		OrderID:     ev.OrderID,
		Symbol:      ev.Symbol,
		Action:      ev.Action,
		OrderType:   ev.OrderType,
		Quantity:    ev.Quantity,
		Exchange:    ev.Exchange,
		Currency:    ev.Currency,
		Status:      statusPendingSubmit,
		RequestID:   ev.RequestID,
		SubmittedAt: &submitted,
	}
	return j.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"symbol", "action", "order_type", "quantity", "exchange", "currency",
			"request_id", "submitted_at", "updated_at",
		}),
	}).Create(&rec).Error
}

// ApplyStatus upserts the latest orderStatus for an order.
func (j *Journal) ApplyStatus(ctx context.Context, ev *event.OrderStatusEvent) error {
	rec := domain.OrderRecord{
		OrderID:      ev.OrderID,
		Status:       ev.Status,
		Filled:       ev.Filled,
		Remaining:    ev.Remaining,
		AvgFillPrice: ev.AvgFillPrice,
		PermID:       ev.PermID,
	}
	return j.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "filled", "remaining", "avg_fill_price", "perm_id", "updated_at",
		}),
	}).Create(&rec).Error
}

// MarkOpen fills contract details from an openOrder callback. It never
// overrides a status already reported by orderStatus.
func (j *Journal) MarkOpen(ctx context.Context, ev *event.OpenOrderEvent) error {
	rec := domain.OrderRecord{
		OrderID:   ev.OrderID,
		Symbol:    ev.Symbol,
		Action:    ev.Action,
		OrderType: ev.OrderType,
		Quantity:  ev.Quantity.IntPart(),
		Exchange:  ev.Exchange,
		Currency:  ev.Currency,
		Status:    ev.Status,
	}
	return j.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"symbol":     gorm.Expr("COALESCE(NULLIF(order_records.symbol, ''), excluded.symbol)"),
			"action":     gorm.Expr("COALESCE(NULLIF(order_records.action, ''), excluded.action)"),
			"order_type": gorm.Expr("COALESCE(NULLIF(order_records.order_type, ''), excluded.order_type)"),
			"quantity":   gorm.Expr("CASE WHEN order_records.quantity = 0 THEN excluded.quantity ELSE order_records.quantity END"),
			"exchange":   gorm.Expr("COALESCE(NULLIF(order_records.exchange, ''), excluded.exchange)"),
			"currency":   gorm.Expr("COALESCE(NULLIF(order_records.currency, ''), excluded.currency)"),
			"status":     gorm.Expr("CASE WHEN order_records.status IN ('', ?) THEN excluded.status ELSE order_records.status END", statusPendingSubmit),
			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&rec).Error
}

// RecordExecution stores a fill. Replayed execIds are ignored.
func (j *Journal) RecordExecution(ctx context.Context, ev *event.ExecutionEvent) error {
	rec := domain.ExecutionRecord{
		ExecID:     ev.ExecID,
		OrderID:    ev.OrderID,
		ReqID:      ev.ReqID,
		Symbol:     ev.Symbol,
		Side:       ev.Side,
		Shares:     ev.Shares,
		Price:      ev.Price,
		ExecutedAt: ev.ExecutedAt,
	}
	return j.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
}

// ======================================================================================
// Reads
// ======================================================================================

// GetOrder retrieves an order by gateway id
func (j *Journal) GetOrder(ctx context.Context, orderID int64) (*domain.OrderRecord, error) {
	var rec domain.OrderRecord
	err := j.db.WithContext(ctx).First(&rec, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListExecutions returns the fills of an order, oldest first.
func (j *Journal) ListExecutions(ctx context.Context, orderID int64) ([]domain.ExecutionRecord, error) {
	var execs []domain.ExecutionRecord
	err := j.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at, exec_id").
		Find(&execs).Error
	return execs, err
}
