package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRecord is the journal row for one gateway order id.
// Rows may be created by a status callback before the submission is recorded.
type OrderRecord struct {
	OrderID      int64           `gorm:"primaryKey;autoIncrement:false" json:"order_id"`
	Symbol       string          `gorm:"index" json:"symbol"`
	Action       string          `json:"action"`
	OrderType    string          `json:"order_type"`
	Quantity     int64           `json:"quantity"`
	Exchange     string          `json:"exchange"`
	Currency     string          `json:"currency"`
	Status       string          `gorm:"index" json:"status"`
	Filled       decimal.Decimal `gorm:"type:text" json:"filled"`
	Remaining    decimal.Decimal `gorm:"type:text" json:"remaining"`
	AvgFillPrice decimal.Decimal `gorm:"type:text" json:"avg_fill_price"`
	PermID       int64           `json:"perm_id"`
	RequestID    string          `json:"request_id,omitempty"`
	SubmittedAt  *time.Time      `json:"submitted_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ExecutionRecord is one fill reported by the gateway.
type ExecutionRecord struct {
	ExecID     string          `gorm:"primaryKey" json:"exec_id"`
	OrderID    int64           `gorm:"index" json:"order_id"`
	ReqID      int64           `json:"req_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Shares     decimal.Decimal `gorm:"type:text" json:"shares"`
	Price      decimal.Decimal `gorm:"type:text" json:"price"`
	ExecutedAt string          `json:"executed_at"` // gateway-formatted time
	CreatedAt  time.Time       `json:"created_at"`
}
