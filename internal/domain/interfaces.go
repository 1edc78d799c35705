package domain

import "context"

// GatewaySession is the order gateway connection as seen by the rest of the app.
type GatewaySession interface {
	Start(ctx context.Context) error
	Stop()
	IsReady() bool
	Submit(ctx context.Context, contract Contract, order Order) (int64, error)
}

// OrderJournal persists submissions and gateway callbacks.
type OrderJournal interface {
	GetOrder(ctx context.Context, orderID int64) (*OrderRecord, error)
	ListExecutions(ctx context.Context, orderID int64) ([]ExecutionRecord, error)
}
