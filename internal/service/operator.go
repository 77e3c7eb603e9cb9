package service

import "context"

type operatorKey struct{}

// WithOperator tags ctx with the ID of the signed-in operator so that
// commands issued under it are attributed in the event log.
func WithOperator(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, operatorKey{}, userID)
}

// OperatorFrom returns the operator ID set by WithOperator.
func OperatorFrom(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(operatorKey{}).(int)
	return id, ok
}
