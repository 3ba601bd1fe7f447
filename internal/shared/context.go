package shared

import "context"

type contextKey string

const operatorKey contextKey = "operator"

// Operator identifies the authenticated cashier or admin acting on a
// request. Authentication itself happens upstream; the router trusts
// the X-Operator-ID header set by the auth proxy.
type Operator struct {
	ID   int64
	Name string
}

// ContextWithOperator stores the operator in the context.
func ContextWithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

// OperatorFromContext retrieves the operator, if any.
func OperatorFromContext(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorKey).(Operator)
	return op, ok
}
