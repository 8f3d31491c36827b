package requestctx

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	accountIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithAccountID stores the authenticated ledger account.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, accountIDKey, accountID)
}

// AccountID returns the authenticated ledger account, or "".
func AccountID(ctx context.Context) string {
	return stringValue(ctx, accountIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}
