package instrument

import "context"

type correlationIDKey struct{}

const invalidCorrelationID = "[invalid_chain_id]"

// SetCorrelationID returns a child context carrying the correlation ID.
func SetCorrelationID(ctx context.Context, cID string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, cID)
}

// GetCorrelationID extracts the correlation ID from the context. It returns a
// sentinel value when the context carries none, so log output still shows that
// the chain was broken.
func GetCorrelationID(ctx context.Context) string {
	if cID, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return cID
	}
	return invalidCorrelationID
}
