package auth

import "context"

type contextKey string

const (
	// ContextKeyOwnerID is the context key for the authenticated owner's user id.
	ContextKeyOwnerID contextKey = "owner_id"
	// ContextKeyEVMAddress is the context key for the authenticated EVM address.
	ContextKeyEVMAddress contextKey = "evm_address"
)

// WithOwnerID adds the owner id to the context.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ContextKeyOwnerID, ownerID)
}

// OwnerIDFromContext retrieves the owner id from the context.
func OwnerIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextKeyOwnerID).(string)
	return id, ok
}

// WithEVMAddress adds the EVM address to the context.
func WithEVMAddress(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, ContextKeyEVMAddress, address)
}

// EVMAddressFromContext retrieves the EVM address from the context.
func EVMAddressFromContext(ctx context.Context) (string, bool) {
	addr, ok := ctx.Value(ContextKeyEVMAddress).(string)
	return addr, ok
}
