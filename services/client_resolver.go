package services

import (
	"fmt"

	"github.com/escrowhq/escrow/clients/evm"
)

// ClientResolver provides access to chain-specific read endpoints
type ClientResolver interface {
	// GetClient returns the read backend for the specified chain ID
	GetClient(chainID uint64) (evm.Backend, error)
}

// SimpleClientResolver is a basic implementation of ClientResolver that maintains a map of chain IDs to clients
type SimpleClientResolver struct {
	clients map[uint64]evm.Backend
}

// NewSimpleClientResolver creates a new resolver with the provided map of chain IDs to clients
func NewSimpleClientResolver(clients map[uint64]evm.Backend) *SimpleClientResolver {
	return &SimpleClientResolver{
		clients: clients,
	}
}

// GetClient returns the client for the specified chain ID
func (r *SimpleClientResolver) GetClient(chainID uint64) (evm.Backend, error) {
	client, ok := r.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("no client found for chain ID %d", chainID)
	}
	return client, nil
}
