package services

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/escrowhq/escrow/models"
)

// Event names the factory may use to announce a new escrow instance.
var purchaseCreationEvents = []string{"CreatedContract", "CreatedPurchase"}

// ErrPurchaseAddressUnknown is returned when no strategy recovers the escrow
// instance created by a factory transaction.
var ErrPurchaseAddressUnknown = models.NewError(models.KindLedger, "could not determine purchase contract address")

// AddressRecoveryStrategy extracts the address of a newly created escrow
// instance from the logs of a factory transaction.
type AddressRecoveryStrategy interface {
	Name() string
	Recover(logs []*types.Log) (common.Address, bool)
}

// EventArgumentStrategy decodes logs with the factory ABI and reads the first
// argument of the first event whose name is in Events.
type EventArgumentStrategy struct {
	ABI    abi.ABI
	Events []string
}

func (s EventArgumentStrategy) Name() string { return "event_argument" }

func (s EventArgumentStrategy) Recover(logs []*types.Log) (common.Address, bool) {
	for _, log := range logs {
		if log == nil || len(log.Topics) == 0 {
			continue
		}

		event, err := s.ABI.EventByID(log.Topics[0])
		if err != nil || !s.matches(event.Name) || len(event.Inputs) == 0 {
			continue
		}

		if addr, ok := firstAddressArgument(event, log); ok {
			return addr, true
		}
	}

	return common.Address{}, false
}

func (s EventArgumentStrategy) matches(name string) bool {
	for _, n := range s.Events {
		if n == name {
			return true
		}
	}

	return false
}

func firstAddressArgument(event *abi.Event, log *types.Log) (common.Address, bool) {
	first := event.Inputs[0]

	if first.Indexed {
		if len(log.Topics) < 2 {
			return common.Address{}, false
		}

		addr := common.BytesToAddress(log.Topics[1].Bytes())
		return addr, addr != (common.Address{})
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil || len(values) == 0 {
		return common.Address{}, false
	}

	addr, ok := values[0].(common.Address)
	return addr, ok && addr != (common.Address{})
}

// ForeignEmitterStrategy picks the address of the first log not emitted by
// the factory itself. New instances typically emit during initialization.
type ForeignEmitterStrategy struct {
	Factory common.Address
}

func (s ForeignEmitterStrategy) Name() string { return "foreign_emitter" }

func (s ForeignEmitterStrategy) Recover(logs []*types.Log) (common.Address, bool) {
	for _, log := range logs {
		if log != nil && log.Address != s.Factory && log.Address != (common.Address{}) {
			return log.Address, true
		}
	}

	return common.Address{}, false
}

// DefaultRecoveryStrategies returns the event decoding strategy followed by
// the emitter heuristic.
func DefaultRecoveryStrategies(factoryABI abi.ABI, factory common.Address) []AddressRecoveryStrategy {
	return []AddressRecoveryStrategy{
		EventArgumentStrategy{ABI: factoryABI, Events: purchaseCreationEvents},
		ForeignEmitterStrategy{Factory: factory},
	}
}

// RecoverPurchaseAddress applies strategies in order.
func RecoverPurchaseAddress(logs []*types.Log, strategies []AddressRecoveryStrategy) (common.Address, string, error) {
	for _, strategy := range strategies {
		if addr, ok := strategy.Recover(logs); ok {
			return addr, strategy.Name(), nil
		}
	}

	return common.Address{}, "", ErrPurchaseAddressUnknown
}
