package services

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/escrowhq/escrow/clients/evm"
	"github.com/escrowhq/escrow/config"
	"github.com/escrowhq/escrow/models"
	"github.com/escrowhq/escrow/utils"
)

// decimals assumed for tokens whose decimals() call fails
const defaultTokenDecimals = utils.NativeDecimals

var parsedABIs sync.Map // raw json => abi.ABI

// parseABI parses an ABI descriptor once per process.
func parseABI(raw string) (abi.ABI, error) {
	if v, ok := parsedABIs.Load(raw); ok {
		return v.(abi.ABI), nil
	}

	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return abi.ABI{}, errors.Wrap(err, "failed to parse contract ABI")
	}

	parsedABIs.Store(raw, parsed)

	return parsed, nil
}

// contract binds an ABI to an address on a backend.
type contract struct {
	address common.Address
	abi     abi.ABI
	backend evm.Backend
}

func newContract(backend evm.Backend, address common.Address, rawABI string) (*contract, error) {
	parsed, err := parseABI(rawABI)
	if err != nil {
		return nil, err
	}

	return &contract{address: address, abi: parsed, backend: backend}, nil
}

// call performs a read-only call of method at the latest block.
func (c *contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s", method)
	}

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "%s call failed", method)
	}

	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s", method)
	}

	if len(values) == 0 {
		return nil, errors.Errorf("%s returned no values", method)
	}

	return values, nil
}

func (c *contract) callAddress(ctx context.Context, method string, args ...interface{}) (common.Address, error) {
	values, err := c.call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}

	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, errors.Errorf("%s returned %T, expected address", method, values[0])
	}

	return addr, nil
}

func (c *contract) callBigInt(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	values, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}

	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("%s returned %T, expected uint256", method, values[0])
	}

	return v, nil
}

func (c *contract) callUint8(ctx context.Context, method string, args ...interface{}) (uint8, error) {
	values, err := c.call(ctx, method, args...)
	if err != nil {
		return 0, err
	}

	v, ok := values[0].(uint8)
	if !ok {
		return 0, errors.Errorf("%s returned %T, expected uint8", method, values[0])
	}

	return v, nil
}

// txStep returns a pipeline step sending method to the contract.
func (c *contract) txStep(signer evm.Signer, value *big.Int, method string, args ...interface{}) Step {
	return Step{
		Name: method,
		Run: func(ctx context.Context) (*types.Receipt, error) {
			data, err := c.abi.Pack(method, args...)
			if err != nil {
				return nil, models.WrapError(models.KindInvalidInput, err, "failed to encode "+method)
			}

			return signer.Send(ctx, c.address, value, data)
		},
	}
}

// tokenDecimals reads decimals() of an ERC-20 and falls back to 18 when the
// token does not implement it.
func tokenDecimals(ctx context.Context, backend evm.Backend, token common.Address, log func(error)) uint8 {
	erc20, err := newContract(backend, token, config.ERC20ABI)
	if err != nil {
		log(err)
		return defaultTokenDecimals
	}

	decimals, err := erc20.callUint8(ctx, "decimals")
	if err != nil {
		log(err)
		return defaultTokenDecimals
	}

	return decimals
}

// requireCode fails with NotFound when no contract is deployed at address.
func requireCode(ctx context.Context, backend evm.Backend, address common.Address) error {
	code, err := backend.CodeAt(ctx, address, nil)
	if err != nil {
		return models.WrapError(models.KindLedger, err, "failed to read contract code")
	}

	if len(code) == 0 {
		return models.NewError(models.KindNotFound, "no contract deployed at "+address.Hex())
	}

	return nil
}

// parseContractAddress converts a configured address, failing with
// MisconfiguredNetwork when it is missing or malformed.
func parseContractAddress(raw, name string, chainID uint64) (common.Address, error) {
	if !common.IsHexAddress(raw) || common.HexToAddress(raw) == (common.Address{}) {
		return common.Address{}, models.NewError(
			models.KindMisconfiguredNetwork,
			name+" address is not configured for "+config.ChainName(chainID),
		)
	}

	return common.HexToAddress(raw), nil
}

// parseAccount validates a user-supplied address.
func parseAccount(raw, name string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !utils.IsValidAddress(raw) {
		return common.Address{}, models.NewError(models.KindInvalidInput, "invalid "+name+" address "+raw)
	}

	return common.HexToAddress(raw), nil
}

// coreContract resolves a protocol-wide contract address on the active chain.
// Fallback addresses borrowed from mainnet are refused for writes.
func coreContract(
	registry *config.Registry,
	cc *ChainContext,
	write bool,
	name string,
	pick func(config.CoreAddresses) string,
) (common.Address, error) {
	core := registry.ResolveCoreAddresses(cc.ChainID)
	if write && core.Fallback {
		return common.Address{}, models.NewError(
			models.KindUnsupportedNetwork,
			"no "+name+" deployment on "+config.ChainName(cc.ChainID),
		)
	}

	return parseContractAddress(pick(core), name, cc.ChainID)
}
