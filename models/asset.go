package models

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeTokenAddress is the sentinel reported for escrows denominated in the
// chain's native asset.
const NativeTokenAddress = "0x0000000000000000000000000000000000000000"

// AssetRef names the asset of an escrow: the native asset or an ERC-20 token.
type AssetRef struct {
	token common.Address
}

// NativeAsset is the chain's native asset.
var NativeAsset = AssetRef{}

// ERC20Asset returns the asset for an ERC-20 token contract.
func ERC20Asset(token common.Address) AssetRef {
	return AssetRef{token: token}
}

// ParseAssetRef resolves a token address string. Empty, "0" and the zero address
// denote the native asset.
func ParseAssetRef(raw string) (AssetRef, error) {
	raw = strings.TrimSpace(raw)

	if raw == "" || raw == "0" {
		return NativeAsset, nil
	}

	if !common.IsHexAddress(raw) {
		return AssetRef{}, NewError(KindInvalidInput, "invalid token address "+raw)
	}

	return AssetRef{token: common.HexToAddress(raw)}, nil
}

// IsNative reports whether the asset is the chain's native asset.
func (a AssetRef) IsNative() bool {
	return a.token == (common.Address{})
}

// Token returns the ERC-20 contract address, the zero address for native.
func (a AssetRef) Token() common.Address {
	return a.token
}

func (a AssetRef) String() string {
	if a.IsNative() {
		return NativeTokenAddress
	}

	return a.token.Hex()
}
