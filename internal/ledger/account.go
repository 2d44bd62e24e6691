package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeMarket
	AccountScopeSystem
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// SubTypeWallet is a user's external token account. It is a boundary
	// account: its balance is the user's net receipts and may go negative.
	SubTypeWallet AccountSubType = iota

	// SubTypeVault holds a market's collateral.
	SubTypeVault

	// SubTypeTreasury receives collateral withdrawn by the program owner.
	SubTypeTreasury
)

// AssetID maps collateral symbols to numeric IDs
type AssetID uint16

const (
	AssetUSDC AssetID = 1
	AssetUSDT AssetID = 2
	AssetRNG  AssetID = 3
)

var (
	assetToID = map[string]AssetID{
		"USDC": AssetUSDC,
		"USDT": AssetUSDT,
		"RNG":  AssetRNG,
	}
	idToAsset = map[AssetID]string{
		AssetUSDC: "USDC",
		AssetUSDT: "USDT",
		AssetRNG:  "RNG",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // user UUID, or market id (big-endian, first 8 bytes)
	SubType  AccountSubType
	AssetID  AssetID
}

func NewWalletAccountKey(userID uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  SubTypeWallet,
		AssetID:  assetID,
	}
}

func NewVaultAccountKey(marketID uint64, assetID AssetID) AccountKey {
	var entityID [16]byte
	binary.BigEndian.PutUint64(entityID[:8], marketID)
	return AccountKey{
		Scope:    AccountScopeMarket,
		EntityID: entityID,
		SubType:  SubTypeVault,
		AssetID:  assetID,
	}
}

// NewTreasuryAccountKey keys the owner treasury. The owner id is carried so
// an ownership change starts a fresh treasury account.
func NewTreasuryAccountKey(owner uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: owner,
		SubType:  SubTypeTreasury,
		AssetID:  assetID,
	}
}

// MarketID decodes the market id of a vault key.
func (k AccountKey) MarketID() uint64 {
	return binary.BigEndian.Uint64(k.EntityID[:8])
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		return fmt.Sprintf("user:%s:%s:%s", uuid.UUID(k.EntityID), k.subTypeName(), assetName)
	case AccountScopeMarket:
		return fmt.Sprintf("market:%d:%s:%s", k.MarketID(), k.subTypeName(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeWallet:
		return "wallet"
	case SubTypeVault:
		return "vault"
	case SubTypeTreasury:
		return "treasury"
	default:
		return "unknown"
	}
}
