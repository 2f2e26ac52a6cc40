package domain

import (
	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAccount validates a user-supplied account identifier and returns
// its checksummed form. Account identifiers are hex addresses on the hosting
// ledger; two spellings of the same address must map to the same ledger keys.
func NormalizeAccount(s string) (string, error) {
	if !common.IsHexAddress(s) {
		return "", ErrInvalidAccount
	}
	return common.HexToAddress(s).Hex(), nil
}
