package chainaddr

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"

	"github.com/custodia-tech/poolvault/pkg/asset"
)

// Normalize validates a destination address for the given asset and returns
// its canonical form: EIP-55 checksummed hex for EVM assets, the decoded
// bech32/base58 encoding for bitcoin.
//
// EVM addresses with a failed mixed-case checksum are re-validated in
// lowercase form before rejection, tolerating case-mangled but otherwise
// valid input.
func Normalize(a asset.Asset, addr string, params *chaincfg.Params) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: empty address", ErrMalformed)
	}

	switch a.Class() {
	case asset.ClassUTXO:
		decoded, err := btcutil.DecodeAddress(addr, params)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if !decoded.IsForNet(params) {
			return "", fmt.Errorf("%w: address is for a different network", ErrMalformed)
		}
		return decoded.EncodeAddress(), nil

	case asset.ClassEVM:
		if !common.IsHexAddress(addr) {
			return "", fmt.Errorf("%w: not a hex address", ErrMalformed)
		}
		canonical := common.HexToAddress(addr).Hex()
		if !hasMixedCaseHex(addr) {
			// All-lower or all-upper input carries no checksum; accept.
			return canonical, nil
		}
		if canonical == with0xPrefix(addr) {
			return canonical, nil
		}
		// Checksum failed: retry as lowercase before rejecting.
		lower := strings.ToLower(addr)
		if common.IsHexAddress(lower) {
			return common.HexToAddress(lower).Hex(), nil
		}
		return "", fmt.Errorf("%w: bad checksum", ErrMalformed)

	default:
		return "", fmt.Errorf("%w: %v", asset.ErrUnsupported, a)
	}
}

// hasMixedCaseHex reports whether the hex digits contain both upper and
// lower case letters, i.e. the address claims an EIP-55 checksum.
func hasMixedCaseHex(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	var hasUpper, hasLower bool
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'F':
			hasUpper = true
		case r >= 'a' && r <= 'f':
			hasLower = true
		}
	}
	return hasUpper && hasLower
}

func with0xPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return "0x" + s[2:]
	}
	return "0x" + s
}
