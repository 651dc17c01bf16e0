// Package auth provides signer authentication for guardians and owners:
// EIP-191 signature recovery and JWT session validation.
package auth

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const signatureLength = 65

// ValidateSignatureFormat checks that a signature is well-formed hex of
// the right length before any cryptographic work happens. Malformed input
// is rejected here with a distinct error, so "garbage bytes" and "valid
// signature from the wrong signer" surface differently to callers.
func ValidateSignatureFormat(signature string) ([]byte, error) {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sigBytes) != signatureLength {
		return nil, fmt.Errorf("invalid signature length: expected %d, got %d", signatureLength, len(sigBytes))
	}
	return sigBytes, nil
}

// VerifyEIP191Signature verifies an EIP-191 personal_sign signature over
// message and returns the recovered signer address.
func VerifyEIP191Signature(message, signature string) (common.Address, error) {
	sigBytes, err := ValidateSignatureFormat(signature)
	if err != nil {
		return common.Address{}, err
	}

	// Recovery id (v) may be 0, 1, 27, or 28; normalize to 0 or 1.
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}

	prefixedMsg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	msgHash := crypto.Keccak256Hash([]byte(prefixedMsg))

	pubKey, err := crypto.SigToPub(msgHash.Bytes(), sigBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// ValidateEVMAddress checks if a string is a valid EVM address.
func ValidateEVMAddress(address string) bool {
	if !strings.HasPrefix(address, "0x") {
		return false
	}
	if len(address) != 42 {
		return false
	}
	_, err := hex.DecodeString(address[2:])
	return err == nil
}

// NormalizeAddress returns a checksummed EVM address.
func NormalizeAddress(address string) string {
	return common.HexToAddress(address).Hex()
}
