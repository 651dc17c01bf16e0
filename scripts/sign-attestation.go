//go:build ignore

// sign-attestation.go - Produce a guardian attestation signature for manual testing
//
// Usage:
//   go run scripts/sign-attestation.go \
//     -recovery-id "9f1c..." \
//     -wallet "0xRecoveredWallet" \
//     -key "0xGuardianPrivateKeyHex"
//
// Without -key a fresh keypair is generated and printed, handy for
// seeding a recovery setup with guardians you can actually sign for.

package main

import (
	"crypto/ecdsa"
	"flag"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hereafterlabs/guardian-middleware/pkg/recovery"
)

var (
	recoveryID = flag.String("recovery-id", "", "Recovery ID to attest to")
	wallet     = flag.String("wallet", "", "Wallet address under recovery")
	keyHex     = flag.String("key", "", "Guardian private key hex (generated when omitted)")
)

func main() {
	flag.Parse()

	if *recoveryID == "" || *wallet == "" {
		fmt.Println("Error: -recovery-id and -wallet are required")
		os.Exit(1)
	}

	privKey, err := loadOrGenerateKey()
	if err != nil {
		fmt.Printf("Failed to load key: %v\n", err)
		os.Exit(1)
	}

	message := recovery.AttestationMessage(*recoveryID, *wallet)
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hash := crypto.Keccak256Hash([]byte(prefixed))

	sig, err := crypto.Sign(hash.Bytes(), privKey)
	if err != nil {
		fmt.Printf("Failed to sign: %v\n", err)
		os.Exit(1)
	}
	// EIP-191 v value
	sig[64] += 27

	fmt.Println("======================================================================")
	fmt.Println("GUARDIAN ATTESTATION SIGNATURE")
	fmt.Println("======================================================================")
	fmt.Printf("Guardian:  %s\n", crypto.PubkeyToAddress(privKey.PublicKey).Hex())
	fmt.Printf("Message:   %q\n", message)
	fmt.Printf("Signature: 0x%x\n", sig)
	fmt.Println()
	fmt.Printf("curl -X POST http://localhost:8080/api/v1/recovery/%s/attest \\\n", *recoveryID)
	fmt.Printf("  -H 'Content-Type: application/json' \\\n")
	fmt.Printf("  -d '{\"signature\": \"0x%x\"}'\n", sig)
}

func loadOrGenerateKey() (*ecdsa.PrivateKey, error) {
	if *keyHex != "" {
		return crypto.HexToECDSA(trim0x(*keyHex))
	}

	k, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	fmt.Printf("Generated guardian key: %x\n", crypto.FromECDSA(k))
	return k, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0:2] == "0x" {
		return s[2:]
	}
	return s
}
