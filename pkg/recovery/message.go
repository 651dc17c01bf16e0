package recovery

import (
	"fmt"
	"strings"
)

// AttestationMessage builds the canonical message a guardian signs to
// attest a recovery. It depends only on the recovery ID and the wallet
// being recovered, never on mutable state such as the current attestation
// count, so a guardian can sign once, offline, without racing the server.
//
// The wallet address is lowercased so mixed-case representations of the
// same address produce the same message.
func AttestationMessage(recoveryID, walletAddress string) string {
	return fmt.Sprintf(
		"Hereafter Guardian Recovery\nRecovery-ID: %s\nWallet: %s",
		recoveryID,
		strings.ToLower(walletAddress),
	)
}
