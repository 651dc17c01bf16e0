package recovery

import "strings"

// AttestedCount returns how many of the given keys have attested.
//
// Callers deciding a state transition must pass the post-write key set
// read inside the same transaction as the write; counting a cached or
// pre-fetched set can miss a concurrent attestation.
func AttestedCount(keys []*Key) int {
	n := 0
	for _, k := range keys {
		if k.HasAttested {
			n++
		}
	}
	return n
}

// ThresholdMet reports whether the attested count has reached the 2-of-3
// threshold.
func ThresholdMet(keys []*Key) bool {
	return AttestedCount(keys) >= Threshold
}

// FindKeyByAddress returns the key whose authenticating address matches
// addr, comparing case-insensitively since EVM addresses appear in mixed
// case. Returns nil if no key matches.
func FindKeyByAddress(keys []*Key, addr string) *Key {
	for _, k := range keys {
		if strings.EqualFold(k.WalletAddress, addr) {
			return k
		}
	}
	return nil
}
