package event

import (
	"crypto/sha256"
	"encoding/binary"
)

// Domain prefix for account bucket hashing. The version suffix enables a
// future algorithm migration without silently re-bucketing accounts.
const domainAccountBucket = "cutover/account-bucket/v1"

// BucketCount is the number of rollout buckets. Rollout percentages map
// directly onto buckets: percent p admits buckets [0, p).
const BucketCount = 100

// AccountBucket maps an account reference to a stable rollout bucket in
// [0, BucketCount).
//
// The mapping must be deterministic across restarts and deployments: the
// same account always lands in the same bucket, so a fixed rollout percent
// never flip-flops a user between systems. SHA-256 with a domain-separated
// prefix gives a uniform, platform-independent distribution; the null byte
// separator prevents domain/data boundary ambiguity.
func AccountBucket(account string) int {
	h := sha256.New()
	h.Write([]byte(domainAccountBucket))
	h.Write([]byte{0x00})
	h.Write([]byte(account))
	sum := h.Sum(nil)

	// First 8 bytes as big-endian uint64, reduced mod BucketCount.
	// The modulo bias over 2^64 is negligible for 100 buckets.
	n := binary.BigEndian.Uint64(sum[:8])
	return int(n % BucketCount)
}
