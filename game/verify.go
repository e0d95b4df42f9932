package game

import (
	"math"

	"rocketcrash/crypto"
)

// VerifyRound lets anyone check a revealed round: the seed must rehash to
// the commitment published before betting opened, and the crash point must
// be exactly what the seed determines for that sequence.
func VerifyRound(serverSeed, seedHash string, sequence uint64, claimedCrashPoint float64) bool {
	if !crypto.Verify(serverSeed, seedHash) {
		return false
	}
	return math.Abs(CrashPoint(serverSeed, sequence)-claimedCrashPoint) < 0.005
}
