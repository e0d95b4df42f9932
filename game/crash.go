package game

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"rocketcrash/config"
)

// CrashPoint derives the crash multiplier for a round from its committed
// server seed and sequence number. It is a pure function: the same inputs
// always yield the same crash point, which is what makes the commit/reveal
// scheme verifiable by third parties.
//
// Distribution: u = HMAC-SHA256(seed, "round:<sequence>") mapped to [0,1).
// The bottom HouseEdge slice crashes instantly at 1.00x; the rest follows
// the inverse-uniform curve (1-HouseEdge)/(1-u), so P(crash > x) = 0.97/x
// for any x in range, floored to 2 decimals and capped at MaxMultiplier.
// Mixing the sequence into the message prevents cross-round replay of a
// reused seed.
func CrashPoint(serverSeed string, sequence uint64) float64 {
	mac := hmac.New(sha256.New, []byte(serverSeed))
	fmt.Fprintf(mac, "round:%d", sequence)
	sum := mac.Sum(nil)

	u := float64(binary.BigEndian.Uint64(sum[:8])) / float64(1<<63) / 2

	if u < config.HouseEdge {
		return config.MinMultiplier
	}

	crash := (1 - config.HouseEdge) / (1 - u)

	// Round down to 2 decimals, then clamp.
	crash = math.Floor(crash*100) / 100
	if crash < config.MinMultiplier {
		return config.MinMultiplier
	}
	if crash > config.MaxMultiplier {
		return config.MaxMultiplier
	}
	return crash
}

// Multiplier returns the displayed multiplier at the given elapsed flying
// time. This is the shared animation curve, not the crash point: every
// client derives the same value from the persisted liftoff timestamp.
func Multiplier(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return config.MinMultiplier
	}
	m := math.Pow(config.GrowthRate, elapsed.Seconds())
	if m > config.MaxMultiplier {
		return config.MaxMultiplier
	}
	return m
}

// FlyingDuration inverts the display curve: the elapsed time at which the
// displayed multiplier first reaches the given crash point.
func FlyingDuration(crashPoint float64) time.Duration {
	if crashPoint <= config.MinMultiplier {
		return 0
	}
	if crashPoint > config.MaxMultiplier {
		crashPoint = config.MaxMultiplier
	}
	seconds := math.Log(crashPoint) / math.Log(config.GrowthRate)
	return time.Duration(seconds * float64(time.Second))
}
