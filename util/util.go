// Package util has leveled debug printing and small numeric helpers.
package util

import "log"

// Debug gates DPrintf: messages at a level above it are dropped.
// 0 keeps the storage layers quiet; raise it when chasing a bug.
const Debug uint64 = 0

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}

// RoundUp returns how many sz-sized units cover n.
func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	}
	return m
}

// SumOverflows reports whether a+b wraps around uint64.
func SumOverflows(a uint64, b uint64) bool {
	return a+b < a
}
