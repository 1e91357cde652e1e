// Package pool provides object pooling for the hot paths of multi-strategy
// recall, where every call allocates a handful of short-lived maps and
// slices that are immediately discarded after merge.
package pool

import (
	"sync"
)

// ScorePool pools map[string]float64, used to accumulate per-item merged
// scores during recall fan-in (layer+id -> best score seen so far).
var ScorePool = sync.Pool{
	New: func() interface{} {
		return make(map[string]float64, 16)
	},
}

// SeenPool pools map[string]int, used by recall as a seen-set: graph node
// ids already visited, and (layer,id)|source pairs already recorded
// during merge.
var SeenPool = sync.Pool{
	New: func() interface{} {
		return make(map[string]int, 16)
	},
}

// StringSlicePool pools []string, used for short-lived id batches.
var StringSlicePool = sync.Pool{
	New: func() interface{} {
		return make([]string, 0, 16)
	},
}

// GetScoreMap gets a cleared map from the pool.
func GetScoreMap() map[string]float64 {
	m := ScorePool.Get().(map[string]float64)
	for k := range m {
		delete(m, k)
	}
	return m
}

// PutScoreMap returns a map to the pool.
func PutScoreMap(m map[string]float64) {
	ScorePool.Put(m)
}

// GetSeenMap gets a cleared map from the pool.
func GetSeenMap() map[string]int {
	m := SeenPool.Get().(map[string]int)
	for k := range m {
		delete(m, k)
	}
	return m
}

// PutSeenMap returns a map to the pool.
func PutSeenMap(m map[string]int) {
	SeenPool.Put(m)
}

// GetStringSlice gets a zero-length slice with spare capacity from the pool.
func GetStringSlice() []string {
	s := StringSlicePool.Get().([]string)
	return s[:0]
}

// PutStringSlice returns a slice to the pool.
func PutStringSlice(s []string) {
	StringSlicePool.Put(s)
}
