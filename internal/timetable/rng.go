package timetable

import "math/rand"

// Stream ids reserved for the initial population. Offspring use (generation+1) << 32 | slot.
const initStream uint64 = 0

// streamSeed mixes the run seed with a stream id (SplitMix64 finalizer) so every population
// slot of every generation gets its own independent, reproducible source. Workers never
// share a *rand.Rand.
func streamSeed(seed int64, stream uint64) int64 {
	x := uint64(seed) ^ (stream + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	return int64(x)
}

func slotRNG(seed int64, generation, slot int) *rand.Rand {
	stream := uint64(generation+1)<<32 | uint64(uint32(slot))
	return rand.New(rand.NewSource(streamSeed(seed, stream)))
}

func initRNG(seed int64, slot int) *rand.Rand {
	return rand.New(rand.NewSource(streamSeed(seed, initStream|uint64(uint32(slot)))))
}
