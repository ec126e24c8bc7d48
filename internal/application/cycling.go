package application

// cyclingHashSeed is folded into the selection seed before mixing. The hash
// below is fixed: reproducing the same indices from the same inputs across
// implementations is part of the storage contract, and tests duplicate it.
const cyclingHashSeed = 0x9e3779b9

// cyclingHash mixes a seed through two multiply-xor-shift rounds.
func cyclingHash(seed int) uint32 {
	h := uint32(seed) ^ cyclingHashSeed
	h ^= h >> 16
	h *= 0x45d9f3b
	h ^= h >> 16
	h *= 0x45d9f3b
	h ^= h >> 16
	return h
}

// SelectCyclingItem picks the variant title for one instance.
// instanceNumber is the 0-based position of the instance in the series'
// sorted expanded date list.
func SelectCyclingItem(c Cycling, instanceNumber int) string {
	n := len(c.Items)
	if n == 0 {
		return ""
	}
	switch c.Mode {
	case CyclingRandom:
		seed := instanceNumber
		if c.GapLeap {
			seed = c.CurrentIndex
		}
		return c.Items[int(cyclingHash(seed)%uint32(n))]
	default: // sequential
		if c.GapLeap {
			return c.Items[c.CurrentIndex%n]
		}
		return c.Items[instanceNumber%n]
	}
}

// resolveInstanceTitle returns the cycling item for the instance when
// cycling is configured, the series title otherwise.
func resolveInstanceTitle(s Series, instanceNumber int) string {
	if s.Cycling != nil && len(s.Cycling.Items) > 0 {
		return SelectCyclingItem(*s.Cycling, instanceNumber)
	}
	return s.Title
}
