package world

// splitmix is the world's deterministic random stream. Seeded once from
// WorldConfig.Seed so identical seeds replay identical runs.
type splitmix struct {
	state uint64
}

func newSplitmix(seed int64) *splitmix {
	return &splitmix{state: uint64(seed)}
}

func (r *splitmix) next() uint64 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Float64 returns a uniform value in [0,1).
func (r *splitmix) Float64() float64 {
	return float64(r.next()>>11) / (1 << 53)
}

// Intn returns a uniform value in [0,n).
func (r *splitmix) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.next() % uint64(n))
}
