package optimizer

import "math/rand/v2"

// Rand 是引擎使用的随机源，*rand.Rand 即满足该接口
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// newRand 根据种子创建随机源，种子为 0 时随机播种
func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed))
}
