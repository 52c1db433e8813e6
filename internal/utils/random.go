package utils

import (
	"math/rand"
	"time"
)

// NewRand 返回一个独立的随机源，seed 为 0 时使用当前时间
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
