// 随机数引擎，包装了golang.org/x/exp/rand，提供了一些常用的随机数生成方法
package randengine

import (
	"flag"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于调整随机数生成
)

// Engine 随机数引擎
// 功能：为单个实体（路口、车辆、场景）提供独立的可复现随机序列
// 说明：引擎不加锁，调用方保证同一时刻只有一个goroutine使用
type Engine struct {
	*rand.Rand        // 底层随机数生成器
	seed       uint64 // 创建时的种子（不含偏移量）
}

// New 创建随机数引擎
// 参数：seed-随机数种子
// 说明：种子偏移量允许在不修改配置的情况下整体调整随机数序列
func New(seed uint64) *Engine {
	return &Engine{
		Rand: rand.New(rand.NewSource(seed + *seedOffset)),
		seed: seed,
	}
}

// Derive 由全局种子与实体ID派生实体种子
// 功能：对(seed, id)做SplitMix64混合，保证不同实体的序列互不相关且与创建顺序无关
func Derive(seed uint64, id int32) uint64 {
	z := seed + uint64(uint32(id))*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Seed 返回创建时的种子
func (e *Engine) Seed() uint64 {
	return e.seed
}

// Reset 以创建时的种子重新开始随机序列
func (e *Engine) Reset() {
	e.Rand.Seed(e.seed + *seedOffset)
}

// PTrue 以指定概率返回true
// 参数：p-返回true的概率（0.0到1.0之间）
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}

// Coin 等概率返回-1或1
func (e *Engine) Coin() int {
	return e.Intn(2)*2 - 1
}
