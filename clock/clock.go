package clock

import (
	"fmt"

	"github.com/tsinghua-fib-lab/cellsim/utils/config"
)

// Clock 仿真时钟
// 功能：记录已完成的模拟步数（age），并换算为模拟时间
// 说明：InternalStep只在一步的五个阶段全部完成后递增，因此总是对应一致的状态
type Clock struct {
	DT       float64 // 每步模拟时间（秒）
	END_STEP uint64  // 结束步，0表示不限

	T            float64 // 当前时间（秒）
	InternalStep uint64  // 已完成的步数
}

// New 根据配置创建新的时钟实例
func New(stepConfig config.ControlStep) *Clock {
	dt := stepConfig.DT
	if dt <= 0 {
		dt = config.DefaultDT
	}
	c := &Clock{
		DT:       dt,
		END_STEP: stepConfig.Total,
	}
	c.Init()
	return c
}

// Init 重置时钟状态
func (c *Clock) Init() {
	c.InternalStep = 0
	c.T = 0
}

// Tick 完成一步
func (c *Clock) Tick() {
	c.InternalStep++
	c.T = float64(c.InternalStep) * c.DT
}

// Finished 是否到达结束步
func (c *Clock) Finished() bool {
	return c.END_STEP > 0 && c.InternalStep >= c.END_STEP
}

// String 获取时钟的字符串表示（HH:MM:SS）
func (c *Clock) String() string {
	t := c.T
	h := int(t / 3600)
	t -= float64(h * 3600)
	m := int(t / 60)
	t -= float64(m * 60)
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// GetHourMinuteSecond 获取当前时间的小时、分钟、秒
// 返回：小时、分钟、秒（秒为浮点数，支持亚秒级精度）
func (c *Clock) GetHourMinuteSecond() (int, int, float64) {
	hour := int(c.T) / 3600
	minute := int(c.T) % 3600 / 60
	second := c.T - float64(hour*3600+minute*60)
	return hour, minute, second
}
