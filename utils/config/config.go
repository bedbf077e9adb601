package config

import (
	"math"

	"gopkg.in/yaml.v2"
)

const (
	DefaultCellLength = 7.5 // 默认元胞长度（米）
	DefaultDT         = 1.  // 默认每步模拟时间（秒）
)

// RuntimeConfig 运行时配置
// 功能：存储补全默认值后的配置，供各模块只读访问
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 全局控制配置
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 功能：创建运行时配置对象并补全默认值
// 算法说明：
// 1. 元胞长度未指定时取7.5米
// 2. 线程数小于1时按单线程执行
// 3. 每步模拟时间未指定时取1秒
// 4. 愤怒值上限未指定时不限
func NewRuntimeConfig(config Config) *RuntimeConfig {
	c := config.Control
	if c.CellLength <= 0 {
		c.CellLength = DefaultCellLength
	}
	if c.Threads < 1 {
		c.Threads = 1
	}
	if c.Step.DT <= 0 {
		c.Step.DT = DefaultDT
	}
	if c.Driver.MaxAnger <= 0 {
		c.Driver.MaxAnger = math.MaxInt32
	}
	config.Control = c
	return &RuntimeConfig{
		All: config,
		C:   c,
	}
}

// Parse 解析YAML配置（严格模式，未知字段报错）
func Parse(data []byte) (Config, error) {
	var c Config
	err := yaml.UnmarshalStrict(data, &c)
	return c, err
}
