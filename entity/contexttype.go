package entity

import (
	"github.com/tsinghua-fib-lab/cellsim/clock"
	"github.com/tsinghua-fib-lab/cellsim/utils/config"
)

// 导航模块接口
type IRouteProvider interface {
	// 计算从origin到destination的最短路线（边序列），不可达时返回error
	FindRoute(origin, destination INode) ([]IEdge, error)
}

type ITaskContext interface {
	Clock() *clock.Clock
	RuntimeConfig() *config.RuntimeConfig
}
