package entity

import (
	"context"

	"github.com/tsinghua-fib-lab/cellsim/utils/workerpool"
)

// Manager依赖倒置

// entity/node/manager.go的依赖倒置
type INodeManager interface {
	// 输入Node ID，查找Node，如果不存在则panic
	Get(id int32) INode
	// 输入Node ID，查找Node，如果不存在则返回error
	GetOrError(id int32) (INode, error)
	// 全部Node，按ID升序
	All() []INode

	Reset()                                                   // 清空所有动态状态
	Update(ctx context.Context, pool *workerpool.Pool) error // 更新阶段：计算下一步的通行许可
}

// entity/edge/manager.go的依赖倒置
type IEdgeManager interface {
	// 输入Edge ID，查找Edge，如果不存在则panic
	Get(id int32) IEdge
	// 输入Edge ID，查找Edge，如果不存在则返回error
	GetOrError(id int32) (IEdge, error)
	// 全部Edge，按ID升序
	All() []IEdge

	Reset()                                                    // 清空所有动态状态
	DidMove(ctx context.Context, pool *workerpool.Pool) error // 写入跨边到达的车辆，清除预留
}
