package node

import (
	"context"
	"fmt"
	"slices"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/cellsim/entity"
	"github.com/tsinghua-fib-lab/cellsim/utils/input"
	"github.com/tsinghua-fib-lab/cellsim/utils/workerpool"
)

// Node管理器
type NodeManager struct {
	ctx entity.ITaskContext

	data  map[int32]*Node
	nodes []*Node // 按ID升序
}

// NewManager 创建Node管理器实例
// 参数：ctx-任务上下文
func NewManager(ctx entity.ITaskContext) *NodeManager {
	return &NodeManager{
		ctx:   ctx,
		data:  make(map[int32]*Node),
		nodes: make([]*Node, 0),
	}
}

// Init 初始化所有Node
// 返回：ID重复时返回error
func (m *NodeManager) Init(bases []input.Node) error {
	for _, base := range bases {
		if _, ok := m.data[base.ID]; ok {
			return fmt.Errorf("duplicated node id %d", base.ID)
		}
		m.data[base.ID] = nil
	}
	m.nodes = parallel.GoMap(bases, func(base input.Node) *Node {
		return newNode(m.ctx, base)
	})
	slices.SortFunc(m.nodes, func(a, b *Node) int { return int(a.id) - int(b.id) })
	m.data = lo.SliceToMap(m.nodes, func(n *Node) (int32, *Node) {
		return n.id, n
	})
	return nil
}

// Connect 建立Node与Edge的拓扑关系
// 功能：把边挂到起终点上，写入车道转向表，计算冲突序号
// 参数：edges-全部边，connectors-车道连接
// 返回：车道连接引用不存在的路口/边/车道时返回error
func (m *NodeManager) Connect(edges []entity.IEdge, connectors []input.Connector) error {
	for _, e := range edges {
		m.data[e.Origin().ID()].addEdge(e)
		m.data[e.Destination().ID()].addEdge(e)
	}
	for _, c := range connectors {
		n, ok := m.data[c.Node]
		if !ok {
			return fmt.Errorf("connector refers to unknown node %d", c.Node)
		}
		if err := n.addRestriction(c); err != nil {
			return err
		}
	}
	parallel.GoFor(m.nodes, func(n *Node) { n.calculateCrossingIndices() })
	return nil
}

// Get 根据ID获取Node实例，如果不存在则panic
func (m *NodeManager) Get(id int32) entity.INode {
	if n, ok := m.data[id]; !ok {
		log.Panicf("no id %d in node data", id)
		return nil
	} else {
		return n
	}
}

// GetOrError 根据ID获取Node实例，如果不存在则返回错误
func (m *NodeManager) GetOrError(id int32) (entity.INode, error) {
	if n, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in node data", id)
	} else {
		return n, nil
	}
}

// All 全部Node，按ID升序
func (m *NodeManager) All() []entity.INode {
	return lo.Map(m.nodes, func(n *Node, _ int) entity.INode { return n })
}

// Reset 清空所有Node的登记与许可状态
func (m *NodeManager) Reset() {
	parallel.GoFor(m.nodes, func(n *Node) { n.reset() })
}

// Update 更新阶段，计算所有Node下一步的通行许可
// 说明：各Node只修改自身状态与登记在自身的车辆计数，可并行
func (m *NodeManager) Update(ctx context.Context, pool *workerpool.Pool) error {
	return workerpool.ForEach(ctx, pool, m.nodes, func(n *Node) error {
		return n.update()
	})
}
