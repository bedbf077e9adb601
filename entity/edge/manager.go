package edge

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

// Edge管理器
type EdgeManager struct {
	data  map[int32]*Edge
	edges []*Edge // 按ID升序
}

// NewManager 创建Edge管理器实例
func NewManager() *EdgeManager {
	return &EdgeManager{
		data:  make(map[int32]*Edge),
		edges: make([]*Edge, 0),
	}
}

// Init 初始化所有Edge
// 功能：根据输入数据创建Edge，绑定起终点
// 参数：bases-Edge输入数据，nodes-Node管理器，cellLength-元胞长度（米）
// 返回：起终点不存在、自环或ID重复时返回error
func (m *EdgeManager) Init(bases []input.Edge, nodes entity.INodeManager, cellLength float64) error {
	type endpoints struct {
		origin, destination entity.INode
	}
	ends := make([]endpoints, len(bases))
	for i, base := range bases {
		if _, ok := m.data[base.ID]; ok {
			return fmt.Errorf("duplicated edge id %d", base.ID)
		}
		if base.From == base.To {
			return fmt.Errorf("edge %d is a self loop at node %d", base.ID, base.From)
		}
		origin, err := nodes.GetOrError(base.From)
		if err != nil {
			return fmt.Errorf("edge %d: bad origin: %w", base.ID, err)
		}
		destination, err := nodes.GetOrError(base.To)
		if err != nil {
			return fmt.Errorf("edge %d: bad destination: %w", base.ID, err)
		}
		ends[i] = endpoints{origin, destination}
		m.data[base.ID] = nil
	}
	indices := lo.Range(len(bases))
	m.edges = parallel.GoMap(indices, func(i int) *Edge {
		return newEdge(bases[i], ends[i].origin, ends[i].destination, cellLength)
	})
	slices.SortFunc(m.edges, func(a, b *Edge) int { return int(a.id) - int(b.id) })
	m.data = lo.SliceToMap(m.edges, func(e *Edge) (int32, *Edge) {
		return e.id, e
	})
	return nil
}

// Get 根据ID获取Edge实例，如果不存在则panic
func (m *EdgeManager) Get(id int32) entity.IEdge {
	if e, ok := m.data[id]; !ok {
		log.Panicf("no id %d in edge data", id)
		return nil
	} else {
		return e
	}
}

// GetOrError 根据ID获取Edge实例，如果不存在则返回错误
func (m *EdgeManager) GetOrError(id int32) (entity.IEdge, error) {
	if e, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in edge data", id)
	} else {
		return e, nil
	}
}

// All 全部Edge，按ID升序
func (m *EdgeManager) All() []entity.IEdge {
	return lo.Map(m.edges, func(e *Edge, _ int) entity.IEdge { return e })
}

// Reset 清空所有Edge的元胞、到达缓冲与预留
func (m *EdgeManager) Reset() {
	parallel.GoFor(m.edges, func(e *Edge) { e.reset() })
}

// DidMove 写入跨边到达的车辆，清除预留
func (m *EdgeManager) DidMove(ctx context.Context, pool *workerpool.Pool) error {
	return workerpool.ForEach(ctx, pool, m.edges, func(e *Edge) error {
		e.didMove()
		return nil
	})
}
