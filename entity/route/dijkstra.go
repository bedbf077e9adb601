package route

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/cellsim/entity"
	"github.com/tsinghua-fib-lab/cellsim/utils/container"
)

// ErrNoRoute 起终点之间不可达
var ErrNoRoute = errors.New("no route")

// Graph 导航所需的路网视图
type Graph interface {
	Edges() []entity.IEdge
}

// tree 从某个起点出发的最短路树（以边为状态）
type tree struct {
	cost map[int32]float64 // 到达边末端的最短时间
	prev map[int32]int32   // 前驱边，起始边为-1
	best map[int32]int32   // 到达各Node的最优末边
}

// Dijkstra 以边为状态的最短时间导航
// 功能：计算行驶时间（元胞数/最大限速）最短的路线，转向必须被路口的车道转向表允许
// 说明：
// 1. 相邻边按ID升序展开，配合稳定优先队列，同代价时结果可复现
// 2. 每个起点的最短路树计算一次后缓存，可并发调用
type Dijkstra struct {
	edges map[int32]entity.IEdge
	next  map[int32][]entity.IEdge // 边 -> 可转入的后继边（按ID升序）

	mu    sync.Mutex
	cache map[int32]*tree
}

// NewDijkstra 创建导航器
func NewDijkstra(g Graph) *Dijkstra {
	d := &Dijkstra{
		edges: lo.SliceToMap(g.Edges(), func(e entity.IEdge) (int32, entity.IEdge) { return e.ID(), e }),
		next:  make(map[int32][]entity.IEdge),
		cache: make(map[int32]*tree),
	}
	for _, e := range g.Edges() {
		node := e.Destination()
		succ := lo.Filter(node.LeavingEdges(), func(f entity.IEdge, _ int) bool {
			return len(node.LanesToward(e, f)) > 0
		})
		slices.SortFunc(succ, func(a, b entity.IEdge) int { return int(a.ID()) - int(b.ID()) })
		d.next[e.ID()] = succ
	}
	return d
}

// travelTime 通过一条边的最短步数
func travelTime(e entity.IEdge) float64 {
	maxV := 1
	for i := 0; i < e.LaneCount(); i++ {
		maxV = max(maxV, e.MaxV(i))
	}
	return float64(e.Length()) / float64(maxV)
}

// FindRoute 计算从origin到destination的最短路线
// 返回：边序列；origin与destination相同或不可达时返回ErrNoRoute
func (d *Dijkstra) FindRoute(origin, destination entity.INode) ([]entity.IEdge, error) {
	if origin.ID() == destination.ID() {
		return nil, fmt.Errorf("%w: origin equals destination %d", ErrNoRoute, origin.ID())
	}
	t := d.tree(origin)
	last, ok := t.best[destination.ID()]
	if !ok {
		return nil, fmt.Errorf("%w: %d -> %d", ErrNoRoute, origin.ID(), destination.ID())
	}
	res := make([]entity.IEdge, 0)
	for id := last; id != -1; id = t.prev[id] {
		res = append(res, d.edges[id])
	}
	slices.Reverse(res)
	return res, nil
}

// tree 获取（必要时计算）origin出发的最短路树
func (d *Dijkstra) tree(origin entity.INode) *tree {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.cache[origin.ID()]; ok {
		return t
	}
	t := d.search(origin)
	d.cache[origin.ID()] = t
	return t
}

// search 单源最短路
func (d *Dijkstra) search(origin entity.INode) *tree {
	t := &tree{
		cost: make(map[int32]float64),
		prev: make(map[int32]int32),
		best: make(map[int32]int32),
	}
	bestCost := make(map[int32]float64)
	done := make(map[int32]bool)
	pq := container.NewPriorityQueue[int32]()
	starts := slices.Clone(origin.LeavingEdges())
	slices.SortFunc(starts, func(a, b entity.IEdge) int { return int(a.ID()) - int(b.ID()) })
	for _, e := range starts {
		c := travelTime(e)
		t.cost[e.ID()] = c
		t.prev[e.ID()] = -1
		pq.HeapPush(e.ID(), c)
	}
	for pq.Len() > 0 {
		id, c := pq.HeapPop()
		if done[id] || c > t.cost[id] {
			continue
		}
		done[id] = true
		e := d.edges[id]
		to := e.Destination().ID()
		if old, ok := bestCost[to]; !ok || c < old {
			bestCost[to] = c
			t.best[to] = id
		}
		for _, f := range d.next[id] {
			nc := c + travelTime(f)
			if old, ok := t.cost[f.ID()]; !ok || nc < old {
				t.cost[f.ID()] = nc
				t.prev[f.ID()] = id
				pq.HeapPush(f.ID(), nc)
			}
		}
	}
	delete(t.best, origin.ID())
	return t
}

// Reset 清空缓存
func (d *Dijkstra) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.cache)
}
