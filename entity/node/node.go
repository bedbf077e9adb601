package node

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/cellsim/entity"
	"github.com/tsinghua-fib-lab/cellsim/utils/input"
	"github.com/tsinghua-fib-lab/cellsim/utils/randengine"
)

// laneKey 驶入车道
type laneKey struct {
	edge int32
	lane int
}

// laneTarget 驶出车道
type laneTarget struct {
	edge int32
	lane int
}

// Node 路口
// 功能：维护路口的通行仲裁状态，每步计算允许通过路口的车辆集合
// 说明：
// 1. 拓扑（驶入/驶出边、冲突序号、车道转向表）在构建后不再变化
// 2. Register/Unregister可并发调用，实际生效推迟到Update
// 3. 车辆的优先级计数由其当前登记的路口在Update中维护
type Node struct {
	ctx entity.ITaskContext

	id    int32
	point orb.Point

	incoming []entity.IEdge // 按ID升序
	leaving  []entity.IEdge // 按ID升序

	inIndex  map[int32]int // 驶入边ID -> 冲突序号
	outIndex map[int32]int // 驶出边ID -> 冲突序号

	restrictions map[laneKey][]laneTarget // 车道转向表
	restricted   map[int32]struct{}       // 存在转向限制的驶入边

	mu            sync.Mutex
	registered    map[int32]entity.IVehicle
	order         []entity.IVehicle // 登记顺序（比较顺序）
	pendingAdd    []entity.IVehicle
	pendingRemove map[int32]struct{}
	dirty         bool    // 自上次Update以来登记集合是否有变化
	queue         []int32 // 上次比较时各驶入边上的车辆次序，见queueOrder

	permittedMu sync.RWMutex
	permitted   map[int32]struct{}

	generator *randengine.Engine
}

// newNode 创建Node
func newNode(ctx entity.ITaskContext, base input.Node) *Node {
	n := &Node{
		ctx:           ctx,
		id:            base.ID,
		point:         orb.Point{base.Lon, base.Lat},
		incoming:      make([]entity.IEdge, 0),
		leaving:       make([]entity.IEdge, 0),
		inIndex:       make(map[int32]int),
		outIndex:      make(map[int32]int),
		restrictions:  make(map[laneKey][]laneTarget),
		restricted:    make(map[int32]struct{}),
		registered:    make(map[int32]entity.IVehicle),
		pendingRemove: make(map[int32]struct{}),
		permitted:     make(map[int32]struct{}),
	}
	n.generator = randengine.New(randengine.Derive(ctx.RuntimeConfig().C.Seed, n.id))
	return n
}

func (n *Node) String() string {
	return fmt.Sprintf("Node{ID=%d}", n.id)
}

func (n *Node) ID() int32 {
	return n.id
}

func (n *Node) Point() orb.Point {
	return n.point
}

func (n *Node) IncomingEdges() []entity.IEdge {
	return n.incoming
}

func (n *Node) LeavingEdges() []entity.IEdge {
	return n.leaving
}

// addEdge 添加相连的边（构建期调用）
func (n *Node) addEdge(e entity.IEdge) {
	if e.Destination().ID() == n.id {
		n.incoming = append(n.incoming, e)
	}
	if e.Origin().ID() == n.id {
		n.leaving = append(n.leaving, e)
	}
}

// addRestriction 添加车道转向（构建期调用）
func (n *Node) addRestriction(c input.Connector) error {
	from, ok := lo.Find(n.incoming, func(e entity.IEdge) bool { return e.ID() == c.FromEdge })
	if !ok {
		return fmt.Errorf("connector at %v: edge %d is not incoming", n, c.FromEdge)
	}
	to, ok := lo.Find(n.leaving, func(e entity.IEdge) bool { return e.ID() == c.ToEdge })
	if !ok {
		return fmt.Errorf("connector at %v: edge %d is not leaving", n, c.ToEdge)
	}
	if c.FromLane < 0 || c.FromLane >= from.LaneCount() {
		return fmt.Errorf("connector at %v: bad lane %d of edge %d", n, c.FromLane, c.FromEdge)
	}
	if c.ToLane < 0 || c.ToLane >= to.LaneCount() {
		return fmt.Errorf("connector at %v: bad lane %d of edge %d", n, c.ToLane, c.ToEdge)
	}
	key := laneKey{c.FromEdge, c.FromLane}
	target := laneTarget{c.ToEdge, c.ToLane}
	if !slices.Contains(n.restrictions[key], target) {
		n.restrictions[key] = append(n.restrictions[key], target)
	}
	n.restricted[c.FromEdge] = struct{}{}
	return nil
}

// arm 冲突序号计算中的一条边
type arm struct {
	edge    entity.IEdge
	leaving bool
	bearing float64 // 从路口指向边的方向，正北为0，顺时针
}

// calculateCrossingIndices 计算冲突序号（构建期调用）
// 功能：按边方向绕路口排序，为每条驶入/驶出边分配唯一序号
// 算法说明：
// 1. 方向取路口指向边上相邻折线点的方位角
// 2. 零方向取第一条驶出边的方向，没有驶出边时取第一条驶入边的方向
// 3. 右侧通行按顺时针排序，左侧通行按逆时针排序
// 4. 方向相同时驶出边在前，同类按ID升序
func (n *Node) calculateCrossingIndices() {
	slices.SortFunc(n.incoming, compareEdgeID)
	slices.SortFunc(n.leaving, compareEdgeID)
	arms := make([]arm, 0, len(n.incoming)+len(n.leaving))
	for _, e := range n.leaving {
		g := e.Geometry()
		arms = append(arms, arm{edge: e, leaving: true, bearing: geo.Bearing(n.point, g[1])})
	}
	for _, e := range n.incoming {
		g := e.Geometry()
		arms = append(arms, arm{edge: e, leaving: false, bearing: geo.Bearing(n.point, g[len(g)-2])})
	}
	if len(arms) == 0 {
		return
	}
	zero := arms[0].bearing
	right := n.ctx.RuntimeConfig().C.Crossing.DrivingOnTheRight
	angle := func(a arm) float64 {
		d := a.bearing - zero
		if !right {
			d = -d
		}
		d = math.Mod(d, 360)
		if d < 0 {
			d += 360
		}
		// 消除浮点误差带来的"同向"差异
		return math.Round(d*1e6) / 1e6
	}
	slices.SortStableFunc(arms, func(a, b arm) int {
		if aa, ab := angle(a), angle(b); aa != ab {
			if aa < ab {
				return -1
			}
			return 1
		}
		if a.leaving != b.leaving {
			if a.leaving {
				return -1
			}
			return 1
		}
		return compareEdgeID(a.edge, b.edge)
	})
	for i, a := range arms {
		if a.leaving {
			n.outIndex[a.edge.ID()] = i
		} else {
			n.inIndex[a.edge.ID()] = i
		}
	}
}

// CrossingIndex 冲突序号
// 参数：e-相连的边，leaving-是否作为驶出边查询
// 返回：序号，不存在时返回false
func (n *Node) CrossingIndex(e entity.IEdge, leaving bool) (int, bool) {
	var idx int
	var ok bool
	if leaving {
		idx, ok = n.outIndex[e.ID()]
	} else {
		idx, ok = n.inIndex[e.ID()]
	}
	return idx, ok
}

// EntryLane 驶入to时使用的车道
// 说明：from没有任何转向限制时视为合法，车道截断到to的车道数以内
func (n *Node) EntryLane(from entity.IEdge, lane int, to entity.IEdge) (int, bool) {
	if _, ok := n.restricted[from.ID()]; !ok {
		return min(lane, to.LaneCount()-1), true
	}
	for _, t := range n.restrictions[laneKey{from.ID(), lane}] {
		if t.edge == to.ID() {
			return t.lane, true
		}
	}
	return 0, false
}

// LanesToward from上能够转向to的车道
func (n *Node) LanesToward(from entity.IEdge, to entity.IEdge) []int {
	res := make([]int, 0, from.LaneCount())
	for lane := 0; lane < from.LaneCount(); lane++ {
		if _, ok := n.EntryLane(from, lane, to); ok {
			res = append(res, lane)
		}
	}
	return res
}

// Register 登记车辆，下一次Update生效
func (n *Node) Register(v entity.IVehicle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.pendingRemove, v.ID())
	n.pendingAdd = append(n.pendingAdd, v)
	n.dirty = true
}

// Unregister 注销车辆，下一次Update生效
func (n *Node) Unregister(v entity.IVehicle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pendingAdd = lo.Reject(n.pendingAdd, func(u entity.IVehicle, _ int) bool { return u.ID() == v.ID() })
	if _, ok := n.registered[v.ID()]; ok {
		n.pendingRemove[v.ID()] = struct{}{}
	}
	n.dirty = true
}

// IsPermitted 本步是否允许通过
func (n *Node) IsPermitted(v entity.IVehicle) bool {
	n.permittedMu.RLock()
	defer n.permittedMu.RUnlock()
	_, ok := n.permitted[v.ID()]
	return ok
}

// Permitted 本步允许通过的车辆ID，升序
func (n *Node) Permitted() []int32 {
	n.permittedMu.RLock()
	defer n.permittedMu.RUnlock()
	ids := lo.Keys(n.permitted)
	slices.Sort(ids)
	return ids
}

// Registered 已登记车辆ID，升序
func (n *Node) Registered() []int32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := lo.Keys(n.registered)
	slices.Sort(ids)
	return ids
}

// add 登记一辆车并与已登记车辆两两比较
// 说明：胜者+1、败者-1，无冲突或平局双方各+1
func (n *Node) add(v entity.IVehicle) error {
	v.ResetPriorityCounter()
	for _, u := range n.order {
		var err1, err2 error
		switch c := n.compare(v, u); {
		case c > 0:
			err1, err2 = v.IncPriorityCounter(), u.DecPriorityCounter()
		case c < 0:
			err1, err2 = v.DecPriorityCounter(), u.IncPriorityCounter()
		default:
			err1, err2 = v.IncPriorityCounter(), u.IncPriorityCounter()
		}
		if err1 != nil || err2 != nil {
			return fmt.Errorf("%v: register vehicle %d against %d: %w", n, v.ID(), u.ID(), lo.Ternary(err1 != nil, err1, err2))
		}
	}
	n.registered[v.ID()] = v
	n.order = append(n.order, v)
	return nil
}

// update 计算下一步的通行许可
// 算法说明：
//  1. 已生成车辆在各自驶入边上的前后次序与上次比较时不同（超车、变道插入），视同有注销
//  2. 应用注销；若有注销，清空剩余车辆的计数并按ID升序重新登记
//  3. 按ID升序应用新登记（已登记的忽略）
//  4. 候选：已生成车辆必须是所在车道最前的车；拥堵友好过滤排除登记集合无变化、策略开启且下一条边入口已被占用的车辆
//  5. 取候选中计数最大者；若最大值不等于登记数-1（存在环状冲突）或开启"每步仅一车"且多于一辆，只保留一辆：
//     登记集合无变化且上一步的被许可者仍在其中时保留它，否则随机选择
func (n *Node) update() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	reordered := len(n.pendingRemove) == 0 && !slices.Equal(queueOrder(n.order), n.queue)
	changed := n.dirty || reordered
	if len(n.pendingRemove) > 0 || reordered {
		remaining := lo.Filter(n.order, func(v entity.IVehicle, _ int) bool {
			_, removed := n.pendingRemove[v.ID()]
			return !removed
		})
		slices.SortFunc(remaining, compareVehicleID)
		clear(n.pendingRemove)
		clear(n.registered)
		n.order = n.order[:0]
		for _, v := range remaining {
			if err := n.add(v); err != nil {
				return err
			}
		}
	}
	if len(n.pendingAdd) > 0 {
		slices.SortFunc(n.pendingAdd, compareVehicleID)
		for _, v := range n.pendingAdd {
			if _, ok := n.registered[v.ID()]; ok {
				continue
			}
			if err := n.add(v); err != nil {
				return err
			}
		}
		n.pendingAdd = n.pendingAdd[:0]
	}
	n.queue = queueOrder(n.order)
	n.dirty = false

	chosen := n.maxPriority(changed)
	onlyOne := n.ctx.RuntimeConfig().C.Crossing.OnlyOneVehicle
	if len(chosen) > 1 && (chosen[0].PriorityCounter() != int32(len(n.order)-1) || onlyOne) {
		n.permittedMu.RLock()
		kept, ok := lo.Find(chosen, func(v entity.IVehicle) bool {
			_, was := n.permitted[v.ID()]
			return was
		})
		n.permittedMu.RUnlock()
		if !ok || changed {
			kept = chosen[n.generator.Intn(len(chosen))]
		}
		chosen = []entity.IVehicle{kept}
	}

	n.permittedMu.Lock()
	defer n.permittedMu.Unlock()
	clear(n.permitted)
	for _, v := range chosen {
		n.permitted[v.ID()] = struct{}{}
	}
	return nil
}

// maxPriority 候选车辆中计数最大者，按ID升序
// 参数：changed-自上次Update以来登记集合或车道次序是否有变化
func (n *Node) maxPriority(changed bool) []entity.IVehicle {
	friendly := n.ctx.RuntimeConfig().C.Crossing.FriendlyStandingInJam
	candidates := lo.Filter(n.order, func(v entity.IVehicle, _ int) bool {
		if v.State() == entity.Spawned {
			if _, toEnd := v.Edge().Gap(v.Lane(), v.Cell()); !toEnd {
				return false
			}
		}
		if changed || !friendly {
			return true
		}
		next := v.NextEdge()
		return next == nil || next.IsEntryFree(v.EntryLane())
	})
	if len(candidates) == 0 {
		return nil
	}
	slices.SortFunc(candidates, compareVehicleID)
	maxCounter := lo.MaxBy(candidates, func(a, b entity.IVehicle) bool {
		return a.PriorityCounter() > b.PriorityCounter()
	}).PriorityCounter()
	return lo.Filter(candidates, func(v entity.IVehicle, _ int) bool {
		return v.PriorityCounter() == maxCounter
	})
}

// queueOrder 已生成车辆按(驶入边ID, 边上由前到后)排列的ID序列
func queueOrder(vs []entity.IVehicle) []int32 {
	queued := lo.Filter(vs, func(v entity.IVehicle, _ int) bool {
		return v.State() == entity.Spawned
	})
	slices.SortFunc(queued, func(a, b entity.IVehicle) int {
		if ea, eb := a.Edge().ID(), b.Edge().ID(); ea != eb {
			return int(ea) - int(eb)
		}
		return compareOnSameEdge(b, a)
	})
	return lo.Map(queued, func(v entity.IVehicle, _ int) int32 { return v.ID() })
}

// reset 清空动态状态并重置随机数
func (n *Node) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	clear(n.registered)
	n.order = nil
	n.pendingAdd = nil
	clear(n.pendingRemove)
	n.queue = nil
	n.dirty = false
	n.permittedMu.Lock()
	clear(n.permitted)
	n.permittedMu.Unlock()
	n.generator.Reset()
}

func compareEdgeID(a, b entity.IEdge) int {
	return int(a.ID()) - int(b.ID())
}

func compareVehicleID(a, b entity.IVehicle) int {
	return int(a.ID()) - int(b.ID())
}
