package vehicle

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/tsinghua-fib-lab/cellsim/entity"
	"github.com/tsinghua-fib-lab/cellsim/entity/route"
	"github.com/tsinghua-fib-lab/cellsim/utils/container"
	"github.com/tsinghua-fib-lab/cellsim/utils/randengine"
)

var (
	ErrPriorityCounterOverflow  = errors.New("priority counter overflow")
	ErrPriorityCounterUnderflow = errors.New("priority counter underflow")
)

// plan will-move阶段的决策结果，move阶段执行
type plan struct {
	lane     int  // 变道后的车道（不变道时等于当前车道）
	v        int  // 计划速度（元胞/步）
	leave    bool // 是否驶出当前边
	nextLane int  // 驶入下一条边的车道
	nextCell int  // 驶入下一条边的元胞
	angry    bool // 想通过路口但未获许可
}

// Vehicle 车辆
// 功能：元胞自动机中的单个车辆，包含位置、速度、路线游标、驾驶员参数与路口优先级计数
// 说明：
// 1. 位置与速度只由车辆自己在move阶段修改
// 2. 优先级计数由所登记的路口在update阶段修改，读写加锁
type Vehicle struct {
	container.IncrementalItemBase

	ctx entity.ITaskContext

	id     int32
	route  *route.Route
	cursor int // 当前边在路线中的下标

	state entity.VehicleState
	edge  entity.IEdge
	lane  int
	cell  int
	v     int

	spawnLane int // 在第一条边上生成时使用的车道

	dawdleFactor     float64
	laneChangeFactor float64
	generator        *randengine.Engine

	counterMu sync.Mutex
	counter   int32

	anger      int32
	totalAnger int64
	travelTime int64 // 已行驶步数
	distance   int64 // 已行驶元胞数

	plan plan
}

// newVehicle 创建车辆
// 参数：ctx-任务上下文，id-车辆ID，seed-车辆随机数种子，r-路线
func newVehicle(ctx entity.ITaskContext, id int32, seed uint64, r *route.Route) *Vehicle {
	driver := ctx.RuntimeConfig().C.Driver
	v := &Vehicle{
		ctx:              ctx,
		id:               id,
		route:            r,
		state:            entity.NotSpawned,
		dawdleFactor:     driver.DawdleFactor,
		laneChangeFactor: driver.LaneChangeFactor,
		generator:        randengine.New(seed),
	}
	if len(r.Edges) > 1 {
		first := r.Edges[0]
		if lanes := first.Destination().LanesToward(first, r.Edges[1]); len(lanes) > 0 {
			v.spawnLane = lanes[0]
		}
	}
	return v
}

func (v *Vehicle) String() string {
	return fmt.Sprintf("Vehicle{ID=%d, %v, edge=%v, lane=%d, cell=%d, v=%d}",
		v.id, v.state, v.edgeID(), v.lane, v.cell, v.v)
}

func (v *Vehicle) edgeID() int32 {
	if v.edge == nil {
		return -1
	}
	return v.edge.ID()
}

func (v *Vehicle) ID() int32 {
	return v.id
}

func (v *Vehicle) State() entity.VehicleState {
	return v.state
}

func (v *Vehicle) Edge() entity.IEdge {
	return v.edge
}

func (v *Vehicle) Lane() int {
	return v.lane
}

func (v *Vehicle) Cell() int {
	return v.cell
}

func (v *Vehicle) V() int {
	return v.v
}

// Seed 车辆随机数种子
func (v *Vehicle) Seed() uint64 {
	return v.generator.Seed()
}

func (v *Vehicle) Route() *route.Route {
	return v.route
}

// Position 当前位置，未生成或已消失时Edge为-1
func (v *Vehicle) Position() entity.Position {
	return entity.Position{Edge: v.edgeID(), Lane: v.lane, Cell: v.cell}
}

func (v *Vehicle) Anger() int32 {
	return v.anger
}

func (v *Vehicle) TotalAnger() int64 {
	return v.totalAnger
}

func (v *Vehicle) TravelTime() int64 {
	return v.travelTime
}

// Distance 已行驶距离（元胞）
func (v *Vehicle) Distance() int64 {
	return v.distance
}

// NextEdge 下一个路口处驶入的边
// 说明：未生成时为路线的第一条边，已在最后一条边或已消失时为nil
func (v *Vehicle) NextEdge() entity.IEdge {
	switch v.state {
	case entity.NotSpawned:
		return v.route.Edges[0]
	case entity.Spawned:
		if v.cursor+1 < len(v.route.Edges) {
			return v.route.Edges[v.cursor+1]
		}
	}
	return nil
}

// EntryLane 驶入NextEdge时使用的车道
// 说明：当前车道不能转向时取最近的可转向车道
func (v *Vehicle) EntryLane() int {
	if v.state == entity.NotSpawned {
		return v.spawnLane
	}
	next := v.NextEdge()
	if next == nil {
		return 0
	}
	node := v.edge.Destination()
	if lane, ok := node.EntryLane(v.edge, v.lane, next); ok {
		return lane
	}
	if target, ok := nearestLane(node.LanesToward(v.edge, next), v.lane); ok {
		lane, _ := node.EntryLane(v.edge, target, next)
		return lane
	}
	return 0
}

func (v *Vehicle) PriorityCounter() int32 {
	v.counterMu.Lock()
	defer v.counterMu.Unlock()
	return v.counter
}

func (v *Vehicle) IncPriorityCounter() error {
	v.counterMu.Lock()
	defer v.counterMu.Unlock()
	if v.counter == math.MaxInt32 {
		return fmt.Errorf("vehicle %d: %w", v.id, ErrPriorityCounterOverflow)
	}
	v.counter++
	return nil
}

func (v *Vehicle) DecPriorityCounter() error {
	v.counterMu.Lock()
	defer v.counterMu.Unlock()
	if v.counter == math.MinInt32 {
		return fmt.Errorf("vehicle %d: %w", v.id, ErrPriorityCounterUnderflow)
	}
	v.counter--
	return nil
}

func (v *Vehicle) ResetPriorityCounter() {
	v.counterMu.Lock()
	defer v.counterMu.Unlock()
	v.counter = 0
}

// nearestLane lanes中离lane最近的车道，距离相同取编号小者
func nearestLane(lanes []int, lane int) (int, bool) {
	best, ok := 0, false
	for _, l := range lanes {
		if !ok || abs(l-lane) < abs(best-lane) {
			best, ok = l, true
		}
	}
	return best, ok
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
