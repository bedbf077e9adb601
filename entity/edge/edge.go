package edge

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
)

// lane 车道：定长元胞数组
type lane struct {
	maxV     int
	cells    []entity.IVehicle
	reserved int // 本步预留给跨路口驶入车辆的元胞，-1表示无
}

// arrival 跨边到达记录
type arrival struct {
	v    entity.IVehicle
	lane int
	cell int
}

// Edge 有向道路段
// 功能：把道路切分为定长元胞，维护每条车道的占用、限速与入口预留
// 说明：元胞只由本边所在的工作线程写入；其他边的车辆通过PostArrival/Reserve间接写入
type Edge struct {
	id          int32
	origin      entity.INode
	destination entity.INode
	geometry    orb.LineString

	lengthMeters float64
	length       int
	priority     int32

	lanes []*lane

	mu       sync.Mutex // 保护arrivals与lanes[*].reserved
	arrivals []arrival
}

// newEdge 创建Edge
// 功能：根据输入数据创建Edge，计算几何长度与元胞数
// 参数：base-输入数据，origin/destination-起终点，cellLength-元胞长度（米）
// 返回：Edge实例
// 说明：元胞数=max(1, round(米数/元胞长度))
func newEdge(base input.Edge, origin, destination entity.INode, cellLength float64) *Edge {
	e := &Edge{
		id:          base.ID,
		origin:      origin,
		destination: destination,
		priority:    base.Priority,
	}
	if len(base.Geometry) >= 2 {
		e.geometry = lo.Map(base.Geometry, func(p [2]float64, _ int) orb.Point {
			return orb.Point{p[0], p[1]}
		})
	} else {
		e.geometry = orb.LineString{origin.Point(), destination.Point()}
	}
	if base.Length > 0 {
		e.lengthMeters = base.Length
	} else {
		e.lengthMeters = geo.Length(e.geometry)
	}
	e.length = max(1, int(math.Round(e.lengthMeters/cellLength)))
	nLanes := max(1, base.Lanes)
	e.lanes = make([]*lane, nLanes)
	for i := range e.lanes {
		maxV := base.MaxV
		if len(base.LaneMaxV) == nLanes {
			maxV = base.LaneMaxV[i]
		}
		e.lanes[i] = &lane{
			maxV:     max(1, maxV),
			cells:    make([]entity.IVehicle, e.length),
			reserved: -1,
		}
	}
	return e
}

func (e *Edge) String() string {
	return fmt.Sprintf("Edge{ID=%d, %d->%d, lanes=%d, cells=%d}",
		e.id, e.origin.ID(), e.destination.ID(), len(e.lanes), e.length)
}

func (e *Edge) ID() int32 {
	return e.id
}

func (e *Edge) Origin() entity.INode {
	return e.origin
}

func (e *Edge) Destination() entity.INode {
	return e.destination
}

func (e *Edge) Geometry() orb.LineString {
	return e.geometry
}

func (e *Edge) Length() int {
	return e.length
}

func (e *Edge) LengthMeters() float64 {
	return e.lengthMeters
}

func (e *Edge) LaneCount() int {
	return len(e.lanes)
}

func (e *Edge) MaxV(lane int) int {
	return e.lanes[lane].maxV
}

func (e *Edge) Priority() int32 {
	return e.priority
}

func (e *Edge) At(lane, cell int) entity.IVehicle {
	return e.lanes[lane].cells[cell]
}

// Gap 前方间距
// 功能：计算cell之后连续的空元胞数
// 返回：空元胞数；true表示一直到车道末端都为空
func (e *Edge) Gap(lane, cell int) (int, bool) {
	cells := e.lanes[lane].cells
	for i := cell + 1; i < len(cells); i++ {
		if cells[i] != nil {
			return i - cell - 1, false
		}
	}
	return len(cells) - cell - 1, true
}

// FreeEntryCells 车道入口处连续空元胞数
func (e *Edge) FreeEntryCells(lane int) int {
	cells := e.lanes[lane].cells
	for i, v := range cells {
		if v != nil {
			return i
		}
	}
	return len(cells)
}

func (e *Edge) IsEntryFree(lane int) bool {
	return e.lanes[lane].cells[0] == nil
}

// Reserve 预留入口元胞
// 说明：同一车道多次预留时保留最靠前的元胞
func (e *Edge) Reserve(lane, cell int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l := e.lanes[lane]
	l.reserved = max(l.reserved, cell)
}

func (e *Edge) Reserved(lane int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lanes[lane].reserved
}

func (e *Edge) Put(v entity.IVehicle, lane, cell int) {
	l := e.lanes[lane]
	if l.cells[cell] != nil {
		log.Panicf("%v: cell %d of lane %d is occupied by vehicle %d, cannot put vehicle %d",
			e, cell, lane, l.cells[cell].ID(), v.ID())
	}
	l.cells[cell] = v
}

func (e *Edge) Clear(lane, cell int) {
	e.lanes[lane].cells[cell] = nil
}

// PostArrival 登记从其他边驶入的车辆，在DidMove阶段写入元胞
func (e *Edge) PostArrival(v entity.IVehicle, lane, cell int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.arrivals = append(e.arrivals, arrival{v: v, lane: lane, cell: cell})
}

// VehiclesFrontFirst 本边车辆
// 返回：按元胞降序、车道升序排列的车辆列表
func (e *Edge) VehiclesFrontFirst() []entity.IVehicle {
	res := make([]entity.IVehicle, 0)
	for cell := e.length - 1; cell >= 0; cell-- {
		for _, l := range e.lanes {
			if v := l.cells[cell]; v != nil {
				res = append(res, v)
			}
		}
	}
	return res
}

// VehicleCount 本边车辆数
func (e *Edge) VehicleCount() int {
	return lo.SumBy(e.lanes, func(l *lane) int {
		return lo.CountBy(l.cells, func(v entity.IVehicle) bool { return v != nil })
	})
}

// didMove 写入跨边到达的车辆并清除预留
// 说明：到达的元胞必须为空，否则说明元胞排他性被破坏
func (e *Edge) didMove() {
	e.mu.Lock()
	defer e.mu.Unlock()
	slices.SortFunc(e.arrivals, func(a, b arrival) int {
		return int(a.v.ID()) - int(b.v.ID())
	})
	for _, a := range e.arrivals {
		e.Put(a.v, a.lane, a.cell)
	}
	e.arrivals = e.arrivals[:0]
	for _, l := range e.lanes {
		l.reserved = -1
	}
}

// reset 清空动态状态
func (e *Edge) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, l := range e.lanes {
		clear(l.cells)
		l.reserved = -1
	}
	e.arrivals = nil
}
