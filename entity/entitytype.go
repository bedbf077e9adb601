package entity

import (
	"fmt"

	"github.com/paulmach/orb"
)

// 方位常量
const (
	LEFT  = -1 // 左侧相邻车道偏移
	RIGHT = 1  // 右侧相邻车道偏移
)

// VehicleState 车辆生命周期状态
// NOT_SPAWNED -> SPAWNED -> DESPAWNED（终态）
type VehicleState int32

const (
	NotSpawned VehicleState = iota
	Spawned
	Despawned
)

func (s VehicleState) String() string {
	switch s {
	case NotSpawned:
		return "NOT_SPAWNED"
	case Spawned:
		return "SPAWNED"
	case Despawned:
		return "DESPAWNED"
	default:
		return fmt.Sprintf("VehicleState(%d)", int32(s))
	}
}

// Position 车辆在路网中的离散位置
type Position struct {
	Edge int32 `json:"edge"`
	Lane int   `json:"lane"`
	Cell int   `json:"cell"`
}

// LaneRef 指向某条Edge上的某条车道
type LaneRef struct {
	Edge IEdge
	Lane int
}

func (r LaneRef) String() string {
	return fmt.Sprintf("LaneRef{Edge=%d, Lane=%d}", r.Edge.ID(), r.Lane)
}

// entity/node/node.go的依赖倒置
type INode interface {
	ID() int32
	Point() orb.Point

	IncomingEdges() []IEdge // 驶入边，按ID升序
	LeavingEdges() []IEdge  // 驶出边，按ID升序

	// 输入驶入边、车道与驶出边，返回在驶出边上使用的车道以及该转向是否合法
	EntryLane(from IEdge, lane int, to IEdge) (int, bool)
	// 驶入边上能够转向驶出边的车道，升序
	LanesToward(from IEdge, to IEdge) []int

	Register(v IVehicle)         // 登记车辆（下一次Update生效）
	Unregister(v IVehicle)       // 注销车辆（下一次Update生效）
	IsPermitted(v IVehicle) bool // 本步是否允许通过
	Permitted() []int32          // 本步允许通过的车辆ID
	Registered() []int32         // 已登记车辆ID
}

// entity/edge/edge.go的依赖倒置
type IEdge interface {
	ID() int32
	Origin() INode
	Destination() INode

	Geometry() orb.LineString // 折线，首点为起点、末点为终点
	Length() int              // 元胞数
	LengthMeters() float64    // 长度（米）
	LaneCount() int
	MaxV(lane int) int // 车道限速（元胞/步）
	Priority() int32   // 道路等级，越大越优先

	At(lane, cell int) IVehicle             // 元胞上的车辆，空则为nil
	Gap(lane, cell int) (int, bool)         // 前方连续空元胞数，以及是否一直空到车道末端
	FreeEntryCells(lane int) int            // 车道入口处连续空元胞数
	IsEntryFree(lane int) bool              // 车道入口元胞是否为空
	Reserve(lane, cell int)                 // 预留车道入口区域的元胞，供跨越路口的车辆进入
	Reserved(lane int) int                  // 预留的元胞，没有则为-1
	Put(v IVehicle, lane, cell int)         // 写入元胞（仅限本边的工作线程）
	Clear(lane, cell int)                   // 清空元胞（仅限本边的工作线程）
	PostArrival(v IVehicle, lane, cell int) // 登记从其他边驶入的车辆（DidMove时写入）
	VehiclesFrontFirst() []IVehicle         // 本边车辆，按元胞降序、车道升序
}

// entity/vehicle/vehicle.go的依赖倒置
type IVehicle interface {
	ID() int32
	State() VehicleState
	Edge() IEdge // 当前所在边，未生成时为nil
	Lane() int
	Cell() int
	V() int

	// 下一个路口处将要驶入的边，没有则为nil；未生成时为路线的第一条边
	NextEdge() IEdge
	// 驶入NextEdge时使用的车道
	EntryLane() int

	PriorityCounter() int32
	IncPriorityCounter() error
	DecPriorityCounter() error
	ResetPriorityCounter()
}
