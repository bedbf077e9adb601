package vehicle

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/cellsim/entity"
	"github.com/tsinghua-fib-lab/cellsim/entity/route"
	"github.com/tsinghua-fib-lab/cellsim/utils/container"
	"github.com/tsinghua-fib-lab/cellsim/utils/workerpool"
)

// Vehicle管理器
// 功能：持有场景中的全部车辆，按生命周期维护三个分区
// 1. pending：尚未到达生成延迟的车辆，按延迟排序的稳定优先队列
// 2. waiting：已在起点路口登记、等待进入路网的车辆
// 3. spawned：路网中的车辆
type VehicleManager struct {
	ctx   entity.ITaskContext
	edges []entity.IEdge // 按ID升序，move阶段按边划分任务

	vehicles []*Vehicle // 全部车辆，按ID升序
	data     map[int32]*Vehicle

	pending *container.PriorityQueue[*Vehicle]
	waiting *container.IncrementalArray[*Vehicle]
	spawned *container.IncrementalArray[*Vehicle]
}

func lessByID(a, b *Vehicle) bool {
	return a.id < b.id
}

// NewManager 创建Vehicle管理器实例
// 参数：ctx-任务上下文，edges-路网中的全部边
func NewManager(ctx entity.ITaskContext, edges []entity.IEdge) *VehicleManager {
	return &VehicleManager{
		ctx:      ctx,
		edges:    edges,
		vehicles: make([]*Vehicle, 0),
		data:     make(map[int32]*Vehicle),
		pending:  container.NewPriorityQueue[*Vehicle](),
		waiting:  container.NewIncrementalArray(lessByID),
		spawned:  container.NewIncrementalArray(lessByID),
	}
}

// Clear 清空全部车辆
func (m *VehicleManager) Clear() {
	m.vehicles = m.vehicles[:0]
	clear(m.data)
	m.pending.Clear()
	m.waiting.Clear()
	m.spawned.Clear()
}

// New 创建车辆并加入pending分区
// 参数：id-车辆ID，seed-车辆随机数种子，r-路线
// 说明：ID必须递增，以保证车辆列表按ID升序
func (m *VehicleManager) New(id int32, seed uint64, r *route.Route) (*Vehicle, error) {
	if len(r.Edges) == 0 {
		return nil, fmt.Errorf("vehicle %d: empty route %v", id, r)
	}
	if n := len(m.vehicles); n > 0 && m.vehicles[n-1].id >= id {
		return nil, fmt.Errorf("vehicle %d: id is not increasing", id)
	}
	v := newVehicle(m.ctx, id, seed, r)
	m.vehicles = append(m.vehicles, v)
	m.data[id] = v
	m.pending.HeapPush(v, float64(r.SpawnDelay))
	return v, nil
}

// Get 根据ID获取车辆，如果不存在则返回nil
func (m *VehicleManager) Get(id int32) *Vehicle {
	return m.data[id]
}

// GetOrError 根据ID获取车辆，如果不存在则返回错误
func (m *VehicleManager) GetOrError(id int32) (*Vehicle, error) {
	if v, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in vehicle data", id)
	} else {
		return v, nil
	}
}

// Vehicles 全部车辆，按ID升序
func (m *VehicleManager) Vehicles() []*Vehicle {
	return m.vehicles
}

// Spawned 路网中的车辆
func (m *VehicleManager) Spawned() []*Vehicle {
	return m.spawned.Data()
}

// Counts 各状态的车辆数
func (m *VehicleManager) Counts() (notSpawned, spawned, despawned int) {
	spawned = m.spawned.Len()
	notSpawned = m.pending.Len() + m.waiting.Len()
	despawned = len(m.vehicles) - spawned - notSpawned
	return
}

// Release 放出生成延迟已到的车辆，在起点路口登记
// 参数：age-当前步
// 返回：放出的车辆数
func (m *VehicleManager) Release(age uint64) int {
	count := 0
	for m.pending.Len() > 0 {
		if _, delay := m.pending.First(); delay > float64(age) {
			break
		}
		v, _ := m.pending.HeapPop()
		v.route.Origin.Register(v)
		m.waiting.Add(v)
		count++
	}
	m.waiting.Prepare()
	if count > 0 {
		log.Debugf("step %d: released %d vehicles", age, count)
	}
	return count
}

// WillMove 决策阶段
func (m *VehicleManager) WillMove(ctx context.Context, pool *workerpool.Pool) error {
	return workerpool.ForEach(ctx, pool, m.spawned.Data(), func(v *Vehicle) error {
		v.willMove()
		return nil
	})
}

// Move 执行阶段
// 说明：按边划分任务，同一条边上的车辆按前车优先的顺序依次移动
func (m *VehicleManager) Move(ctx context.Context, pool *workerpool.Pool) error {
	return workerpool.ForEach(ctx, pool, m.edges, func(e entity.IEdge) error {
		for _, iv := range e.VehiclesFrontFirst() {
			v, ok := iv.(*Vehicle)
			if !ok {
				return fmt.Errorf("edge %d holds unknown vehicle %d", e.ID(), iv.ID())
			}
			if v.move() {
				m.spawned.Remove(v)
			}
		}
		return nil
	})
}

// DidMove 统计阶段
// 说明：调用前边已完成跨边到达的写入
func (m *VehicleManager) DidMove(ctx context.Context, pool *workerpool.Pool) error {
	err := workerpool.ForEach(ctx, pool, m.spawned.Data(), func(v *Vehicle) error {
		v.didMove()
		return nil
	})
	m.spawned.Prepare()
	return err
}

// Spawn 生成阶段：等待中的车辆尝试进入路网，随后放出新到期的车辆
// 参数：age-本步完成后的步数
func (m *VehicleManager) Spawn(ctx context.Context, pool *workerpool.Pool, age uint64) error {
	err := workerpool.ForEach(ctx, pool, m.waiting.Data(), func(v *Vehicle) error {
		if v.trySpawn() {
			m.waiting.Remove(v)
			m.spawned.Add(v)
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.waiting.Prepare()
	m.spawned.Prepare()
	m.Release(age)
	return nil
}

// Reset 把全部车辆恢复到创建时的状态，重新放入pending分区
func (m *VehicleManager) Reset() {
	m.pending.Clear()
	m.waiting.Clear()
	m.spawned.Clear()
	for _, v := range m.vehicles {
		v.reset()
		m.pending.HeapPush(v, float64(v.route.SpawnDelay))
	}
}

// Snapshot 路网中车辆的位置快照，按ID升序
func (m *VehicleManager) Snapshot() []VehicleResponse {
	spawned := lo.Filter(m.vehicles, func(v *Vehicle, _ int) bool {
		return v.state == entity.Spawned
	})
	return lo.Map(spawned, func(v *Vehicle, _ int) VehicleResponse { return v.response() })
}
