// 场景：一次模拟运行所用的路网、OD矩阵与车辆集合
package scenario

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/cellsim/entity"
	"github.com/tsinghua-fib-lab/cellsim/entity/graph"
	"github.com/tsinghua-fib-lab/cellsim/entity/route"
	"github.com/tsinghua-fib-lab/cellsim/entity/vehicle"
	"github.com/tsinghua-fib-lab/cellsim/utils/config"
	"github.com/tsinghua-fib-lab/cellsim/utils/randengine"
	"github.com/tsinghua-fib-lab/cellsim/utils/workerpool"
)

var (
	ErrEmptyOriginField      = errors.New("origin field contains no node")
	ErrEmptyDestinationField = errors.New("destination field contains no node")
	ErrEmptyODMatrix         = errors.New("empty OD matrix")
	ErrNotPrepared           = errors.New("scenario is not prepared")
)

// trip 待创建的一辆车
type trip struct {
	origin, destination entity.INode
	delay               int64
	edges               []entity.IEdge // 由工人在轮到自己之前计算
	err                 error
}

// Scenario 场景
// 功能：持有车辆与OD矩阵，引用共享的路网；生命周期为 未准备 -> 已准备 -> 运行 -> (Prepare重置)
type Scenario struct {
	ctx    entity.ITaskContext
	graph  *graph.Graph
	routes entity.IRouteProvider
	pool   *workerpool.Pool

	vehicles  *vehicle.VehicleManager
	od        *ODMatrix
	generator *randengine.Engine

	prepared bool
}

// New 创建场景
// 参数：ctx-任务上下文，g-路网，routes-导航，pool-工作池（线程数决定车辆创建的工人数）
func New(ctx entity.ITaskContext, g *graph.Graph, routes entity.IRouteProvider, pool *workerpool.Pool) *Scenario {
	return &Scenario{
		ctx:       ctx,
		graph:     g,
		routes:    routes,
		pool:      pool,
		vehicles:  vehicle.NewManager(ctx, g.Edges()),
		od:        NewODMatrix(),
		generator: randengine.New(ctx.RuntimeConfig().C.Seed),
	}
}

func (s *Scenario) Graph() *graph.Graph {
	return s.graph
}

func (s *Scenario) VehicleManager() *vehicle.VehicleManager {
	return s.vehicles
}

// Vehicles 全部车辆，按ID升序
func (s *Scenario) Vehicles() []*vehicle.Vehicle {
	return s.vehicles.Vehicles()
}

// OD 当前使用的OD矩阵
func (s *Scenario) OD() *ODMatrix {
	return s.od
}

func (s *Scenario) IsPrepared() bool {
	return s.prepared
}

// Prepare 准备场景
// 功能：重置路网与车辆，确定OD矩阵，计算路线并创建车辆
// 参数：od-外部给定的OD矩阵，为nil时由起点/终点区域随机生成
// 返回：区域为空、OD矩阵为空、OD引用不存在的Node或创建车辆失败时返回error
// 算法说明：
// 1. 重置路网动态状态、车辆容器与场景随机数引擎，再次调用得到完全相同的结果
// 2. 配置中的显式出行在前，OD矩阵按(起点, 终点)升序展开在后，总数受MaxVehicleCount限制
// 3. 多个工人按轮转顺序创建车辆：第k个出行由第k%threads个工人负责，
//    路线在轮到自己之前计算，轮到后分配ID与随机数种子，因此结果与线程数无关
// 4. 放出生成延迟为0的车辆并执行一次路口更新
func (s *Scenario) Prepare(ctx context.Context, od *ODMatrix) error {
	s.prepared = false
	s.graph.Reset()
	s.vehicles.Clear()
	s.generator.Reset()

	sc := s.ctx.RuntimeConfig().C.Scenario
	switch {
	case od != nil:
		if od.Len() == 0 {
			return ErrEmptyODMatrix
		}
		s.od = od.clone()
	case sc.MaxVehicleCount > 0:
		built, err := s.buildOD(sc)
		if err != nil {
			return err
		}
		s.od = built
	default:
		s.od = NewODMatrix()
	}

	trips, err := s.trips(sc)
	if err != nil {
		return err
	}
	if len(trips) == 0 {
		return ErrEmptyODMatrix
	}
	log.Infof("creating %d vehicles with %d workers", len(trips), s.pool.Threads())
	if err := s.createVehicles(ctx, trips); err != nil {
		return err
	}

	s.vehicles.Release(0)
	if err := s.graph.NodeManager().Update(ctx, s.pool); err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	s.prepared = true
	log.Infof("scenario prepared: %d vehicles from %d OD pairs", len(s.vehicles.Vehicles()), s.od.Len())
	return nil
}

// buildOD 由起点/终点区域随机生成OD矩阵，每次抽取一个起点与一个终点
func (s *Scenario) buildOD(sc config.Scenario) (*ODMatrix, error) {
	core := s.graph.StronglyConnectedCore()
	origins := fieldNodes(core, sc.Origin)
	if len(origins) == 0 {
		return nil, ErrEmptyOriginField
	}
	destinations := fieldNodes(core, sc.Destination)
	if len(destinations) == 0 {
		return nil, ErrEmptyDestinationField
	}
	od := NewODMatrix()
	for i := 0; i < sc.MaxVehicleCount; i++ {
		o := origins[s.generator.Intn(len(origins))]
		d := destinations[s.generator.Intn(len(destinations))]
		od.Add(o.ID(), d.ID(), 1)
	}
	return od, nil
}

// trips 展开显式出行与OD矩阵
func (s *Scenario) trips(sc config.Scenario) ([]*trip, error) {
	nodes := s.graph.NodeManager()
	res := make([]*trip, 0, s.od.Total()+len(sc.Routes))
	add := func(origin, destination int32, count int, delay int64) error {
		o, err := nodes.GetOrError(origin)
		if err != nil {
			return fmt.Errorf("scenario: bad origin: %w", err)
		}
		d, err := nodes.GetOrError(destination)
		if err != nil {
			return fmt.Errorf("scenario: bad destination: %w", err)
		}
		for i := 0; i < count; i++ {
			res = append(res, &trip{origin: o, destination: d, delay: delay})
		}
		return nil
	}
	for _, r := range sc.Routes {
		if err := add(r.Origin, r.Destination, max(1, r.Count), r.SpawnDelay); err != nil {
			return nil, err
		}
	}
	for _, p := range s.od.Pairs() {
		if err := add(p.Origin, p.Destination, p.Count, 0); err != nil {
			return nil, err
		}
	}
	if sc.MaxVehicleCount > 0 && len(res) > sc.MaxVehicleCount {
		log.Warnf("%d trips exceed max vehicle count %d, truncated", len(res), sc.MaxVehicleCount)
		res = res[:sc.MaxVehicleCount]
	}
	return res, nil
}

// createVehicles 轮转创建车辆
// 说明：next为下一个应被处理的出行序号，只有负责该序号的工人可以进入临界区；
// 任一工人失败时置failed并唤醒其余工人退出
func (s *Scenario) createVehicles(ctx context.Context, trips []*trip) error {
	var mu sync.Mutex
	turn := sync.NewCond(&mu)
	next, failed := 0, false
	nextID := int32(1)
	skipped := make(map[[2]int32]int)
	threads := s.pool.Threads()
	err := workerpool.Go(ctx, s.pool, func(ctx context.Context, worker int) error {
		for k := worker; k < len(trips); k += threads {
			t := trips[k]
			if err := ctx.Err(); err != nil {
				mu.Lock()
				failed = true
				turn.Broadcast()
				mu.Unlock()
				return err
			}
			t.edges, t.err = s.routes.FindRoute(t.origin, t.destination)

			mu.Lock()
			for next != k && !failed {
				turn.Wait()
			}
			if failed {
				mu.Unlock()
				return nil
			}
			if t.err != nil {
				skipped[[2]int32{t.origin.ID(), t.destination.ID()}]++
			} else {
				r := route.New(t.origin, t.destination, t.edges, t.delay)
				if _, err := s.vehicles.New(nextID, s.generator.Uint64(), r); err != nil {
					failed = true
					turn.Broadcast()
					mu.Unlock()
					return fmt.Errorf("scenario: %w", err)
				}
				nextID++
			}
			next++
			turn.Broadcast()
			mu.Unlock()
		}
		return nil
	})
	pairs := lo.Keys(skipped)
	slices.SortFunc(pairs, func(a, b [2]int32) int {
		if a[0] != b[0] {
			return int(a[0] - b[0])
		}
		return int(a[1] - b[1])
	})
	for _, pair := range pairs {
		log.Warnf("no route from node %d to node %d, %d trips skipped", pair[0], pair[1], skipped[pair])
	}
	return err
}
