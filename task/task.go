package task

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tsinghua-fib-lab/cellsim/clock"
	"github.com/tsinghua-fib-lab/cellsim/entity/graph"
	"github.com/tsinghua-fib-lab/cellsim/entity/route"
	"github.com/tsinghua-fib-lab/cellsim/entity/vehicle"
	"github.com/tsinghua-fib-lab/cellsim/scenario"
	"github.com/tsinghua-fib-lab/cellsim/utils/config"
	"github.com/tsinghua-fib-lab/cellsim/utils/input"
	"github.com/tsinghua-fib-lab/cellsim/utils/workerpool"
)

// Context 仿真任务上下文
// 功能：包含一次仿真任务的所有变量和状态
// 说明：
// 1. Step持有写锁，HTTP查询持有读锁，查询总是看到两步之间的一致状态
// 2. 路网可被多个场景共享，场景负责车辆与OD矩阵
type Context struct {
	// 运行ID
	id uuid.UUID
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock *clock.Clock
	// 运行时配置文件
	runtimeConfig *config.RuntimeConfig
	// 工作池
	pool *workerpool.Pool

	// 路网
	graph *graph.Graph
	// 导航服务
	router *route.Dijkstra
	// 场景
	scenario *scenario.Scenario

	mu sync.RWMutex
	// 致命错误，出现后停止步进
	fatal error

	// 每步完成后的回调（不持有锁）
	hooksMu sync.Mutex
	hooks   []func(age uint64)
}

// NewContext 创建新的仿真任务上下文
// 功能：补全配置默认值，构建路网、导航与场景
// 参数：c-配置，g-路网输入
// 返回：上下文；路网拓扑错误时返回error
func NewContext(c config.Config, g input.Graph) (*Context, error) {
	ctx := &Context{
		id:            uuid.New(),
		runtimeConfig: config.NewRuntimeConfig(c),
	}
	ctx.clock = clock.New(ctx.runtimeConfig.C.Step)
	ctx.pool = workerpool.New(ctx.runtimeConfig.C.Threads)

	var err error
	if ctx.graph, err = graph.New(ctx, g); err != nil {
		return nil, err
	}
	ctx.router = route.NewDijkstra(ctx.graph)
	ctx.scenario = scenario.New(ctx, ctx.graph, ctx.router, ctx.pool)
	log.Infof("task %v created with %d threads", ctx.id, ctx.pool.Threads())
	return ctx, nil
}

// ID 运行ID
func (ctx *Context) ID() uuid.UUID {
	return ctx.id
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

func (ctx *Context) Graph() *graph.Graph {
	return ctx.graph
}

func (ctx *Context) Scenario() *scenario.Scenario {
	return ctx.scenario
}

func (ctx *Context) VehicleManager() *vehicle.VehicleManager {
	return ctx.scenario.VehicleManager()
}

// RLock 获取读锁，供外部查询使用
func (ctx *Context) RLock() {
	ctx.mu.RLock()
}

func (ctx *Context) RUnlock() {
	ctx.mu.RUnlock()
}

// OnStep 注册每步完成后的回调
func (ctx *Context) OnStep(hook func(age uint64)) {
	ctx.hooksMu.Lock()
	defer ctx.hooksMu.Unlock()
	ctx.hooks = append(ctx.hooks, hook)
}

// Prepare 准备场景并重置时钟
// 参数：od-OD矩阵，为nil时由配置中的区域生成
func (ctx *Context) Prepare(c context.Context, od *scenario.ODMatrix) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.clock.Init()
	ctx.fatal = nil
	return ctx.scenario.Prepare(c, od)
}

// Cancel 请求停止运行，在当前步完成后生效
func (ctx *Context) Cancel() {
	ctx.closed.Store(true)
}

// Age 已完成的步数
func (ctx *Context) Age() uint64 {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.clock.InternalStep
}

// Snapshot 两步之间的状态快照
type Snapshot struct {
	RunID      string                    `json:"run_id"`
	Step       uint64                    `json:"step"`
	Time       float64                   `json:"time"`
	NotSpawned int                       `json:"not_spawned"`
	Spawned    int                       `json:"spawned"`
	Despawned  int                       `json:"despawned"`
	Vehicles   []vehicle.VehicleResponse `json:"vehicles"`
}

// Snapshot 获取当前状态快照
func (ctx *Context) Snapshot() Snapshot {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	m := ctx.scenario.VehicleManager()
	notSpawned, spawned, despawned := m.Counts()
	return Snapshot{
		RunID:      ctx.id.String(),
		Step:       ctx.clock.InternalStep,
		Time:       ctx.clock.T,
		NotSpawned: notSpawned,
		Spawned:    spawned,
		Despawned:  despawned,
		Vehicles:   m.Snapshot(),
	}
}
