package vehicle

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/cellsim/clock"
	"github.com/tsinghua-fib-lab/cellsim/entity"
	"github.com/tsinghua-fib-lab/cellsim/entity/graph"
	"github.com/tsinghua-fib-lab/cellsim/entity/route"
	"github.com/tsinghua-fib-lab/cellsim/utils/config"
	"github.com/tsinghua-fib-lab/cellsim/utils/input"
	"github.com/tsinghua-fib-lab/cellsim/utils/workerpool"
)

type testContext struct {
	clock *clock.Clock
	rc    *config.RuntimeConfig
}

func (c *testContext) Clock() *clock.Clock { return c.clock }
func (c *testContext) RuntimeConfig() *config.RuntimeConfig { return c.rc }

func newTestContext(driver config.Driver) *testContext {
	rc := config.NewRuntimeConfig(config.Config{
		Control: config.Control{
			Seed:     7,
			Crossing: config.Crossing{DrivingOnTheRight: true, PriorityToTheRight: true},
			Driver:   driver,
		},
	})
	return &testContext{clock: clock.New(rc.C.Step), rc: rc}
}

// line 1 -> 2 -> 3，每条边75米（10个元胞）
func lineGraph(lanes int, connectors []input.Connector) input.Graph {
	return input.Graph{
		Nodes: []input.Node{
			{ID: 1, Lon: 116.3, Lat: 39.9},
			{ID: 2, Lon: 116.301, Lat: 39.9},
			{ID: 3, Lon: 116.302, Lat: 39.9},
		},
		Edges: []input.Edge{
			{ID: 1, From: 1, To: 2, Lanes: lanes, MaxV: 3, Length: 75},
			{ID: 2, From: 2, To: 3, Lanes: lanes, MaxV: 3, Length: 75},
		},
		Connectors: connectors,
	}
}

type world struct {
	ctx  *testContext
	g    *graph.Graph
	m    *VehicleManager
	pool *workerpool.Pool
	age  uint64
}

func newWorld(t *testing.T, driver config.Driver, in input.Graph) *world {
	ctx := newTestContext(driver)
	g, err := graph.New(ctx, in)
	require.NoError(t, err)
	return &world{ctx: ctx, g: g, m: NewManager(ctx, g.Edges()), pool: workerpool.New(2)}
}

func (w *world) route(edges ...int32) *route.Route {
	es := make([]entity.IEdge, 0, len(edges))
	for _, id := range edges {
		es = append(es, w.g.EdgeManager().Get(id))
	}
	return route.New(es[0].Origin(), es[len(es)-1].Destination(), es, 0)
}

func (w *world) start(t *testing.T) {
	w.m.Release(0)
	require.NoError(t, w.g.NodeManager().Update(context.Background(), w.pool))
}

func (w *world) step(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, w.m.WillMove(ctx, w.pool))
	require.NoError(t, w.m.Move(ctx, w.pool))
	require.NoError(t, w.g.EdgeManager().DidMove(ctx, w.pool))
	require.NoError(t, w.m.DidMove(ctx, w.pool))
	w.age++
	require.NoError(t, w.m.Spawn(ctx, w.pool, w.age))
	require.NoError(t, w.g.NodeManager().Update(ctx, w.pool))
}

func TestVehicleLifecycle(t *testing.T) {
	w := newWorld(t, config.Driver{}, lineGraph(1, nil))
	v, err := w.m.New(1, 11, w.route(1, 2))
	require.NoError(t, err)
	assert.Equal(t, entity.NotSpawned, v.State())
	assert.Equal(t, int32(1), v.NextEdge().ID())
	w.start(t)

	w.step(t)
	assert.Equal(t, entity.Spawned, v.State())
	assert.Equal(t, entity.Position{Edge: 1, Lane: 0, Cell: 0}, v.Position())
	assert.Equal(t, []int32{1}, w.g.NodeManager().Get(2).Registered())

	// 无随机慢化时逐步加速到限速
	speeds := []int{}
	for i := 0; i < 3; i++ {
		w.step(t)
		speeds = append(speeds, v.V())
	}
	assert.Equal(t, []int{1, 2, 3}, speeds)
	assert.Equal(t, 6, v.Cell())

	w.step(t)
	assert.Equal(t, entity.Position{Edge: 1, Lane: 0, Cell: 9}, v.Position())

	// 第6步跨越路口2，剩余速度计入下一条边
	w.step(t)
	assert.Equal(t, int32(2), v.Edge().ID())
	assert.Equal(t, 2, v.Cell())
	assert.Equal(t, v, w.g.EdgeManager().Get(2).At(0, 2))
	assert.Nil(t, w.g.EdgeManager().Get(1).At(0, 9))
	assert.Empty(t, w.g.NodeManager().Get(2).Registered())
	assert.Nil(t, v.NextEdge())

	for i := 0; i < 10 && v.State() != entity.Despawned; i++ {
		w.step(t)
	}
	assert.Equal(t, entity.Despawned, v.State())
	assert.Equal(t, int32(-1), v.Position().Edge)
	assert.Empty(t, w.m.Spawned())
	notSpawned, spawned, despawned := w.m.Counts()
	assert.Equal(t, [3]int{0, 0, 1}, [3]int{notSpawned, spawned, despawned})
	assert.Equal(t, int64(0), v.TotalAnger())
	assert.Equal(t, int64(21), v.Distance())
	assert.Equal(t, int64(8), v.TravelTime())
}

func TestSpawnDelay(t *testing.T) {
	w := newWorld(t, config.Driver{}, lineGraph(1, nil))
	r := w.route(1, 2)
	r.SpawnDelay = 3
	v, err := w.m.New(1, 11, r)
	require.NoError(t, err)
	w.start(t)
	for i := 0; i < 3; i++ {
		w.step(t)
		assert.Equal(t, entity.NotSpawned, v.State(), "step %d", i+1)
	}
	w.step(t)
	assert.Equal(t, entity.Spawned, v.State())
}

func TestSpawnBlockedByOccupiedEntry(t *testing.T) {
	w := newWorld(t, config.Driver{}, lineGraph(1, nil))
	a, _ := w.m.New(1, 1, w.route(1, 2))
	b, _ := w.m.New(2, 2, w.route(1, 2))
	w.start(t)
	// 两辆车都未生成时ID大者优先
	assert.Equal(t, []int32{2}, w.g.NodeManager().Get(1).Permitted())
	w.step(t)
	assert.Equal(t, entity.Spawned, b.State())
	assert.Equal(t, entity.NotSpawned, a.State())
	// b驶离入口元胞后a才能生成
	w.step(t)
	assert.Equal(t, entity.Spawned, a.State())
	assert.Equal(t, 1, b.Cell())
	for _, e := range w.g.Edges() {
		assertExclusive(t, e)
	}
}

func assertExclusive(t *testing.T, e entity.IEdge) {
	seen := make(map[int32]bool)
	for lane := 0; lane < e.LaneCount(); lane++ {
		for cell := 0; cell < e.Length(); cell++ {
			if v := e.At(lane, cell); v != nil {
				assert.False(t, seen[v.ID()], "vehicle %d twice on edge %d", v.ID(), e.ID())
				seen[v.ID()] = true
				assert.Equal(t, lane, v.Lane())
				assert.Equal(t, cell, v.Cell())
			}
		}
	}
}

func TestDawdle(t *testing.T) {
	w := newWorld(t, config.Driver{DawdleFactor: 1}, lineGraph(1, nil))
	v, _ := w.m.New(1, 11, w.route(1, 2))
	w.start(t)
	w.step(t)
	for i := 0; i < 4; i++ {
		w.step(t)
		// 加速到1后必定慢化回0
		assert.Equal(t, 0, v.V())
	}
	assert.Equal(t, 0, v.Cell())
}

func TestMandatoryLaneChange(t *testing.T) {
	// 路口2处只有车道1可以驶入边2
	w := newWorld(t, config.Driver{}, lineGraph(2, []input.Connector{
		{Node: 2, FromEdge: 1, FromLane: 1, ToEdge: 2, ToLane: 0},
	}))
	v, _ := w.m.New(1, 11, w.route(1, 2))
	assert.Equal(t, 1, v.spawnLane)

	// 人工放在车道0
	e := w.g.EdgeManager().Get(1)
	v.state = entity.Spawned
	v.edge = e
	v.lane, v.cell = 0, 2
	e.Put(v, 0, 2)
	assert.Equal(t, 1, v.chooseLane(v.NextEdge()))
	assert.Equal(t, 0, v.EntryLane())

	e.Put(&Vehicle{id: 9}, 1, 2)
	assert.Equal(t, 0, v.chooseLane(v.NextEdge()))
}

func TestOptionalLaneChange(t *testing.T) {
	w := newWorld(t, config.Driver{LaneChangeFactor: 1}, lineGraph(2, nil))
	v, _ := w.m.New(1, 11, w.route(1, 2))
	e := w.g.EdgeManager().Get(1)
	v.state = entity.Spawned
	v.edge = e
	v.lane, v.cell, v.v = 0, 2, 2
	e.Put(v, 0, 2)
	blocker := &Vehicle{id: 9}
	e.Put(blocker, 0, 3)
	assert.Equal(t, 1, v.chooseLane(v.NextEdge()))

	// 相邻车道间距更小时不变道
	e.Put(&Vehicle{id: 10}, 1, 3)
	e.Clear(0, 3)
	e.Put(blocker, 0, 4)
	assert.Equal(t, 0, v.chooseLane(v.NextEdge()))

	// 静止车辆不主动变道
	e.Clear(0, 4)
	e.Put(blocker, 0, 3)
	e.Clear(1, 3)
	v.v = 0
	assert.Equal(t, 0, v.chooseLane(v.NextEdge()))
}

func TestAngerWhenNotPermitted(t *testing.T) {
	w := newWorld(t, config.Driver{MaxAnger: 2}, lineGraph(1, nil))
	v, _ := w.m.New(1, 11, w.route(1, 2))
	e := w.g.EdgeManager().Get(1)
	v.state = entity.Spawned
	v.edge = e
	v.lane, v.cell, v.v = 0, 9, 1
	e.Put(v, 0, 9)
	// 未在路口2登记，不会得到许可
	for i := 0; i < 4; i++ {
		v.willMove()
		assert.True(t, v.plan.angry)
		assert.Equal(t, 0, v.plan.v)
		v.didMove()
	}
	assert.Equal(t, int32(2), v.Anger())
	assert.Equal(t, int64(4), v.TotalAnger())

	v.plan.angry = false
	v.didMove()
	assert.Equal(t, int32(1), v.Anger())
}

func TestPriorityCounterBounds(t *testing.T) {
	v := &Vehicle{id: 1}
	require.NoError(t, v.IncPriorityCounter())
	assert.Equal(t, int32(1), v.PriorityCounter())
	v.counter = math.MaxInt32
	assert.ErrorIs(t, v.IncPriorityCounter(), ErrPriorityCounterOverflow)
	v.counter = math.MinInt32
	assert.ErrorIs(t, v.DecPriorityCounter(), ErrPriorityCounterUnderflow)
	v.ResetPriorityCounter()
	assert.Equal(t, int32(0), v.PriorityCounter())
}

func TestNewRejectsBadInput(t *testing.T) {
	w := newWorld(t, config.Driver{}, lineGraph(1, nil))
	_, err := w.m.New(2, 1, w.route(1))
	require.NoError(t, err)
	_, err = w.m.New(2, 1, w.route(1))
	assert.Error(t, err)
	_, err = w.m.New(3, 1, route.New(w.g.NodeManager().Get(1), w.g.NodeManager().Get(2), nil, 0))
	assert.Error(t, err)
}

func TestResetRestoresInitialState(t *testing.T) {
	w := newWorld(t, config.Driver{DawdleFactor: 0.3}, lineGraph(1, nil))
	v, _ := w.m.New(1, 11, w.route(1, 2))
	w.start(t)
	trace := func() []entity.Position {
		res := []entity.Position{}
		for i := 0; i < 8; i++ {
			w.step(t)
			res = append(res, v.Position())
		}
		return res
	}
	first := trace()
	w.g.Reset()
	w.m.Reset()
	w.age = 0
	w.start(t)
	assert.Equal(t, first, trace())
}
