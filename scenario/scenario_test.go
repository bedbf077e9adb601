package scenario_test

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/cellsim/clock"
	"github.com/tsinghua-fib-lab/cellsim/entity"
	"github.com/tsinghua-fib-lab/cellsim/entity/graph"
	"github.com/tsinghua-fib-lab/cellsim/entity/route"
	"github.com/tsinghua-fib-lab/cellsim/entity/vehicle"
	"github.com/tsinghua-fib-lab/cellsim/scenario"
	"github.com/tsinghua-fib-lab/cellsim/utils/config"
	"github.com/tsinghua-fib-lab/cellsim/utils/input"
	"github.com/tsinghua-fib-lab/cellsim/utils/workerpool"
)

type testContext struct {
	clock *clock.Clock
	rc    *config.RuntimeConfig
}

func (c *testContext) Clock() *clock.Clock                  { return c.clock }
func (c *testContext) RuntimeConfig() *config.RuntimeConfig { return c.rc }

func newScenario(t *testing.T, threads int, sc config.Scenario) *scenario.Scenario {
	rc := config.NewRuntimeConfig(config.Config{
		Control: config.Control{
			Seed:     42,
			Threads:  threads,
			Crossing: config.Crossing{DrivingOnTheRight: true, PriorityToTheRight: true},
			Scenario: sc,
		},
	})
	ctx := &testContext{clock: clock.New(rc.C.Step), rc: rc}
	g, err := graph.New(ctx, input.GridGraph(config.Grid{Rows: 3, Cols: 3, Spacing: 100}))
	require.NoError(t, err)
	return scenario.New(ctx, g, route.NewDijkstra(g), workerpool.New(threads))
}

type vehicleSummary struct {
	ID          int32
	Seed        uint64
	Origin      int32
	Destination int32
	Edges       []int32
	Delay       int64
}

func summarize(vs []*vehicle.Vehicle) []vehicleSummary {
	return lo.Map(vs, func(v *vehicle.Vehicle, _ int) vehicleSummary {
		r := v.Route()
		return vehicleSummary{
			ID:          v.ID(),
			Seed:        v.Seed(),
			Origin:      r.Origin.ID(),
			Destination: r.Destination.ID(),
			Edges:       lo.Map(r.Edges, func(e entity.IEdge, _ int) int32 { return e.ID() }),
			Delay:       r.SpawnDelay,
		}
	})
}

func TestPrepareIndependentOfThreads(t *testing.T) {
	sc := config.Scenario{MaxVehicleCount: 60}
	var want []vehicleSummary
	for _, threads := range []int{1, 2, 4, 7} {
		s := newScenario(t, threads, sc)
		assert.False(t, s.IsPrepared())
		require.NoError(t, s.Prepare(context.Background(), nil))
		assert.True(t, s.IsPrepared())
		got := summarize(s.Vehicles())
		require.NotEmpty(t, got)
		if want == nil {
			want = got
			continue
		}
		assert.Equal(t, want, got, "threads=%d", threads)
	}
	// ID从1开始连续
	for i, v := range want {
		assert.Equal(t, int32(i+1), v.ID)
	}
}

func TestPrepareTwiceIsReproducible(t *testing.T) {
	s := newScenario(t, 3, config.Scenario{MaxVehicleCount: 40})
	require.NoError(t, s.Prepare(context.Background(), nil))
	first := summarize(s.Vehicles())
	firstOD := s.OD().Pairs()
	require.NoError(t, s.Prepare(context.Background(), nil))
	assert.Equal(t, first, summarize(s.Vehicles()))
	assert.Equal(t, firstOD, s.OD().Pairs())
}

func TestPrepareFieldErrors(t *testing.T) {
	s := newScenario(t, 1, config.Scenario{
		MaxVehicleCount: 10,
		Origin:          config.Field{Nodes: []int32{999}},
	})
	assert.ErrorIs(t, s.Prepare(context.Background(), nil), scenario.ErrEmptyOriginField)
	assert.False(t, s.IsPrepared())

	s = newScenario(t, 1, config.Scenario{
		MaxVehicleCount: 10,
		Destination: config.Field{Polygon: [][2]float64{
			{0, 0}, {1, 0}, {1, 1}, {0, 1},
		}},
	})
	assert.ErrorIs(t, s.Prepare(context.Background(), nil), scenario.ErrEmptyDestinationField)
}

func TestPrepareEmptyOD(t *testing.T) {
	s := newScenario(t, 1, config.Scenario{})
	assert.ErrorIs(t, s.Prepare(context.Background(), scenario.NewODMatrix()), scenario.ErrEmptyODMatrix)
	assert.ErrorIs(t, s.Prepare(context.Background(), nil), scenario.ErrEmptyODMatrix)
}

func TestPrepareWithODMatrix(t *testing.T) {
	s := newScenario(t, 2, config.Scenario{})
	od := scenario.NewODMatrix()
	od.Add(1, 9, 3)
	od.Add(5, 5, 2) // 起终点相同，无路线
	require.NoError(t, s.Prepare(context.Background(), od))

	vs := s.Vehicles()
	require.Len(t, vs, 3)
	for i, v := range vs {
		assert.Equal(t, int32(i+1), v.ID())
		assert.Equal(t, entity.NotSpawned, v.State())
		assert.Len(t, v.Route().Edges, 4)
		assert.Equal(t, int32(1), v.Route().Origin.ID())
		assert.Equal(t, int32(9), v.Route().Destination.ID())
	}
	// 调用方之后修改矩阵不影响场景
	od.Clear()
	assert.Equal(t, 3, s.OD().Get(1, 9))

	// 延迟为0的车辆已在起点登记，且只有一辆获得许可
	origin := s.Graph().NodeManager().Get(1)
	assert.Equal(t, []int32{1, 2, 3}, origin.Registered())
	assert.Equal(t, []int32{3}, origin.Permitted())
}

func TestPrepareUnknownNode(t *testing.T) {
	s := newScenario(t, 1, config.Scenario{})
	od := scenario.NewODMatrix()
	od.Add(1, 100, 1)
	assert.Error(t, s.Prepare(context.Background(), od))
	assert.False(t, s.IsPrepared())
}

func TestPrepareExplicitRoutes(t *testing.T) {
	s := newScenario(t, 2, config.Scenario{
		Routes: []config.RouteSpec{
			{Origin: 1, Destination: 3, SpawnDelay: 5, Count: 2},
			{Origin: 3, Destination: 1},
		},
	})
	require.NoError(t, s.Prepare(context.Background(), nil))
	got := summarize(s.Vehicles())
	require.Len(t, got, 3)
	assert.Equal(t, []int32{1, 3}, got[0].Edges)
	assert.Equal(t, int64(5), got[1].Delay)
	assert.Equal(t, []int32{4, 2}, got[2].Edges)
	assert.Equal(t, int64(0), got[2].Delay)

	// 只有延迟为0的车辆已登记
	assert.Empty(t, s.Graph().NodeManager().Get(1).Registered())
	assert.Equal(t, []int32{3}, s.Graph().NodeManager().Get(3).Registered())
	notSpawned, spawned, despawned := s.VehicleManager().Counts()
	assert.Equal(t, [3]int{3, 0, 0}, [3]int{notSpawned, spawned, despawned})
}

func TestPrepareMaxVehicleCount(t *testing.T) {
	s := newScenario(t, 1, config.Scenario{
		MaxVehicleCount: 3,
		Routes:          []config.RouteSpec{{Origin: 1, Destination: 9, Count: 5}},
	})
	require.NoError(t, s.Prepare(context.Background(), nil))
	vs := s.Vehicles()
	require.Len(t, vs, 3)
	for _, v := range vs {
		assert.Equal(t, int32(9), v.Route().Destination.ID())
	}
}

func TestPrepareCanceled(t *testing.T) {
	s := newScenario(t, 2, config.Scenario{MaxVehicleCount: 10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Prepare(ctx, nil), context.Canceled)
	assert.False(t, s.IsPrepared())
}
