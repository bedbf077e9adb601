package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/cellsim/entity"
	"github.com/tsinghua-fib-lab/cellsim/entity/vehicle"
	"github.com/tsinghua-fib-lab/cellsim/scenario"
	"github.com/tsinghua-fib-lab/cellsim/task"
	"github.com/tsinghua-fib-lab/cellsim/utils/config"
	"github.com/tsinghua-fib-lab/cellsim/utils/input"
)

func newTask(t *testing.T, c config.Config, g input.Graph) *task.Context {
	ctx, err := task.NewContext(c, g)
	require.NoError(t, err)
	require.NoError(t, ctx.Prepare(context.Background(), nil))
	return ctx
}

func gridConfig(threads int) config.Config {
	return config.Config{
		Control: config.Control{
			Seed:    2024,
			Threads: threads,
			Crossing: config.Crossing{
				EdgePriority:          true,
				PriorityToTheRight:    true,
				FriendlyStandingInJam: true,
				DrivingOnTheRight:     true,
			},
			Driver:   config.Driver{DawdleFactor: 0.25, LaneChangeFactor: 0.5, MaxAnger: 10},
			Scenario: config.Scenario{MaxVehicleCount: 120},
		},
	}
}

func gridGraph() input.Graph {
	return input.GridGraph(config.Grid{Rows: 4, Cols: 4, Spacing: 60, Lanes: 2, MaxV: 3})
}

// assertExclusive 每个元胞至多一辆车，且车辆记录的位置与元胞一致
func assertExclusive(t *testing.T, ctx *task.Context) {
	seen := make(map[int32]entity.Position)
	for _, e := range ctx.Graph().Edges() {
		for lane := 0; lane < e.LaneCount(); lane++ {
			for cell := 0; cell < e.Length(); cell++ {
				v := e.At(lane, cell)
				if v == nil {
					continue
				}
				pos := entity.Position{Edge: e.ID(), Lane: lane, Cell: cell}
				if prev, ok := seen[v.ID()]; ok {
					t.Fatalf("vehicle %d at %v and %v", v.ID(), prev, pos)
				}
				seen[v.ID()] = pos
				require.Equal(t, e, v.Edge())
				require.Equal(t, lane, v.Lane())
				require.Equal(t, cell, v.Cell())
			}
		}
	}
	_, spawned, _ := ctx.VehicleManager().Counts()
	require.Len(t, seen, spawned)
}

type frame struct {
	NotSpawned, Spawned, Despawned int
	Vehicles                       []vehicle.VehicleResponse
}

func record(t *testing.T, ctx *task.Context, steps int) []frame {
	frames := make([]frame, 0, steps)
	for i := 0; i < steps; i++ {
		require.NoError(t, ctx.Step())
		assertExclusive(t, ctx)
		s := ctx.Snapshot()
		frames = append(frames, frame{s.NotSpawned, s.Spawned, s.Despawned, s.Vehicles})
	}
	return frames
}

func TestDeterministicAcrossThreads(t *testing.T) {
	var want []frame
	for _, threads := range []int{1, 2, 3, 8} {
		ctx := newTask(t, gridConfig(threads), gridGraph())
		got := record(t, ctx, 150)
		assert.Equal(t, uint64(150), ctx.Age())
		if want == nil {
			want = got
			continue
		}
		require.Equal(t, want, got, "threads=%d", threads)
	}
	last := want[len(want)-1]
	assert.Positive(t, last.Despawned, "some vehicles should arrive")
}

func TestPrepareResetsRun(t *testing.T) {
	ctx := newTask(t, gridConfig(4), gridGraph())
	first := record(t, ctx, 60)
	require.NoError(t, ctx.Prepare(context.Background(), nil))
	assert.Equal(t, uint64(0), ctx.Age())
	assert.Equal(t, first, record(t, ctx, 60))
}

func TestStepBeforePrepare(t *testing.T) {
	ctx, err := task.NewContext(gridConfig(1), gridGraph())
	require.NoError(t, err)
	assert.ErrorIs(t, ctx.Step(), scenario.ErrNotPrepared)
	assert.ErrorIs(t, ctx.Run(context.Background(), 0), scenario.ErrNotPrepared)
}

func plusConfig(crossing config.Crossing, routes ...config.RouteSpec) config.Config {
	crossing.DrivingOnTheRight = true
	return config.Config{
		Control: config.Control{
			Seed:     7,
			Threads:  2,
			Crossing: crossing,
			Scenario: config.Scenario{Routes: routes},
		},
	}
}

// crossingSteps 记录每辆车驶入第二条边的步数，同时检查路口1的许可集合大小
func crossingSteps(t *testing.T, ctx *task.Context, steps, maxPermitted int) map[int32]uint64 {
	res := make(map[int32]uint64)
	centre := ctx.Graph().NodeManager().Get(1)
	for i := 0; i < steps; i++ {
		require.NoError(t, ctx.Step())
		assert.LessOrEqual(t, len(centre.Permitted()), maxPermitted, "step %d", ctx.Age())
		for _, v := range ctx.Scenario().Vehicles() {
			if _, ok := res[v.ID()]; ok {
				continue
			}
			if v.State() == entity.Despawned || (v.Edge() != nil && v.Edge().ID() == v.Route().Edges[1].ID()) {
				res[v.ID()] = ctx.Age()
			}
		}
	}
	return res
}

func TestPlusPriorityToTheRight(t *testing.T) {
	// 车辆1由南向北，车辆2由西向东，同时到达路口
	ctx := newTask(t, plusConfig(
		config.Crossing{PriorityToTheRight: true},
		config.RouteSpec{Origin: 4, Destination: 2},
		config.RouteSpec{Origin: 5, Destination: 3},
	), input.PlusGraph(150, 1, 3))
	vs := ctx.Scenario().Vehicles()
	require.Len(t, vs, 2)
	assert.Equal(t, []int32{7, 1}, []int32{vs[0].Route().Edges[0].ID(), vs[0].Route().Edges[1].ID()})

	crossed := crossingSteps(t, ctx, 30, 1)
	require.Len(t, crossed, 2)
	assert.Less(t, crossed[1], crossed[2])
	assert.Equal(t, int64(0), vs[0].TotalAnger())
	assert.Positive(t, vs[1].TotalAnger())

	for i := 0; i < 20; i++ {
		require.NoError(t, ctx.Step())
	}
	for _, v := range vs {
		assert.Equal(t, entity.Despawned, v.State())
	}
}

func TestPlusOnlyOneVehicle(t *testing.T) {
	// 南北对向直行，路径不冲突
	routes := []config.RouteSpec{{Origin: 2, Destination: 4}, {Origin: 4, Destination: 2}}

	ctx := newTask(t, plusConfig(config.Crossing{PriorityToTheRight: true}, routes...), input.PlusGraph(150, 1, 3))
	crossed := crossingSteps(t, ctx, 30, 2)
	require.Len(t, crossed, 2)
	assert.Equal(t, crossed[1], crossed[2])

	ctx = newTask(t, plusConfig(config.Crossing{PriorityToTheRight: true, OnlyOneVehicle: true}, routes...), input.PlusGraph(150, 1, 3))
	crossed = crossingSteps(t, ctx, 30, 1)
	require.Len(t, crossed, 2)
	assert.NotEqual(t, crossed[1], crossed[2])
}

func TestRunUntilEnd(t *testing.T) {
	c := gridConfig(2)
	c.Control.Step.Total = 12
	ctx := newTask(t, c, gridGraph())
	ages := []uint64{}
	ctx.OnStep(func(age uint64) { ages = append(ages, age) })
	require.NoError(t, ctx.Run(context.Background(), 0))
	assert.Equal(t, uint64(12), ctx.Age())
	assert.Len(t, ages, 12)
	assert.Equal(t, uint64(1), ages[0])
	assert.Equal(t, uint64(12), ages[11])
	assert.InDelta(t, 12.0, ctx.Clock().T, 1e-9)
}

func TestCancel(t *testing.T) {
	ctx := newTask(t, gridConfig(2), gridGraph())
	ctx.OnStep(func(age uint64) {
		if age == 5 {
			ctx.Cancel()
		}
	})
	require.NoError(t, ctx.Run(context.Background(), 0))
	assert.Equal(t, uint64(5), ctx.Age())
}

func TestRunContextCanceled(t *testing.T) {
	ctx := newTask(t, gridConfig(1), gridGraph())
	c, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, ctx.Run(c, 10*time.Millisecond))
	assert.Less(t, ctx.Age(), uint64(100))
}
