package vehicle

import (
	"github.com/tsinghua-fib-lab/cellsim/entity"
)

// move 执行阶段：由当前边的工作线程按前车优先的顺序调用
// 功能：执行变道，按实际空元胞截断速度并前进；驶出当前边时注销路口、登记到下一条边的到达缓冲
// 返回：车辆是否在本步消失
func (v *Vehicle) move() (despawned bool) {
	e := v.edge
	p := v.plan

	changed := true
	if p.lane != v.lane {
		// 目标元胞仍为空，且不位于入口预留区域之内
		if e.At(p.lane, v.cell) == nil && e.Reserved(p.lane) < v.cell {
			e.Clear(v.lane, v.cell)
			v.lane = p.lane
			e.Put(v, v.lane, v.cell)
		} else {
			changed = false
		}
	}

	gap, toEnd := e.Gap(v.lane, v.cell)
	if p.leave && changed && toEnd {
		e.Clear(v.lane, v.cell)
		node := e.Destination()
		v.v = p.v
		next := v.NextEdge()
		if next == nil {
			node.Unregister(v)
			v.despawn()
			return true
		}
		node.Unregister(v)
		next.PostArrival(v, p.nextLane, p.nextCell)
		v.cursor++
		v.edge = next
		v.lane = p.nextLane
		v.cell = p.nextCell
		if v.NextEdge() != nil {
			next.Destination().Register(v)
		}
		return false
	}

	vel := min(p.v, gap)
	if vel > 0 {
		e.Clear(v.lane, v.cell)
		v.cell += vel
		e.Put(v, v.lane, v.cell)
	}
	v.v = vel
	return false
}

// despawn 到达终点
func (v *Vehicle) despawn() {
	v.state = entity.Despawned
	v.edge = nil
	v.lane = 0
	v.cell = 0
}

// didMove 统计阶段：更新愤怒值、行驶时间与行驶距离
func (v *Vehicle) didMove() {
	if v.plan.angry {
		v.becomeMoreAngry()
	} else {
		v.calmDown()
	}
	v.travelTime++
	v.distance += int64(v.v)
}

func (v *Vehicle) becomeMoreAngry() {
	if v.anger < v.ctx.RuntimeConfig().C.Driver.MaxAnger {
		v.anger++
	}
	v.totalAnger++
}

func (v *Vehicle) calmDown() {
	if v.anger > 0 {
		v.anger--
	}
}

// trySpawn 尝试进入路网
// 条件：起点路口许可，且第一条边生成车道的入口元胞为空
func (v *Vehicle) trySpawn() bool {
	first := v.route.Edges[0]
	origin := v.route.Origin
	if !origin.IsPermitted(v) || !first.IsEntryFree(v.spawnLane) {
		return false
	}
	v.state = entity.Spawned
	v.edge = first
	v.cursor = 0
	v.lane = v.spawnLane
	v.cell = 0
	v.v = 0
	v.plan = plan{lane: v.lane}
	first.Put(v, v.lane, v.cell)
	origin.Unregister(v)
	if v.NextEdge() != nil {
		first.Destination().Register(v)
	}
	return true
}

// reset 恢复到创建时的状态
func (v *Vehicle) reset() {
	v.state = entity.NotSpawned
	v.edge = nil
	v.cursor = 0
	v.lane, v.cell, v.v = 0, 0, 0
	v.anger, v.totalAnger = 0, 0
	v.travelTime, v.distance = 0, 0
	v.plan = plan{}
	v.ResetPriorityCounter()
	v.generator.Reset()
}
