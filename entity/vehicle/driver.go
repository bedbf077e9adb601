package vehicle

import (
	"github.com/tsinghua-fib-lab/cellsim/entity"
)

// willMove 决策阶段：只读取本步开始时的状态，结果写入plan
// 算法说明（Nagel-Schreckenberg）：
// 1. 变道：当前车道无法转入下一条边时强制向可转向车道变道；否则在受阻时以一定概率变到间距不更差的相邻车道
// 2. 加速：min(v+1, 车道限速)
// 3. 按间距刹车：只有位于最后一条边，或路口许可且转向合法时，才能把下一条边入口处的空元胞计入可行距离
// 4. 随机慢化：v>=1时以dawdleFactor的概率减1
// 5. 若驶出当前边，预留下一条边上的目标元胞
func (v *Vehicle) willMove() {
	e := v.edge
	next := v.NextEdge()
	p := plan{lane: v.lane}

	p.lane = v.chooseLane(next)

	desired := min(v.v+1, e.MaxV(p.lane))
	gap, toEnd := e.Gap(p.lane, v.cell)
	limit := gap
	if toEnd {
		switch {
		case next == nil:
			// 到达终点，驶出路网不受限制
			limit = desired
		default:
			node := e.Destination()
			entryLane, legal := node.EntryLane(e, p.lane, next)
			if legal && node.IsPermitted(v) {
				p.nextLane = entryLane
				limit = gap + next.FreeEntryCells(entryLane)
			} else if desired > gap {
				p.angry = true
			}
		}
	}
	vel := min(desired, limit)
	if vel >= 1 && v.generator.PTrue(v.dawdleFactor) {
		vel--
	}
	p.v = vel
	if toEnd && vel > gap {
		p.leave = true
		if next != nil {
			p.nextCell = vel - gap - 1
			next.Reserve(p.nextLane, p.nextCell)
		}
	}
	v.plan = p
}

// chooseLane 变道决策
// 返回：目标车道（可能等于当前车道）
func (v *Vehicle) chooseLane(next entity.IEdge) int {
	e := v.edge
	var legal []int
	if next != nil {
		legal = e.Destination().LanesToward(e, next)
	}
	isLegal := func(lane int) bool {
		if next == nil {
			return true
		}
		for _, l := range legal {
			if l == lane {
				return true
			}
		}
		return false
	}
	free := func(lane int) bool {
		return lane >= 0 && lane < e.LaneCount() && e.At(lane, v.cell) == nil
	}

	if !isLegal(v.lane) {
		// 强制变道：向最近的可转向车道移动一条
		target, ok := nearestLane(legal, v.lane)
		if !ok {
			return v.lane
		}
		step := entity.RIGHT
		if target < v.lane {
			step = entity.LEFT
		}
		if free(v.lane + step) {
			return v.lane + step
		}
		return v.lane
	}

	if e.LaneCount() == 1 || v.v < 1 {
		return v.lane
	}
	gap, _ := e.Gap(v.lane, v.cell)
	if gap >= min(v.v+1, e.MaxV(v.lane)) {
		return v.lane
	}
	if !v.generator.PTrue(v.laneChangeFactor) {
		return v.lane
	}
	best, bestGap := v.lane, gap
	for _, lane := range []int{v.lane + entity.LEFT, v.lane + entity.RIGHT} {
		if !free(lane) || !isLegal(lane) {
			continue
		}
		g, _ := e.Gap(lane, v.cell)
		if g < gap {
			continue
		}
		// 间距更大者优先，相同时取编号小者
		if best == v.lane || g > bestGap {
			best, bestGap = lane, g
		}
	}
	return best
}
