package node

import (
	"github.com/tsinghua-fib-lab/cellsim/entity"
)

// compare 冲突比较
// 功能：比较两辆登记在本路口的车辆的通行权
// 返回：>0表示v1优先，<0表示v2优先，0表示路径不冲突或平局
// 算法说明：
// 1. 均未生成：ID大者优先
// 2. 仅一辆已生成：已生成者优先
// 3. 均已生成且来自同一驶入边：更靠近路口者优先（元胞大、车道小、ID大）
// 4. 均已生成：按冲突序号判断路径是否交叉，不交叉返回0
// 5. 交叉时依次比较驶入边等级、驶出边等级（道路等级策略开启时）、右侧优先（策略开启时），最后掷硬币
// 6. 右侧优先开启时对向驶入无法分出左右，按平局返回0，不再掷硬币
// 说明：冲突序号缺失属于拓扑错误，直接panic
func (n *Node) compare(v1, v2 entity.IVehicle) int {
	s1 := v1.State() == entity.Spawned
	s2 := v2.State() == entity.Spawned
	switch {
	case !s1 && !s2:
		if v1.ID() > v2.ID() {
			return 1
		}
		return -1
	case s1 && !s2:
		return 1
	case !s1 && s2:
		return -1
	}
	e1, e2 := v1.Edge(), v2.Edge()
	if e1.ID() == e2.ID() {
		return compareOnSameEdge(v1, v2)
	}
	o1, d1 := n.mustIndices(v1)
	o2, d2 := n.mustIndices(v2)
	count := len(n.inIndex) + len(n.outIndex)
	if !crosses(o1, d1, o2, d2, count) {
		return 0
	}
	cfg := n.ctx.RuntimeConfig().C.Crossing
	if cfg.EdgePriority {
		if p1, p2 := e1.Priority(), e2.Priority(); p1 != p2 {
			return sign(int(p1) - int(p2))
		}
		if p1, p2 := v1.NextEdge().Priority(), v2.NextEdge().Priority(); p1 != p2 {
			return sign(int(p1) - int(p2))
		}
	}
	if cfg.PriorityToTheRight {
		a := mod(o2-o1, count)
		b := count - a
		if a < b {
			return 1
		}
		if a > b {
			return -1
		}
		return 0
	}
	return n.generator.Coin()
}

// mustIndices 车辆的驶入、驶出冲突序号
func (n *Node) mustIndices(v entity.IVehicle) (int, int) {
	o, ok := n.inIndex[v.Edge().ID()]
	if !ok {
		log.Panicf("%v: vehicle %d comes from edge %d without crossing index", n, v.ID(), v.Edge().ID())
	}
	next := v.NextEdge()
	if next == nil {
		log.Panicf("%v: vehicle %d has no next edge", n, v.ID())
	}
	d, ok := n.outIndex[next.ID()]
	if !ok {
		log.Panicf("%v: vehicle %d goes to edge %d without crossing index", n, v.ID(), next.ID())
	}
	return o, d
}

// compareOnSameEdge 同一驶入边上前车优先
func compareOnSameEdge(v1, v2 entity.IVehicle) int {
	if c1, c2 := v1.Cell(), v2.Cell(); c1 != c2 {
		return sign(c1 - c2)
	}
	if l1, l2 := v1.Lane(), v2.Lane(); l1 != l2 {
		return sign(l2 - l1)
	}
	return sign(int(v1.ID()) - int(v2.ID()))
}

// crosses 判断两条转向路径是否交叉
// 参数：(o1,d1)、(o2,d2)-两条路径的驶入、驶出序号，count-序号总数
// 算法说明：共享任一序号即交叉；否则以o1为0旋转，o2与d2恰有一个落在(0,d1)开区间内即交叉
func crosses(o1, d1, o2, d2, count int) bool {
	if o1 == o2 || o1 == d2 || d1 == o2 || d1 == d2 {
		return true
	}
	r1 := mod(d1-o1, count)
	inside := func(x int) bool {
		r := mod(x-o1, count)
		return r > 0 && r < r1
	}
	return inside(o2) != inside(d2)
}

func mod(a, m int) int {
	return ((a % m) + m) % m
}

func sign(x int) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
