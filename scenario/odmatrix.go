package scenario

import (
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/cellsim/utils/input"
)

// odKey OD对
type odKey struct {
	origin, destination int32
}

// ODPair OD矩阵中的非零项
type ODPair struct {
	Origin      int32
	Destination int32
	Count       int
}

// ODMatrix 稀疏OD矩阵：(起点Node, 终点Node) -> 出行数
type ODMatrix struct {
	data map[odKey]int
}

// NewODMatrix 创建空OD矩阵
func NewODMatrix() *ODMatrix {
	return &ODMatrix{data: make(map[odKey]int)}
}

// NewODMatrixFromEntries 由输入数据创建OD矩阵，同一OD对的多项累加
func NewODMatrixFromEntries(entries []input.ODEntry) *ODMatrix {
	m := NewODMatrix()
	for _, e := range entries {
		m.Add(e.Origin, e.Destination, e.Count)
	}
	return m
}

// Add 增加出行数，count<=0时忽略
func (m *ODMatrix) Add(origin, destination int32, count int) {
	if count <= 0 {
		return
	}
	m.data[odKey{origin, destination}] += count
}

// Get 获取OD对的出行数
func (m *ODMatrix) Get(origin, destination int32) int {
	return m.data[odKey{origin, destination}]
}

// Len 非零OD对数量
func (m *ODMatrix) Len() int {
	return len(m.data)
}

// Total 总出行数
func (m *ODMatrix) Total() int {
	return lo.Sum(lo.Values(m.data))
}

// Pairs 全部非零项，按(起点, 终点)升序
func (m *ODMatrix) Pairs() []ODPair {
	pairs := lo.MapToSlice(m.data, func(k odKey, count int) ODPair {
		return ODPair{Origin: k.origin, Destination: k.destination, Count: count}
	})
	slices.SortFunc(pairs, func(a, b ODPair) int {
		if a.Origin != b.Origin {
			return int(a.Origin) - int(b.Origin)
		}
		return int(a.Destination) - int(b.Destination)
	})
	return pairs
}

// Clear 清空
func (m *ODMatrix) Clear() {
	clear(m.data)
}

// clone 深拷贝，Prepare持有的矩阵不受调用方后续修改影响
func (m *ODMatrix) clone() *ODMatrix {
	return &ODMatrix{data: lo.Assign(m.data)}
}
