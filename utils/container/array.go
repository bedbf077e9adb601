package container

import (
	"sort"
	"sync"
)

// IIncrementalItem 支持增量更新的元素接口
// 功能：元素自己记录在数组中的位置，便于O(1)删除
type IIncrementalItem interface {
	comparable
	Index() int         // 获取元素的索引
	SetIndex(index int) // 设置元素的索引
}

// IncrementalItemBase 增量元素基类，可嵌入结构体快速实现索引管理
type IncrementalItemBase struct {
	index int // 元素在数组中的索引
}

// Index 获取元素的索引
func (b *IncrementalItemBase) Index() int {
	return b.index
}

// SetIndex 设置元素的索引
func (b *IncrementalItemBase) SetIndex(index int) {
	b.index = index
}

// IncrementalArray 增量数组，支持并发登记增删、在Prepare时统一生效
// 功能：各阶段并行产生的增删请求先写入缓冲区，Prepare时按less排序后应用
// 说明：缓冲区写入顺序取决于线程调度，排序后应用保证数组内容与顺序可复现
type IncrementalArray[T IIncrementalItem] struct {
	data        []T        // 主数据数组
	add         []T        // 待添加的元素列表
	remove      []T        // 待删除的元素列表
	addMutex    sync.Mutex // 添加操作的互斥锁
	removeMutex sync.Mutex // 删除操作的互斥锁

	less func(a, b T) bool // 缓冲区排序规则
}

// NewIncrementalArray 创建增量数组
// 参数：less-缓冲区元素的排序规则，通常按ID升序
func NewIncrementalArray[T IIncrementalItem](less func(a, b T) bool) *IncrementalArray[T] {
	return &IncrementalArray[T]{
		data:   make([]T, 0),
		add:    make([]T, 0),
		remove: make([]T, 0),
		less:   less,
	}
}

// Len 获取当前数组长度
func (a *IncrementalArray[T]) Len() int {
	return len(a.data)
}

// Data 获取当前数据（调用方不得修改）
func (a *IncrementalArray[T]) Data() []T {
	return a.data
}

// Add 增加元素（等到Prepare时才会真正增加）
func (a *IncrementalArray[T]) Add(value T) {
	a.addMutex.Lock()
	defer a.addMutex.Unlock()
	a.add = append(a.add, value)
}

// Remove 删除元素（等到Prepare时才会真正删除）
func (a *IncrementalArray[T]) Remove(value T) {
	a.removeMutex.Lock()
	defer a.removeMutex.Unlock()
	a.remove = append(a.remove, value)
}

// Clear 清空数组与缓冲区
func (a *IncrementalArray[T]) Clear() {
	a.data = a.data[:0]
	a.add = a.add[:0]
	a.remove = a.remove[:0]
}

// Prepare 执行增量操作
// 算法说明：
// 1. 校验待删除元素确实位于其记录的索引处，得到空洞列表（升序）
// 2. 按less排序待添加元素，依次填入空洞
// 3. 添加元素多于空洞：剩余元素追加到末尾
// 4. 空洞多于添加元素：从尾部取未被删除的元素填补位于新长度之内的空洞，再截断
func (a *IncrementalArray[T]) Prepare() {
	if len(a.add) == 0 && len(a.remove) == 0 {
		return
	}
	holes := make([]int, 0, len(a.remove))
	for _, x := range a.remove {
		ind := x.Index()
		if ind < 0 || ind >= len(a.data) || a.data[ind] != x {
			log.Panicf("remove item %v which is not in array", x)
		}
		holes = append(holes, ind)
	}
	sort.Ints(holes)
	sort.SliceStable(a.add, func(i, j int) bool { return a.less(a.add[i], a.add[j]) })

	i := 0
	for ; i < len(holes) && i < len(a.add); i++ {
		a.data[holes[i]] = a.add[i]
		a.data[holes[i]].SetIndex(holes[i])
	}
	if i < len(a.add) {
		for _, x := range a.add[i:] {
			x.SetIndex(len(a.data))
			a.data = append(a.data, x)
		}
	} else if i < len(holes) {
		holes = holes[i:]
		n := len(a.data) - len(holes)
		dead := make(map[int]bool, len(holes))
		for _, h := range holes {
			dead[h] = true
		}
		tail := len(a.data) - 1
		for _, h := range holes {
			if h >= n {
				continue
			}
			for dead[tail] {
				tail--
			}
			a.data[h] = a.data[tail]
			a.data[h].SetIndex(h)
			tail--
		}
		clear(a.data[n:])
		a.data = a.data[:n]
	}

	a.add = a.add[:0]
	a.remove = a.remove[:0]
}
