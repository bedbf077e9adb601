package container_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/cellsim/utils/container"
)

type testItem struct {
	container.IncrementalItemBase
	id int
}

func byID(a, b *testItem) bool { return a.id < b.id }

func ids(a *container.IncrementalArray[*testItem]) []int {
	out := make([]int, 0, a.Len())
	for i, x := range a.Data() {
		if x.Index() != i {
			panic("bad index")
		}
		out = append(out, x.id)
	}
	return out
}

func TestIncrementalArrayAddSorted(t *testing.T) {
	a := container.NewIncrementalArray(byID)
	items := make([]*testItem, 6)
	for i := range items {
		items[i] = &testItem{id: i}
	}
	// 乱序加入，Prepare后按id排序
	for _, i := range []int{3, 0, 5, 1, 4, 2} {
		a.Add(items[i])
	}
	assert.Equal(t, 0, a.Len())
	a.Prepare()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, ids(a))
}

func TestIncrementalArrayRemoveTail(t *testing.T) {
	a := container.NewIncrementalArray(byID)
	items := make([]*testItem, 5)
	for i := range items {
		items[i] = &testItem{id: i}
		a.Add(items[i])
	}
	a.Prepare()

	// 删除尾部区域内的元素不能被搬回数组
	a.Remove(items[3])
	a.Remove(items[1])
	a.Remove(items[4])
	a.Prepare()
	assert.ElementsMatch(t, []int{0, 2}, ids(a))

	// 空洞由新增元素按id顺序填补
	a.Remove(items[0])
	a.Add(&testItem{id: 9})
	a.Add(&testItem{id: 7})
	a.Prepare()
	assert.Equal(t, []int{7, 2, 9}, ids(a))
}

func TestIncrementalArrayRemoveUnknown(t *testing.T) {
	a := container.NewIncrementalArray(byID)
	x := &testItem{id: 1}
	a.Add(x)
	a.Prepare()
	a.Remove(&testItem{id: 2})
	defer func() {
		entry, ok := recover().(*logrus.Entry)
		require.True(t, ok)
		assert.Equal(t, "container", entry.Data["module"])
	}()
	a.Prepare()
}

func TestIncrementalArrayClear(t *testing.T) {
	a := container.NewIncrementalArray(byID)
	a.Add(&testItem{id: 1})
	a.Prepare()
	a.Add(&testItem{id: 2})
	a.Clear()
	a.Prepare()
	assert.Equal(t, 0, a.Len())
}

func TestPriorityQueueStable(t *testing.T) {
	q := container.NewPriorityQueue[string]()
	q.Push("b", 1)
	q.Push("a", 0)
	q.Push("c", 1)
	q.Heapify()
	q.HeapPush("d", 1)
	q.HeapPush("e", -1)
	first, p := q.First()
	assert.Equal(t, "e", first)
	assert.Equal(t, -1., p)

	got := make([]string, 0)
	for q.Len() > 0 {
		v, _ := q.HeapPop()
		got = append(got, v)
	}
	assert.Equal(t, []string{"e", "a", "b", "c", "d"}, got)

	q.HeapPush("x", 3)
	q.Clear()
	assert.Equal(t, 0, q.Len())
}
