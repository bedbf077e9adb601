package utils

import "github.com/samber/lo"

// Find 按ID批量查找
// 功能：ids为空时返回全部数据；不存在的ID按请求顺序记入失败列表
// 参数：dataMap-ID到数据的映射，all-全部数据（按ID升序），ids-请求的ID
// 返回：找到的数据与失败ID，两者均不为nil
func Find[T any](dataMap map[int32]T, all []T, ids []int32) ([]T, []int32) {
	if len(ids) == 0 {
		return all, []int32{}
	}
	found := make([]T, 0, len(ids))
	failed := lo.Filter(ids, func(id int32, _ int) bool {
		d, ok := dataMap[id]
		if ok {
			found = append(found, d)
		}
		return !ok
	})
	return found, failed
}
