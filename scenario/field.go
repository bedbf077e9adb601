package scenario

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/cellsim/entity"
	"github.com/tsinghua-fib-lab/cellsim/utils/config"
)

// fieldNodes 区域内的候选Node
// 功能：从最大强连通分量中筛选位于多边形内或在节点列表中的Node
// 说明：多边形与节点列表同时为空时返回整个强连通分量；结果按ID升序
func fieldNodes(core []entity.INode, f config.Field) []entity.INode {
	if len(f.Polygon) == 0 && len(f.Nodes) == 0 {
		return core
	}
	ids := lo.SliceToMap(f.Nodes, func(id int32) (int32, struct{}) { return id, struct{}{} })
	var polygon orb.Polygon
	if len(f.Polygon) > 0 {
		ring := lo.Map(f.Polygon, func(p [2]float64, _ int) orb.Point { return orb.Point(p) })
		if !ring[0].Equal(ring[len(ring)-1]) {
			ring = append(ring, ring[0])
		}
		polygon = orb.Polygon{orb.Ring(ring)}
	}
	return lo.Filter(core, func(n entity.INode, _ int) bool {
		if _, ok := ids[n.ID()]; ok {
			return true
		}
		return polygon != nil && planar.PolygonContains(polygon, n.Point())
	})
}
