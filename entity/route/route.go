package route

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/cellsim/entity"
)

// Route 路线：从origin到destination的有序边序列
// 说明：创建后不可修改；SpawnDelay为车辆生成前需要等待的步数
type Route struct {
	Origin      entity.INode
	Destination entity.INode
	Edges       []entity.IEdge
	SpawnDelay  int64
}

// New 创建路线
// 说明：负的SpawnDelay按0处理
func New(origin, destination entity.INode, edges []entity.IEdge, spawnDelay int64) *Route {
	return &Route{
		Origin:      origin,
		Destination: destination,
		Edges:       edges,
		SpawnDelay:  max(0, spawnDelay),
	}
}

// LengthMeters 路线总长度（米）
func (r *Route) LengthMeters() float64 {
	return lo.SumBy(r.Edges, func(e entity.IEdge) float64 { return e.LengthMeters() })
}

func (r *Route) String() string {
	ids := lo.Map(r.Edges, func(e entity.IEdge, _ int) string { return fmt.Sprint(e.ID()) })
	return fmt.Sprintf("Route{%d->%d: [%s], delay=%d}",
		r.Origin.ID(), r.Destination.ID(), strings.Join(ids, " "), r.SpawnDelay)
}
