package input

import (
	"math"

	"github.com/tsinghua-fib-lab/cellsim/utils/config"
)

const (
	originLon    = 116.3
	originLat    = 39.9
	metersPerDeg = 111320.
	defaultGridV = 5
)

// offset 以(originLon, originLat)为原点，按米偏移得到经纬度
func offset(east, north float64) (float64, float64) {
	lat := originLat + north/metersPerDeg
	lon := originLon + east/(metersPerDeg*math.Cos(originLat*math.Pi/180))
	return lon, lat
}

// GridGraph 生成rows×cols的双向网格路网
// 功能：路口ID为r*cols+c+1，边ID从1开始按生成顺序递增
// 说明：先生成横向边再生成纵向边，每对相邻路口生成两条方向相反的边
func GridGraph(g config.Grid) Graph {
	lanes := max(1, g.Lanes)
	maxV := g.MaxV
	if maxV <= 0 {
		maxV = defaultGridV
	}
	res := Graph{
		Nodes: make([]Node, 0, g.Rows*g.Cols),
		Edges: make([]Edge, 0),
	}
	id := func(r, c int) int32 {
		return int32(r*g.Cols + c + 1)
	}
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			lon, lat := offset(float64(c)*g.Spacing, float64(r)*g.Spacing)
			res.Nodes = append(res.Nodes, Node{ID: id(r, c), Lon: lon, Lat: lat})
		}
	}
	edgeID := int32(1)
	link := func(a, b int32) {
		res.Edges = append(res.Edges,
			Edge{ID: edgeID, From: a, To: b, Lanes: lanes, MaxV: maxV, Priority: 1},
			Edge{ID: edgeID + 1, From: b, To: a, Lanes: lanes, MaxV: maxV, Priority: 1},
		)
		edgeID += 2
	}
	for r := 0; r < g.Rows; r++ {
		for c := 0; c+1 < g.Cols; c++ {
			link(id(r, c), id(r, c+1))
		}
	}
	for c := 0; c < g.Cols; c++ {
		for r := 0; r+1 < g.Rows; r++ {
			link(id(r, c), id(r+1, c))
		}
	}
	return res
}

// PlusGraph 生成四臂十字路口
// 功能：中心路口1，北、东、南、西端点分别为2、3、4、5；
// 驶出中心的边1..4、驶入中心的边5..8均按北东南西排列
func PlusGraph(armMeters float64, lanes, maxV int) Graph {
	res := Graph{
		Nodes: []Node{{ID: 1, Lon: originLon, Lat: originLat}},
		Edges: make([]Edge, 0, 8),
	}
	dirs := [][2]float64{{0, 1}, {1, 0}, {0, -1}, {-1, 0}}
	for i, d := range dirs {
		lon, lat := offset(d[0]*armMeters, d[1]*armMeters)
		res.Nodes = append(res.Nodes, Node{ID: int32(i + 2), Lon: lon, Lat: lat})
	}
	for i := range dirs {
		res.Edges = append(res.Edges, Edge{ID: int32(i + 1), From: 1, To: int32(i + 2), Lanes: lanes, MaxV: maxV, Priority: 1})
	}
	for i := range dirs {
		res.Edges = append(res.Edges, Edge{ID: int32(i + 5), From: int32(i + 2), To: 1, Lanes: lanes, MaxV: maxV, Priority: 1})
	}
	return res
}
