package input

// Node 路口（图节点）
type Node struct {
	ID  int32   `yaml:"id" bson:"id"`
	Lon float64 `yaml:"lon" bson:"lon"`
	Lat float64 `yaml:"lat" bson:"lat"`
}

// Edge 有向道路段
type Edge struct {
	ID       int32 `yaml:"id" bson:"id"`
	From     int32 `yaml:"from" bson:"from"`
	To       int32 `yaml:"to" bson:"to"`
	Lanes    int   `yaml:"lanes" bson:"lanes"`
	MaxV     int   `yaml:"max_v" bson:"max_v"`                               // 限速（元胞/步）
	LaneMaxV []int `yaml:"lane_max_v,omitempty" bson:"lane_max_v,omitempty"` // 按车道覆盖限速
	Priority int32 `yaml:"priority" bson:"priority"`
	// 长度（米），为0时按几何计算
	Length float64 `yaml:"length,omitempty" bson:"length,omitempty"`
	// [[lon, lat], ...]，为空时取起点与终点的连线
	Geometry [][2]float64 `yaml:"geometry,omitempty" bson:"geometry,omitempty"`
}

// Connector 路口处的车道连接（转向限制）
// 某条驶入边一旦出现在Connector中，该边只允许Connector列出的转向
type Connector struct {
	Node     int32 `yaml:"node" bson:"node"`
	FromEdge int32 `yaml:"from_edge" bson:"from_edge"`
	FromLane int   `yaml:"from_lane" bson:"from_lane"`
	ToEdge   int32 `yaml:"to_edge" bson:"to_edge"`
	ToLane   int   `yaml:"to_lane" bson:"to_lane"`
}

// Graph 路网输入
type Graph struct {
	Nodes      []Node      `yaml:"nodes"`
	Edges      []Edge      `yaml:"edges"`
	Connectors []Connector `yaml:"connectors,omitempty"`
}

// ODEntry OD矩阵中的一项
type ODEntry struct {
	Origin      int32 `yaml:"origin" bson:"origin"`
	Destination int32 `yaml:"destination" bson:"destination"`
	Count       int   `yaml:"count" bson:"count"`
}
