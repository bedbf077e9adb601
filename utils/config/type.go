package config

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 功能：定义数据输入路径的配置结构，支持文件与MongoDB两种数据源
// 说明：File优先；否则从MongoDB的DB.Col读取，并支持本地YAML缓存
type InputPath struct {
	DB        string `yaml:"db,omitempty"`         // 数据库名
	Col       string `yaml:"col,omitempty"`        // 集合名
	Cache     string `yaml:"cache,omitempty"`      // 缓存文件名，为空则采用默认路径{db}.{col}.yaml
	OnlyCache bool   `yaml:"only_cache,omitempty"` // 只从缓存中获取
	File      string `yaml:"file,omitempty"`       // 文件路径（优先级高于MongoDB）
}

// GetDb 获取数据库名
func (p InputPath) GetDb() string {
	return p.DB
}

// GetColl 获取集合名
func (p InputPath) GetColl() string {
	return p.Col
}

// GetCachePath 获取缓存文件路径
// 功能：返回缓存文件名，未指定时使用默认命名规则{数据库名}.{集合名}.yaml
func (p InputPath) GetCachePath() string {
	if p.Cache != "" {
		return p.Cache
	}
	return p.DB + "." + p.Col + ".yaml"
}

// Grid 合成网格路网
type Grid struct {
	Rows    int     `yaml:"rows"`
	Cols    int     `yaml:"cols"`
	Spacing float64 `yaml:"spacing"`         // 相邻路口间距（米）
	Lanes   int     `yaml:"lanes,omitempty"` // 每条边的车道数，0视为1
	MaxV    int     `yaml:"max_v,omitempty"` // 限速（元胞/步），0视为5
}

// Input 指定模拟器所有输入数据的配置项
type Input struct {
	URI   string     `yaml:"uri,omitempty"`  // MongoDB连接字符串
	Graph InputPath  `yaml:"graph"`          // 路网
	Grid  *Grid      `yaml:"grid,omitempty"` // 合成网格路网（graph未指定来源时使用）
	OD    *InputPath `yaml:"od,omitempty"`   // OD矩阵（为空则由origin/destination区域生成）
}

// ControlStep 指定模拟器模拟步数与间隔的配置项
type ControlStep struct {
	Total    uint64  `yaml:"total"`              // 总步数，0表示不限
	Interval int     `yaml:"interval,omitempty"` // 两步之间的真实时间间隔（毫秒），0表示尽快运行
	DT       float64 `yaml:"dt,omitempty"`       // 每步对应的模拟时间（秒）
}

// Crossing 路口通行规则开关
type Crossing struct {
	EdgePriority          bool `yaml:"edge_priority"`            // 道路等级优先
	PriorityToTheRight    bool `yaml:"priority_to_the_right"`    // 右侧优先（靠左行驶时为左侧优先）
	OnlyOneVehicle        bool `yaml:"only_one_vehicle"`         // 每步每个路口只允许一辆车通过
	FriendlyStandingInJam bool `yaml:"friendly_standing_in_jam"` // 下游无空位的车辆不参与路权竞争
	DrivingOnTheRight     bool `yaml:"driving_on_the_right"`     // 靠右行驶
}

// Driver 驾驶员参数
type Driver struct {
	DawdleFactor     float64 `yaml:"dawdle_factor"`       // 随机减速概率
	LaneChangeFactor float64 `yaml:"lane_change_factor"`  // 变道概率
	MaxAnger         int32   `yaml:"max_anger,omitempty"` // 愤怒值上限，0表示不限
}

// Field 起点/终点区域，polygon与nodes同时为空时表示整个路网
type Field struct {
	Polygon [][2]float64 `yaml:"polygon,omitempty"` // [lon, lat]
	Nodes   []int32      `yaml:"nodes,omitempty"`
}

// RouteSpec 显式指定的出行
type RouteSpec struct {
	Origin      int32 `yaml:"origin"`
	Destination int32 `yaml:"destination"`
	SpawnDelay  int64 `yaml:"spawn_delay,omitempty"` // 生成延迟（步）
	Count       int   `yaml:"count,omitempty"`       // 车辆数，0视为1
}

// Scenario 场景配置
type Scenario struct {
	MaxVehicleCount int         `yaml:"max_vehicle_count"`
	Origin          Field       `yaml:"origin,omitempty"`
	Destination     Field       `yaml:"destination,omitempty"`
	Routes          []RouteSpec `yaml:"routes,omitempty"`
}

// Control 模拟器控制配置
// 功能：定义仿真系统的核心控制参数
type Control struct {
	Step       ControlStep `yaml:"step"`
	Seed       uint64      `yaml:"seed"`
	Threads    int         `yaml:"threads,omitempty"`
	CellLength float64     `yaml:"cell_length,omitempty"` // 元胞长度（米）
	Crossing   Crossing    `yaml:"crossing"`
	Driver     Driver      `yaml:"driver"`
	Scenario   Scenario    `yaml:"scenario"`
}

// Server HTTP服务配置
type Server struct {
	Addr string `yaml:"addr"`
}

// Config YAML配置文件的根结构
type Config struct {
	Input   Input   `yaml:"input"`            // 输入
	Control Control `yaml:"control"`          // 模拟过程控制
	Server  *Server `yaml:"server,omitempty"` // 状态查询服务，为空则不启动
}
