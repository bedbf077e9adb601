package input

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tsinghua-fib-lab/cellsim/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/yaml.v2"
)

// ErrNoGraphSource 未配置路网来源
var ErrNoGraphSource = errors.New("no graph source: set input.graph.file, input.graph.db/col or input.grid")

// Input 输入数据
// 功能：存储仿真所需的所有输入数据
type Input struct {
	Graph Graph
	OD    []ODEntry // 未配置OD来源时为nil
}

// document MongoDB中路网集合的一条记录
type document struct {
	Class string   `bson:"class"`
	Data  bson.Raw `bson:"data"`
}

// Init 下载数据
// 功能：根据配置加载路网与OD矩阵
// 参数：c-配置对象，cacheDir-缓存目录（为空则禁用缓存）
// 返回：输入数据；来源缺失、读取或解析失败时返回error
// 算法说明：
// 1. 路网来源优先级：文件 > MongoDB（带本地YAML缓存） > 合成网格
// 2. OD来源优先级：文件 > MongoDB（带本地YAML缓存）
// 3. 只有需要访问数据库时才建立连接
func Init(c config.Config, cacheDir string) (*Input, error) {
	if !cacheEnabled(cacheDir) {
		cacheDir = ""
	}
	ctx := context.Background()
	l := &loader{uri: c.Input.URI, cacheDir: cacheDir}
	defer l.close(ctx)

	res := &Input{}
	g := c.Input.Graph
	switch {
	case g.File != "":
		graph, err := LoadGraphFile(g.File)
		if err != nil {
			return nil, err
		}
		res.Graph = graph
	case g.DB != "" && g.Col != "":
		graph, err := loadWithCache(l.cacheDir, g, func() (Graph, error) {
			return l.downloadGraph(ctx, g)
		})
		if err != nil {
			return nil, err
		}
		res.Graph = graph
	case c.Input.Grid != nil:
		res.Graph = GridGraph(*c.Input.Grid)
	default:
		return nil, ErrNoGraphSource
	}
	log.Infof("graph: %d nodes, %d edges, %d connectors",
		len(res.Graph.Nodes), len(res.Graph.Edges), len(res.Graph.Connectors))

	if od := c.Input.OD; od != nil {
		var err error
		if od.File != "" {
			res.OD, err = LoadODFile(od.File)
		} else {
			res.OD, err = loadWithCache(l.cacheDir, *od, func() ([]ODEntry, error) {
				return l.downloadOD(ctx, *od)
			})
		}
		if err != nil {
			return nil, err
		}
		log.Infof("od: %d entries", len(res.OD))
	}
	return res, nil
}

// LoadGraphFile 从YAML文件读取路网
func LoadGraphFile(path string) (Graph, error) {
	var g Graph
	if err := readYAML(path, &g); err != nil {
		return Graph{}, fmt.Errorf("load graph: %w", err)
	}
	return g, nil
}

// LoadODFile 从YAML文件读取OD矩阵
func LoadODFile(path string) ([]ODEntry, error) {
	var od []ODEntry
	if err := readYAML(path, &od); err != nil {
		return nil, fmt.Errorf("load od: %w", err)
	}
	return od, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, out)
}

func writeYAML(path string, in any) error {
	data, err := yaml.Marshal(in)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// loadWithCache 带缓存的加载
// 功能：缓存文件存在时直接读取；否则下载并写入缓存
// 说明：OnlyCache为true时不下载，缓存不存在即为错误；写缓存失败只记录日志
func loadWithCache[T any](cacheDir string, p config.InputPath, download func() (T, error)) (T, error) {
	var res T
	var cachePath string
	if cacheDir != "" {
		cachePath = filepath.Join(cacheDir, p.GetCachePath())
		if err := readYAML(cachePath, &res); err == nil {
			log.Infof("load %s.%s from cache %s", p.GetDb(), p.GetColl(), cachePath)
			return res, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return res, fmt.Errorf("read cache %s: %w", cachePath, err)
		}
	}
	if p.OnlyCache {
		return res, fmt.Errorf("cache of %s.%s does not exist but only_cache is set", p.GetDb(), p.GetColl())
	}
	log.Infof("start fetching from %s.%s", p.GetDb(), p.GetColl())
	res, err := download()
	if err != nil {
		return res, fmt.Errorf("fetch %s.%s: %w", p.GetDb(), p.GetColl(), err)
	}
	log.Infof("finish fetching from %s.%s", p.GetDb(), p.GetColl())
	if cachePath != "" {
		if err := writeYAML(cachePath, res); err != nil {
			log.Errorf("failed to write cache %s: %v", cachePath, err)
		}
	}
	return res, nil
}

// loader 按需建立的MongoDB连接
type loader struct {
	uri      string
	cacheDir string
	client   *mongo.Client
}

func (l *loader) coll(ctx context.Context, p config.InputPath) (*mongo.Collection, error) {
	if l.client == nil {
		if l.uri == "" {
			return nil, errors.New("input.uri is empty")
		}
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(l.uri))
		if err != nil {
			return nil, err
		}
		l.client = client
	}
	return l.client.Database(p.GetDb()).Collection(p.GetColl()), nil
}

func (l *loader) close(ctx context.Context) {
	if l.client != nil {
		if err := l.client.Disconnect(ctx); err != nil {
			log.Warnf("mongo disconnect: %v", err)
		}
	}
}

func (l *loader) downloadGraph(ctx context.Context, p config.InputPath) (Graph, error) {
	coll, err := l.coll(ctx, p)
	if err != nil {
		return Graph{}, err
	}
	cur, err := coll.Find(ctx, bson.D{})
	if err != nil {
		return Graph{}, err
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return Graph{}, err
	}
	return decodeGraph(docs)
}

func (l *loader) downloadOD(ctx context.Context, p config.InputPath) ([]ODEntry, error) {
	coll, err := l.coll(ctx, p)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "origin", Value: 1}, {Key: "destination", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var od []ODEntry
	if err := cur.All(ctx, &od); err != nil {
		return nil, err
	}
	return od, nil
}

// decodeGraph 按class解码路网记录，未知class跳过
func decodeGraph(docs []document) (Graph, error) {
	var g Graph
	for i, doc := range docs {
		var err error
		switch doc.Class {
		case "node":
			var n Node
			if err = bson.Unmarshal(doc.Data, &n); err == nil {
				g.Nodes = append(g.Nodes, n)
			}
		case "edge":
			var e Edge
			if err = bson.Unmarshal(doc.Data, &e); err == nil {
				g.Edges = append(g.Edges, e)
			}
		case "connector":
			var c Connector
			if err = bson.Unmarshal(doc.Data, &c); err == nil {
				g.Connectors = append(g.Connectors, c)
			}
		default:
			log.Warnf("ignore document %d with unknown class %q", i, doc.Class)
		}
		if err != nil {
			return Graph{}, fmt.Errorf("decode %s document %d: %w", doc.Class, i, err)
		}
	}
	return g, nil
}
