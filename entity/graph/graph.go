// 路网：持有全部Node与Edge，拓扑在构建后不再变化
package graph

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/cellsim/entity"
	"github.com/tsinghua-fib-lab/cellsim/entity/edge"
	"github.com/tsinghua-fib-lab/cellsim/entity/node"
	"github.com/tsinghua-fib-lab/cellsim/utils/input"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Graph 路网
type Graph struct {
	nodeManager *node.NodeManager
	edgeManager *edge.EdgeManager

	core []entity.INode // 最大强连通分量，按ID升序
}

// New 构建路网
// 功能：创建Node与Edge，建立拓扑，计算冲突序号与最大强连通分量
// 参数：ctx-任务上下文，in-路网输入
// 返回：路网实例；ID重复、引用不存在或自环时返回error
func New(ctx entity.ITaskContext, in input.Graph) (*Graph, error) {
	g := &Graph{
		nodeManager: node.NewManager(ctx),
		edgeManager: edge.NewManager(),
	}
	if err := g.nodeManager.Init(in.Nodes); err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}
	if err := g.edgeManager.Init(in.Edges, g.nodeManager, ctx.RuntimeConfig().C.CellLength); err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}
	if err := g.nodeManager.Connect(g.edgeManager.All(), in.Connectors); err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}
	g.core = g.largestSCC()
	log.Infof("graph built: %d nodes, %d edges, %d nodes in strongly connected core",
		len(in.Nodes), len(in.Edges), len(g.core))
	return g, nil
}

// largestSCC 最大强连通分量
// 说明：规模相同时取包含最小节点ID的分量
func (g *Graph) largestSCC() []entity.INode {
	dg := simple.NewDirectedGraph()
	for _, n := range g.nodeManager.All() {
		dg.AddNode(simple.Node(n.ID()))
	}
	for _, e := range g.edgeManager.All() {
		from, to := simple.Node(e.Origin().ID()), simple.Node(e.Destination().ID())
		if !dg.HasEdgeFromTo(from.ID(), to.ID()) {
			dg.SetEdge(dg.NewEdge(from, to))
		}
	}
	var best []int64
	for _, component := range topo.TarjanSCC(dg) {
		ids := make([]int64, 0, len(component))
		for _, n := range component {
			ids = append(ids, n.ID())
		}
		slices.Sort(ids)
		if len(ids) > len(best) || (len(ids) == len(best) && len(ids) > 0 && ids[0] < best[0]) {
			best = ids
		}
	}
	return lo.Map(best, func(id int64, _ int) entity.INode {
		return g.nodeManager.Get(int32(id))
	})
}

// Nodes 全部Node，按ID升序
func (g *Graph) Nodes() []entity.INode {
	return g.nodeManager.All()
}

// Edges 全部Edge，按ID升序
func (g *Graph) Edges() []entity.IEdge {
	return g.edgeManager.All()
}

// StronglyConnectedCore 最大强连通分量中的Node，按ID升序
func (g *Graph) StronglyConnectedCore() []entity.INode {
	return g.core
}

func (g *Graph) NodeManager() *node.NodeManager {
	return g.nodeManager
}

func (g *Graph) EdgeManager() *edge.EdgeManager {
	return g.edgeManager
}

// Reset 清空所有动态状态（元胞占用、登记、许可、随机数），拓扑保持不变
func (g *Graph) Reset() {
	g.edgeManager.Reset()
	g.nodeManager.Reset()
}
