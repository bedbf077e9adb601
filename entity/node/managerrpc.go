package node

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/cellsim/entity"
)

// NodeResponse 路口状态
type NodeResponse struct {
	ID         int32         `json:"id"`
	Lon        float64       `json:"lon"`
	Lat        float64       `json:"lat"`
	Incoming   map[int32]int `json:"incoming"` // 驶入边ID -> 冲突序号
	Leaving    map[int32]int `json:"leaving"`  // 驶出边ID -> 冲突序号
	Registered []int32       `json:"registered"`
	Permitted  []int32       `json:"permitted"`
}

// Register 注册HTTP接口
// 功能：GET /nodes/:id 返回路口拓扑与当前通行许可
func (m *NodeManager) Register(r gin.IRouter) {
	r.GET("/nodes/:id", m.GetNode)
}

// GetNode HTTP接口：获取指定Node的状态
// 说明：ID不合法返回400，不存在返回404
func (m *NodeManager) GetNode(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad node id"})
		return
	}
	n, ok := m.data[int32(id)]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "node id does not exist"})
		return
	}
	c.JSON(http.StatusOK, n.response())
}

func (n *Node) response() NodeResponse {
	return NodeResponse{
		ID:  n.id,
		Lon: n.point.Lon(),
		Lat: n.point.Lat(),
		Incoming: lo.SliceToMap(n.incoming, func(e entity.IEdge) (int32, int) {
			return e.ID(), n.inIndex[e.ID()]
		}),
		Leaving: lo.SliceToMap(n.leaving, func(e entity.IEdge) (int32, int) {
			return e.ID(), n.outIndex[e.ID()]
		}),
		Registered: n.Registered(),
		Permitted:  n.Permitted(),
	}
}
