package vehicle

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/cellsim/utils"
)

// VehicleResponse 车辆状态
type VehicleResponse struct {
	ID         int32  `json:"id"`
	State      string `json:"state"`
	Edge       int32  `json:"edge"`
	Lane       int    `json:"lane"`
	Cell       int    `json:"cell"`
	V          int    `json:"v"`
	Anger      int32  `json:"anger"`
	TotalAnger int64  `json:"total_anger"`
	TravelTime int64  `json:"travel_time"`
	Distance   int64  `json:"distance"`
}

func (v *Vehicle) response() VehicleResponse {
	pos := v.Position()
	return VehicleResponse{
		ID:         v.id,
		State:      v.state.String(),
		Edge:       pos.Edge,
		Lane:       pos.Lane,
		Cell:       pos.Cell,
		V:          v.v,
		Anger:      v.anger,
		TotalAnger: v.totalAnger,
		TravelTime: v.travelTime,
		Distance:   v.distance,
	}
}

// Register 注册HTTP接口
// 功能：GET /vehicles?ids=1,2,3 批量查询（ids为空返回全部），GET /vehicles/:id 查询单辆车
func (m *VehicleManager) Register(r gin.IRouter) {
	r.GET("/vehicles", m.GetVehicles)
	r.GET("/vehicles/:id", m.GetVehicle)
}

// GetVehicles HTTP接口：批量获取车辆状态
// 说明：不存在的ID在failed_ids中返回
func (m *VehicleManager) GetVehicles(c *gin.Context) {
	var ids []int32
	if raw := c.Query("ids"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "bad vehicle id " + s})
				return
			}
			ids = append(ids, int32(id))
		}
	}
	vehicles, failed := utils.Find(m.data, m.vehicles, ids)
	c.JSON(http.StatusOK, gin.H{
		"vehicles":   lo.Map(vehicles, func(v *Vehicle, _ int) VehicleResponse { return v.response() }),
		"failed_ids": failed,
	})
}

// GetVehicle HTTP接口：获取单辆车状态
func (m *VehicleManager) GetVehicle(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad vehicle id"})
		return
	}
	v, err := m.GetOrError(int32(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, v.response())
}
