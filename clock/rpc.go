package clock

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NowResponse 当前时间查询结果
type NowResponse struct {
	Step uint64  `json:"step"`
	T    float64 `json:"t"`
	Time string  `json:"time"`
}

// Register 将时钟查询接口注册到HTTP路由
func (c *Clock) Register(r gin.IRouter) {
	r.GET("/clock", c.Now)
}

// Now 获取当前仿真时间
func (c *Clock) Now(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, NowResponse{
		Step: c.InternalStep,
		T:    c.T,
		Time: c.String(),
	})
}
