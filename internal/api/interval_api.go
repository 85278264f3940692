package api

import (
	"net/http"
	"strconv"

	"github.com/fox-gonic/fox"
	"github.com/rhq-project/rhq-sub002/internal/api/model"
	"github.com/rhq-project/rhq-sub002/internal/measurement/schedule"
)

func (api *Api) setupIntervalRouters(router *fox.Engine) {
	router.GET("/v1/intervals/:amount/:unit", api.ConvertInterval)
}

// ConvertInterval 将数量与单位换算为毫秒（GET /v1/intervals/:amount/:unit）
func (api *Api) ConvertInterval(c *fox.Context) {
	amount, err := strconv.ParseInt(c.Param("amount"), 10, 64)
	if err != nil {
		SendErrorResponse(c, http.StatusBadRequest, model.ErrorCodeInvalidParameter,
			"参数 'amount' 必须为整数", map[string]string{"parameter": "amount", "value": c.Param("amount")})
		return
	}
	unit, err := schedule.ParseIntervalUnit(c.Param("unit"))
	if err != nil {
		SendErrorResponse(c, http.StatusBadRequest, model.ErrorCodeInvalidParameter,
			err.Error(), map[string]string{"parameter": "unit", "value": c.Param("unit")})
		return
	}
	spec := schedule.IntervalSpec{Amount: amount, Unit: unit}
	millis, err := spec.Millis()
	if err != nil {
		SendErrorResponse(c, http.StatusBadRequest, model.ErrorCodeInvalidParameter,
			err.Error(), map[string]string{"parameter": "amount", "value": c.Param("amount")})
		return
	}
	c.JSON(http.StatusOK, model.IntervalResponse{Amount: amount, Unit: unit, IntervalMillis: millis})
}
