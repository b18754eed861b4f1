package api

import (
	"github.com/gin-gonic/gin"

	"github.com/payxero/payxero"
)

// Api exposes the delivery pipeline to the operator over HTTP. The OAuth
// callback endpoint is the redirect URI registered with the provider.
type Api struct {
	px     *payxero.PayXero
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.GET("/connect", a.StartConnect)
	router.GET("/oauth/callback", a.OAuthCallback)
	router.POST("/disconnect", a.Disconnect)

	router.GET("/deposits", a.ListDeposits)
	router.GET("/deposits/:id/transactions", a.ListTransactions)
	router.POST("/deposits/:id/send", a.SendDeposit)

	router.GET("/status", a.GetStatus)
	router.POST("/status/clear-key-notice", a.ClearKeyNotice)

	return a.router
}

func NewAPI(px *payxero.PayXero) *Api {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{px: px, router: r}
}
