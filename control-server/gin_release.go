//go:build release

package controlserver

import (
	"github.com/gin-gonic/gin"
	"github.com/yeti47/screenrec/config"
)

// initializeGin sets up Gin in release mode for production builds
func initializeGin(_ config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// the control API is local, requests never arrive through a proxy
	router.SetTrustedProxies(nil)

	return router
}
