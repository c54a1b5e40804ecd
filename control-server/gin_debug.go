//go:build !release

package controlserver

import (
	"github.com/gin-gonic/gin"
	"github.com/yeti47/screenrec/config"
)

// initializeGin sets up Gin in debug mode for development builds
func initializeGin(_ config.Config) *gin.Engine {
	// Gin is in debug mode by default and trusts all proxies
	return gin.New()
}
