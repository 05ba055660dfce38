package ports

import "github.com/gin-gonic/gin"

type RPCHandler interface {
	ResourceNames(c *gin.Context)
	GetStatus(c *gin.Context)
	DoCommand(c *gin.Context)
}
