package handlers

import (
	"net/http"

	"group-voting-backend/repository"

	"github.com/gin-gonic/gin"
)

// GroupHandler 只读的群组目录
type GroupHandler struct {
	directory *repository.GroupDirectory
}

// NewGroupHandler 创建群组处理器
func NewGroupHandler(directory *repository.GroupDirectory) *GroupHandler {
	return &GroupHandler{directory: directory}
}

// GetGroups 返回群组名称，用于群组筛选
func (h *GroupHandler) GetGroups(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"groups": h.directory.Names(c.Request.Context())})
}
