package shared

import (
	"github.com/gin-gonic/gin"
)

// ParseBoolFilter parses a true/false query parameter and returns a pointer to bool or nil
func ParseBoolFilter(c *gin.Context, name string) *bool {
	switch c.Query(name) {
	case "true":
		return BoolPtr(true)
	case "false":
		return BoolPtr(false)
	default:
		return nil
	}
}

// BoolPtr returns a pointer to a boolean value
func BoolPtr(b bool) *bool {
	return &b
}
