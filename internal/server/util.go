package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// portParam parses the :port path parameter, writing the 400 itself on
// bad input.
func portParam(c *gin.Context) (int, bool) {
	p, err := strconv.Atoi(c.Param("port"))
	if err != nil || !validPort(p) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid port: " + c.Param("port")})
		return 0, false
	}
	return p, true
}

// intQuery reads a positive integer query parameter, falling back to
// def when absent or malformed.
func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
