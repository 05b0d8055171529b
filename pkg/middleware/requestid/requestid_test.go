package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, inbound string) (header, seen string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		seen = Value(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if inbound != "" {
		req.Header.Set(Header, inbound)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header().Get(Header), seen
}

func TestGeneratesIDWhenMissing(t *testing.T) {
	header, seen := serve(t, "")
	require.NotEmpty(t, header)
	assert.Equal(t, header, seen)
	_, err := uuid.Parse(header)
	assert.NoError(t, err)
}

func TestReusesWellFormedInboundID(t *testing.T) {
	header, seen := serve(t, "trace-1234abcd")
	assert.Equal(t, "trace-1234abcd", header)
	assert.Equal(t, "trace-1234abcd", seen)
}

func TestReplacesUnsafeInboundID(t *testing.T) {
	header, _ := serve(t, "bad id\nwith newline")
	assert.NotEqual(t, "bad id\nwith newline", header)
	_, err := uuid.Parse(header)
	assert.NoError(t, err)
}
