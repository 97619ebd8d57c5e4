package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	doc, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "GymCamera API", doc.Info.Title)

	// 登録するルートはすべてドキュメントに定義されている
	for _, route := range Routes() {
		item := doc.Paths.Value(route.Path)
		require.NotNil(t, item, route.Path)
		assert.NotNil(t, item.GetOperation(route.Method), "%s %s", route.Method, route.Path)
	}
}

func TestLoad_PhotoLimitMatchesDocument(t *testing.T) {
	doc, err := Load(context.Background())
	require.NoError(t, err)

	op := doc.Paths.Value("/api/photos").Get
	param := op.Parameters.GetByInAndName("query", "limit")
	require.NotNil(t, param)

	schema := param.Schema.Value
	assert.EqualValues(t, DefaultPhotoLimit, schema.Default)
	require.NotNil(t, schema.Max)
	assert.EqualValues(t, MaxPhotoLimit, *schema.Max)
}

// recordingHandler は呼ばれたハンドラーと引数を記録する
type recordingHandler struct {
	called   string
	dialogID string
	params   GetPhotosParams
}

func (h *recordingHandler) HealthCheck(c *gin.Context)          { h.called = "HealthCheck" }
func (h *recordingHandler) GetStatus(c *gin.Context)            { h.called = "GetStatus" }
func (h *recordingHandler) GetPreview(c *gin.Context)           { h.called = "GetPreview" }
func (h *recordingHandler) CapturePhoto(c *gin.Context)         { h.called = "CapturePhoto" }
func (h *recordingHandler) GetEvents(c *gin.Context)            { h.called = "GetEvents" }
func (h *recordingHandler) GetPendingPermission(c *gin.Context) { h.called = "GetPendingPermission" }
func (h *recordingHandler) GetOpenAPI(c *gin.Context)           { h.called = "GetOpenAPI" }

func (h *recordingHandler) RespondPermission(c *gin.Context, dialogID string) {
	h.called = "RespondPermission"
	h.dialogID = dialogID
}

func (h *recordingHandler) GetPhotos(c *gin.Context, params GetPhotosParams) {
	h.called = "GetPhotos"
	h.params = params
}

func newRouter(h ServerInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterHandlers(r, h, nil)
	return r
}

func TestRegisterHandlers_Routes(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/health", "HealthCheck"},
		{http.MethodGet, "/api/status", "GetStatus"},
		{http.MethodGet, "/api/preview", "GetPreview"},
		{http.MethodPost, "/api/capture", "CapturePhoto"},
		{http.MethodGet, "/api/events", "GetEvents"},
		{http.MethodGet, "/api/permissions/pending", "GetPendingPermission"},
		{http.MethodPost, "/api/permissions/01J0000000000000000000000", "RespondPermission"},
		{http.MethodGet, "/api/photos", "GetPhotos"},
		{http.MethodGet, "/api/openapi.yaml", "GetOpenAPI"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			h := &recordingHandler{}
			w := httptest.NewRecorder()
			newRouter(h).ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, h.called)
		})
	}
}

func TestRegisterHandlers_BindsParameters(t *testing.T) {
	h := &recordingHandler{}
	r := newRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/permissions/01HZX", nil))
	assert.Equal(t, "01HZX", h.dialogID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/photos?limit=5", nil))
	require.NotNil(t, h.params.Limit)
	assert.Equal(t, 5, *h.params.Limit)

	h.params = GetPhotosParams{}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/photos", nil))
	assert.Equal(t, "GetPhotos", h.called)
	assert.Nil(t, h.params.Limit)
}

func TestRegisterHandlers_InvalidQuery(t *testing.T) {
	h := &recordingHandler{}
	w := httptest.NewRecorder()
	newRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/photos?limit=many", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, h.called)
	assert.True(t, strings.Contains(w.Body.String(), "invalid_parameter"), w.Body.String())
}
