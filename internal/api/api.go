// Package api はHTTP APIの定義を提供する
//
// # 責務
// - 埋め込みの OpenAPI ドキュメント (openapi.yaml) の読み込みと検証
// - リクエスト・レスポンスの型
// - ServerInterface とパラメーターのバインドを行うルーティング
//
// 型とルーティングは openapi.yaml に合わせて手で保守している。
package api

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime"
)

//go:embed openapi.yaml
var document []byte

// 写真一覧の件数
const (
	DefaultPhotoLimit = 20
	MaxPhotoLimit     = 100
)

// Document は埋め込みの OpenAPI ドキュメントを返す
func Document() []byte {
	return document
}

// Load は OpenAPI ドキュメントを読み込んで検証する
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(document)
	if err != nil {
		return nil, fmt.Errorf("OpenAPIドキュメントの読み込みに失敗: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("OpenAPIドキュメントの検証に失敗: %w", err)
	}
	return doc, nil
}

// HealthStatus はヘルスチェックの状態
type HealthStatus string

const Healthy HealthStatus = "healthy"

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    HealthStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
}

// ScreenStatus は画面の稼働状態
type ScreenStatus string

const (
	Running  ScreenStatus = "running"
	Finished ScreenStatus = "finished"
)

// StatusResponse は画面の状態
type StatusResponse struct {
	Status    ScreenStatus `json:"status"`
	Platform  string       `json:"platform"`
	Strategy  string       `json:"strategy"`
	Bound     bool         `json:"bound"`
	Finished  bool         `json:"finished"`
	Timestamp time.Time    `json:"timestamp"`
}

// CaptureResponse は撮影要求のレスポンス
type CaptureResponse struct {
	Accepted bool `json:"accepted"`
}

// PermissionDialog は表示中の権限ダイアログ
type PermissionDialog struct {
	ID          string    `json:"id"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}

// PermissionAnswer は権限ダイアログへの応答
type PermissionAnswer struct {
	Grants map[string]bool `json:"grants"`
}

// Photo は保存済みの写真
type Photo struct {
	ID           int64     `json:"id"`
	URI          string    `json:"uri"`
	DisplayName  string    `json:"display_name"`
	MIMEType     string    `json:"mime_type"`
	RelativePath string    `json:"relative_path"`
	Size         int64     `json:"size"`
	DateAdded    time.Time `json:"date_added"`
}

// PhotosResponse は写真一覧
type PhotosResponse struct {
	Photos []Photo `json:"photos"`
}

// ErrorResponse はエラーレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   *string   `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// GetPhotosParams は GET /api/photos のパラメーター
type GetPhotosParams struct {
	Limit *int `form:"limit,omitempty" json:"limit,omitempty"`
}

// ServerInterface はAPIのハンドラー
type ServerInterface interface {
	// ヘルスチェック
	// (GET /health)
	HealthCheck(c *gin.Context)
	// 画面の状態を取得
	// (GET /api/status)
	GetStatus(c *gin.Context)
	// ビューファインダーのMJPEGストリーム
	// (GET /api/preview)
	GetPreview(c *gin.Context)
	// 撮影を要求する
	// (POST /api/capture)
	CapturePhoto(c *gin.Context)
	// トーストと権限ダイアログのイベントストリーム
	// (GET /api/events)
	GetEvents(c *gin.Context)
	// 表示中の権限ダイアログを取得
	// (GET /api/permissions/pending)
	GetPendingPermission(c *gin.Context)
	// 権限ダイアログに応答する
	// (POST /api/permissions/{dialogId})
	RespondPermission(c *gin.Context, dialogID string)
	// 最近保存した写真の一覧
	// (GET /api/photos)
	GetPhotos(c *gin.Context, params GetPhotosParams)
	// このAPI定義
	// (GET /api/openapi.yaml)
	GetOpenAPI(c *gin.Context)
}

// ServerInterfaceWrapper はパラメーターをバインドしてからハンドラーを呼ぶ
type ServerInterfaceWrapper struct {
	Handler      ServerInterface
	ErrorHandler func(c *gin.Context, err error, statusCode int)
}

func (w *ServerInterfaceWrapper) RespondPermission(c *gin.Context) {
	var dialogID string
	err := runtime.BindStyledParameterWithOptions("simple", "dialogId", c.Param("dialogId"), &dialogID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		w.ErrorHandler(c, fmt.Errorf("invalid format for parameter dialogId: %w", err), http.StatusBadRequest)
		return
	}
	w.Handler.RespondPermission(c, dialogID)
}

func (w *ServerInterfaceWrapper) GetPhotos(c *gin.Context) {
	var params GetPhotosParams
	if err := runtime.BindQueryParameter("form", true, false, "limit", c.Request.URL.Query(), &params.Limit); err != nil {
		w.ErrorHandler(c, fmt.Errorf("invalid format for parameter limit: %w", err), http.StatusBadRequest)
		return
	}
	w.Handler.GetPhotos(c, params)
}

// Route はAPIのルート
type Route struct {
	Method string
	Path   string // OpenAPI 形式のパス
}

// Routes は RegisterHandlers が登録するルートの一覧を返す
func Routes() []Route {
	return []Route{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/api/status"},
		{http.MethodGet, "/api/preview"},
		{http.MethodPost, "/api/capture"},
		{http.MethodGet, "/api/events"},
		{http.MethodGet, "/api/permissions/pending"},
		{http.MethodPost, "/api/permissions/{dialogId}"},
		{http.MethodGet, "/api/photos"},
		{http.MethodGet, "/api/openapi.yaml"},
	}
}

// RegisterHandlers はルーターにハンドラーを登録する
// errorHandler が nil の場合は ErrorResponse を返す。
func RegisterHandlers(router gin.IRouter, si ServerInterface, errorHandler func(c *gin.Context, err error, statusCode int)) {
	if errorHandler == nil {
		errorHandler = defaultErrorHandler
	}
	wrapper := ServerInterfaceWrapper{
		Handler:      si,
		ErrorHandler: errorHandler,
	}

	router.GET("/health", si.HealthCheck)
	router.GET("/api/status", si.GetStatus)
	router.GET("/api/preview", si.GetPreview)
	router.POST("/api/capture", si.CapturePhoto)
	router.GET("/api/events", si.GetEvents)
	router.GET("/api/permissions/pending", si.GetPendingPermission)
	router.POST("/api/permissions/:dialogId", wrapper.RespondPermission)
	router.GET("/api/photos", wrapper.GetPhotos)
	router.GET("/api/openapi.yaml", si.GetOpenAPI)
}

func defaultErrorHandler(c *gin.Context, err error, statusCode int) {
	c.JSON(statusCode, ErrorResponse{
		Error:     "invalid_parameter",
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}
