package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gymcamera/internal/activity"
	"gymcamera/internal/api"
	"gymcamera/internal/logging"
	"gymcamera/internal/media"
	"gymcamera/internal/permission"

	"github.com/gin-gonic/gin"
)

// Controller はカメラ画面のコントローラー（activity.Activity）
type Controller interface {
	Status() activity.Status
	RequestCapture() bool
	Done() <-chan struct{}
}

// DialogResponder は画面上の権限ダイアログ（permission.DialogRequester）
type DialogResponder interface {
	Pending() (permission.Dialog, bool)
	Respond(id string, grants map[permission.Permission]bool) error
}

// PhotoLister は保存済みの写真を返す（media.Store）
type PhotoLister interface {
	Recent(ctx context.Context, limit int) ([]media.Item, error)
}

// Deps はハンドラーの依存関係
type Deps struct {
	Controller Controller
	Viewfinder *Viewfinder
	Events     *EventBroadcaster
	Dialogs    DialogResponder // 権限をダイアログで要求しない場合は nil
	Photos     PhotoLister
}

// 接続維持のためのコメント送信間隔
const heartbeatInterval = 30 * time.Second

// Handler は api.ServerInterface を実装する
type Handler struct {
	deps    Deps
	logger  *logging.Logger
	closing <-chan struct{}
}

var _ api.ServerInterface = (*Handler)(nil)

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
	})
}

// GetStatus は画面の状態取得エンドポイントの実装
func (h *Handler) GetStatus(c *gin.Context) {
	st := h.deps.Controller.Status()

	status := api.Running
	if st.Finished {
		status = api.Finished
	}

	c.JSON(http.StatusOK, api.StatusResponse{
		Status:    status,
		Platform:  st.Platform,
		Strategy:  st.Strategy,
		Bound:     st.Bound,
		Finished:  st.Finished,
		Timestamp: time.Now(),
	})
}

// CapturePhoto は撮影要求エンドポイントの実装
// 結果はトーストで通知するため、受け付けたら即座に 202 を返す。
func (h *Handler) CapturePhoto(c *gin.Context) {
	if h.finished() {
		errorJSON(c, http.StatusServiceUnavailable, "activity_finished", "画面は終了しています")
		return
	}

	accepted := h.deps.Controller.RequestCapture()
	c.JSON(http.StatusAccepted, api.CaptureResponse{Accepted: accepted})
}

// GetPreview はビューファインダーのMJPEGストリーミングエンドポイントの実装
func (h *Handler) GetPreview(c *gin.Context) {
	if h.finished() {
		errorJSON(c, http.StatusServiceUnavailable, "activity_finished", "画面は終了しています")
		return
	}
	h.streamMJPEG(c)
}

// GetEvents はトーストと権限ダイアログのSSEエンドポイントの実装
func (h *Handler) GetEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events, unsubscribe := h.deps.Events.Subscribe()
	defer unsubscribe()

	c.Status(http.StatusOK)
	if _, err := c.Writer.Write([]byte(": connected\n\n")); err != nil {
		return
	}
	c.Writer.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case <-h.closing:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(evt.Name, evt.Data)
			c.Writer.Flush()
		case <-ticker.C:
			if _, err := c.Writer.Write([]byte(": heartbeat\n\n")); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

// GetPendingPermission は表示中の権限ダイアログ取得エンドポイントの実装
func (h *Handler) GetPendingPermission(c *gin.Context) {
	if h.deps.Dialogs == nil {
		c.Status(http.StatusNoContent)
		return
	}

	dialog, ok := h.deps.Dialogs.Pending()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}

	perms := make([]string, 0, len(dialog.Permissions))
	for _, p := range dialog.Permissions {
		perms = append(perms, string(p))
	}
	c.JSON(http.StatusOK, api.PermissionDialog{
		ID:          dialog.ID,
		Permissions: perms,
		CreatedAt:   dialog.CreatedAt,
	})
}

// RespondPermission は権限ダイアログへの応答エンドポイントの実装
func (h *Handler) RespondPermission(c *gin.Context, dialogID string) {
	var answer api.PermissionAnswer
	if err := c.ShouldBindJSON(&answer); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", "リクエストボディが不正です", err.Error())
		return
	}
	if answer.Grants == nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", "grants が指定されていません")
		return
	}

	if h.deps.Dialogs == nil {
		errorJSON(c, http.StatusNotFound, "dialog_not_found", "指定されたダイアログが見つかりません")
		return
	}

	grants := make(map[permission.Permission]bool, len(answer.Grants))
	for name, granted := range answer.Grants {
		grants[permission.Permission(name)] = granted
	}

	if err := h.deps.Dialogs.Respond(dialogID, grants); err != nil {
		if errors.Is(err, permission.ErrDialogNotFound) {
			errorJSON(c, http.StatusNotFound, "dialog_not_found", "指定されたダイアログが見つかりません")
			return
		}
		h.logger.Error("権限ダイアログへの応答に失敗しました", "dialog_id", dialogID, "error", err)
		errorJSON(c, http.StatusInternalServerError, "internal_error", "応答に失敗しました")
		return
	}

	h.logger.Info("権限ダイアログに応答しました", "dialog_id", dialogID, "grants", answer.Grants)
	c.Status(http.StatusNoContent)
}

// GetPhotos は保存済みの写真一覧エンドポイントの実装
func (h *Handler) GetPhotos(c *gin.Context, params api.GetPhotosParams) {
	limit := api.DefaultPhotoLimit
	if params.Limit != nil {
		limit = *params.Limit
	}
	if limit < 1 || limit > api.MaxPhotoLimit {
		errorJSON(c, http.StatusBadRequest, "invalid_parameter", "limit は 1 から 100 の範囲で指定してください")
		return
	}

	items, err := h.deps.Photos.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("写真一覧の取得に失敗しました", "error", err)
		errorJSON(c, http.StatusInternalServerError, "internal_error", "写真一覧の取得に失敗しました")
		return
	}

	photos := make([]api.Photo, 0, len(items))
	for _, item := range items {
		photos = append(photos, api.Photo{
			ID:           item.ID,
			URI:          item.URI,
			DisplayName:  item.DisplayName,
			MIMEType:     item.MIMEType,
			RelativePath: item.RelativePath,
			Size:         item.Size,
			DateAdded:    item.DateAdded,
		})
	}
	c.JSON(http.StatusOK, api.PhotosResponse{Photos: photos})
}

// GetOpenAPI はAPI定義を返す
func (h *Handler) GetOpenAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/yaml", api.Document())
}

// streamMJPEG はMJPEGストリームを配信する
func (h *Handler) streamMJPEG(c *gin.Context) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	frames, unsubscribe := h.deps.Viewfinder.Subscribe()
	defer unsubscribe()

	writer := c.Writer
	writer.WriteHeader(http.StatusOK)
	writer.Flush()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case <-h.closing:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := writeMJPEGFrame(writer, frame); err != nil {
				return
			}
			writer.Flush()
		}
	}
}

func writeMJPEGFrame(w gin.ResponseWriter, frame []byte) error {
	if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

func (h *Handler) finished() bool {
	select {
	case <-h.deps.Controller.Done():
		return true
	default:
		return false
	}
}

// errorJSON はエラーレスポンスを返す
func errorJSON(c *gin.Context, status int, code, message string, details ...string) {
	resp := api.ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	}
	if len(details) > 0 {
		resp.Details = &details[0]
	}
	c.JSON(status, resp)
}
