package camera

import (
	"context"
	"errors"
	"time"
)

// Status はカメラの動作状態を表す
type Status string

const (
	StatusInactive Status = "inactive" // カメラは停止中
	StatusActive   Status = "active"   // カメラは動作中
	StatusError    Status = "error"    // カメラでエラーが発生
)

// LensFacing はレンズの向き
type LensFacing string

const (
	LensFacingBack     LensFacing = "back"     // 背面カメラ
	LensFacingFront    LensFacing = "front"    // 前面カメラ
	LensFacingExternal LensFacing = "external" // 外部カメラ
)

// SourceType は映像ソースの種類
type SourceType string

const (
	// SourceTypeUSB はV4L2 USBカメラ
	SourceTypeUSB SourceType = "usb"
	// SourceTypeFake はテストパターンを生成する疑似カメラ
	SourceTypeFake SourceType = "fake"
)

var (
	// ErrNoCameraAvailable はセレクターに一致するカメラがない場合のエラー
	ErrNoCameraAvailable = errors.New("no camera matches the selector")
	// ErrUseCaseAlreadyBound はユースケースが既に別のセッションに束縛されている場合のエラー
	ErrUseCaseAlreadyBound = errors.New("use case is already bound")
	// ErrSessionConflict は別のスコープ・カメラでセッションが動作中の場合のエラー
	ErrSessionConflict = errors.New("another camera session is bound")
	// ErrScopeDestroyed は破棄済みのスコープに束縛しようとした場合のエラー
	ErrScopeDestroyed = errors.New("lifecycle scope is destroyed")
	// ErrNoUseCases はユースケースが指定されていない場合のエラー
	ErrNoUseCases = errors.New("no use cases to bind")
	// ErrSourceInactive は停止中のソースからフレームを取得しようとした場合のエラー
	ErrSourceInactive = errors.New("camera source is not active")
	// ErrNoFrame はまだフレームを受信していない場合のエラー
	ErrNoFrame = errors.New("no frame received yet")
)

// Camera はプロバイダーが管理するカメラの情報
type Camera struct {
	ID       string     // カメラの一意識別子
	Name     string     // カメラの表示名
	Device   string     // デバイスパス（例: /dev/video0）
	Facing   LensFacing // レンズの向き
	Type     SourceType // ソースの種類
	FPS      int        // フレームレート
	Width    int        // 画像幅
	Height   int        // 画像高さ
	Status   Status     // 現在の状態
	LastSeen time.Time  // 最後に確認された時刻
}

// Settings はカメラの設定を表す
type Settings struct {
	FPS    int // フレームレート
	Width  int // 画像幅
	Height int // 画像高さ
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool

	// GetDeviceInfo はデバイスの詳細情報を取得する
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device      string       // デバイスパス
	Name        string       // デバイス名
	Driver      string       // ドライバー名
	Facing      LensFacing   // レンズの向き
	Resolutions []Resolution // サポートされる解像度
	Formats     []string     // サポートされるフォーマット
}

// Resolution はカメラの解像度を表す
type Resolution struct {
	Width  int // 幅
	Height int // 高さ
}

// Source は1台のカメラからフレームを取得する
type Source interface {
	// Start はストリーミングを開始する
	Start(ctx context.Context) error

	// Stop はストリーミングを停止し、購読チャンネルを全てクローズする
	Stop(ctx context.Context) error

	// Status は現在の状態を返す
	Status() Status

	// Subscribe はプレビューフレームの購読を開始する
	Subscribe() (<-chan []byte, func())

	// LatestFrame はストリーミング中の最新フレームのコピーを返す
	LatestFrame() ([]byte, error)

	// CaptureStill は高画質の静止画を1枚取得する
	CaptureStill(ctx context.Context) ([]byte, error)
}
