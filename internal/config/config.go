package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gymcamera/internal/camera"
	"gymcamera/internal/database"
	"gymcamera/internal/logging"

	"gopkg.in/yaml.v3"
)

// 設定ファイルのパスを指定する環境変数
const ConfigFileEnv = "GYMCAMERA_CONFIG"

// 権限の要求方法
const (
	RequesterDialog   = "dialog"   // 画面上のダイアログで要求する
	RequesterTerminal = "terminal" // 端末で y/N を尋ねる
	RequesterStatic   = "static"   // 設定値で答える
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Camera     CameraConfig     `yaml:"camera"`
	Platform   PlatformConfig   `yaml:"platform"`
	Permission PermissionConfig `yaml:"permission"`
	Media      MediaConfig      `yaml:"media"`
	Database   database.Config  `yaml:"database"`
	Logging    logging.Config   `yaml:"logging"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号
	Mode string `yaml:"mode"` // gin のモード (debug, release, test)

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	// デバイスごとの設定。検出されたデバイスのレンズ向きを上書きする
	Devices []CameraDevice `yaml:"devices"`

	// true の場合は実デバイスを使わずテストパターンを生成する
	Mock bool `yaml:"mock"`

	// true の場合は同じハンドルへの撮影を1枚ずつ処理する
	SerializeCaptures bool `yaml:"serialize_captures"`

	// デフォルト設定
	DefaultFPS    int `yaml:"default_fps"`    // フレームレート (fps)
	DefaultWidth  int `yaml:"default_width"`  // 画像幅
	DefaultHeight int `yaml:"default_height"` // 画像高さ
}

// CameraDevice は個別カメラの設定
type CameraDevice struct {
	Device string            `yaml:"device"` // デバイスパス (例: /dev/video0)
	Facing camera.LensFacing `yaml:"facing"` // back, front, external
}

// PlatformConfig はホストOSの設定
type PlatformConfig struct {
	APILevel           int    `yaml:"api_level"`            // OSのAPIレベル (29以上でスコープドストレージ)
	ExternalStorageDir string `yaml:"external_storage_dir"` // 公開外部ストレージのルート
}

// PermissionConfig は実行時権限の設定
type PermissionConfig struct {
	Requester string `yaml:"requester"` // dialog, terminal, static
	GrantAll  bool   `yaml:"grant_all"` // static の場合の応答
}

// MediaConfig はメディアコレクションの設定
type MediaConfig struct {
	// 確定されないまま残ったエントリを起動時に削除するまでの時間
	PendingTTL time.Duration `yaml:"pending_ttl"`
}

// Load は設定を読み込む
// 環境変数からデフォルト値を作り、GYMCAMERA_CONFIG が指定されていればYAMLファイルで上書きする。
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Default は環境変数とデフォルト値から設定を作成する
func Default() *Config {
	dbConfig := database.DefaultConfig()
	dbConfig.Path = getEnvOrDefault("GYMCAMERA_DB_PATH", dbConfig.Path)

	logConfig := logging.DefaultConfig()
	logConfig.Level = getEnvOrDefault("LOG_LEVEL", logConfig.Level)
	logConfig.Format = getEnvOrDefault("LOG_FORMAT", logConfig.Format)

	return &Config{
		Server: ServerConfig{
			Host:         getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsIntOrDefault("PORT", 8080),
			Mode:         getEnvOrDefault("GIN_MODE", "release"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			Devices:           []CameraDevice{},
			Mock:              getEnvAsBoolOrDefault("GYMCAMERA_CAMERA_MOCK", false),
			SerializeCaptures: getEnvAsBoolOrDefault("GYMCAMERA_SERIALIZE_CAPTURES", false),
			DefaultFPS:        15,
			DefaultWidth:      1280,
			DefaultHeight:     720,
		},
		Platform: PlatformConfig{
			APILevel:           getEnvAsIntOrDefault("GYMCAMERA_API_LEVEL", 34),
			ExternalStorageDir: getEnvOrDefault("GYMCAMERA_STORAGE_DIR", "./storage"),
		},
		Permission: PermissionConfig{
			Requester: getEnvOrDefault("GYMCAMERA_PERMISSION_REQUESTER", RequesterDialog),
			GrantAll:  getEnvAsBoolOrDefault("GYMCAMERA_PERMISSION_GRANT_ALL", false),
		},
		Media: MediaConfig{
			PendingTTL: time.Hour,
		},
		Database: dbConfig,
		Logging:  logConfig,
	}
}

// LoadFile はYAMLファイルの値で設定を上書きする
// ファイルに書かれていない項目は現在の値のまま残る。
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗 (%s): %w", path, err)
	}
	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return errors.New("タイムアウトに負の値は指定できません")
	}

	// カメラ設定の検証
	if c.Camera.DefaultFPS <= 0 {
		return fmt.Errorf("無効なFPS: %d", c.Camera.DefaultFPS)
	}
	if c.Camera.DefaultWidth <= 0 || c.Camera.DefaultHeight <= 0 {
		return fmt.Errorf("無効な解像度: %dx%d", c.Camera.DefaultWidth, c.Camera.DefaultHeight)
	}
	seen := make(map[string]bool, len(c.Camera.Devices))
	for _, d := range c.Camera.Devices {
		if d.Device == "" {
			return errors.New("カメラデバイスのパスが指定されていません")
		}
		if seen[d.Device] {
			return fmt.Errorf("カメラデバイスが重複しています: %s", d.Device)
		}
		seen[d.Device] = true

		switch d.Facing {
		case "", camera.LensFacingBack, camera.LensFacingFront, camera.LensFacingExternal:
		default:
			return fmt.Errorf("無効なレンズ向き: %s (%s)", d.Facing, d.Device)
		}
	}

	// プラットフォーム設定の検証
	if c.Platform.APILevel <= 0 {
		return fmt.Errorf("無効なAPIレベル: %d", c.Platform.APILevel)
	}
	if c.Platform.ExternalStorageDir == "" {
		return errors.New("外部ストレージのルートが指定されていません")
	}

	// 権限設定の検証
	switch c.Permission.Requester {
	case RequesterDialog, RequesterTerminal, RequesterStatic:
	default:
		return fmt.Errorf("無効な権限の要求方法: %s", c.Permission.Requester)
	}

	if c.Database.Path == "" {
		return errors.New("データベースのパスが指定されていません")
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("無効なログ形式: %s", c.Logging.Format)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Facings はデバイスパスごとのレンズ向きの上書きを返す
func (c *Config) Facings() map[string]camera.LensFacing {
	facings := make(map[string]camera.LensFacing)
	for _, d := range c.Camera.Devices {
		if d.Facing != "" {
			facings[d.Device] = d.Facing
		}
	}
	return facings
}

// MockDevices は疑似カメラとして扱うデバイスパスを返す
func (c *Config) MockDevices() []string {
	if len(c.Camera.Devices) == 0 {
		return []string{"/dev/video0"}
	}
	devices := make([]string, 0, len(c.Camera.Devices))
	for _, d := range c.Camera.Devices {
		devices = append(devices, d.Device)
	}
	return devices
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault は環境変数を真偽値として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
