// Package main はGymCameraサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gymcamera/internal/app"
	"gymcamera/internal/config"
	"gymcamera/internal/logging"

	"github.com/joho/godotenv"
)

func main() {
	// コマンドラインオプション
	var (
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		configPath = flag.String("config", "", "設定ファイルのパス (YAML)")
		envFile    = flag.String("env", ".env", "読み込む .env ファイル")
		apiLevel   = flag.Int("api-level", 0, "OSのAPIレベル (29以上でスコープドストレージ)")
		mock       = flag.Bool("mock", false, "実デバイスの代わりにテストパターンを使う")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("GymCamera")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if err := godotenv.Load(*envFile); err != nil && *envFile != ".env" {
		fmt.Fprintf(os.Stderr, ".env ファイルの読み込みに失敗しました: %v\n", err)
		os.Exit(1)
	}

	// 設定を読み込む
	if *configPath != "" {
		if err := os.Setenv(config.ConfigFileEnv, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "設定ファイルの指定に失敗しました: %v\n", err)
			os.Exit(1)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗しました: %v\n", err)
		os.Exit(1)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *apiLevel != 0 {
		cfg.Platform.APILevel = *apiLevel
	}
	if *mock {
		cfg.Camera.Mock = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "設定の検証に失敗しました: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	// アプリケーションを起動
	logger.Info("GymCamera サーバーを起動します", "address", cfg.ServerAddress())
	if err := app.Run(context.Background(), cfg, logger); err != nil {
		logger.Error("アプリケーションの実行に失敗しました", "error", err)
		os.Exit(1)
	}
}
