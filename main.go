package main

import (
	"context"
	"fmt"
	"os"

	"gymcamera/internal/app"
	"gymcamera/internal/config"
	"gymcamera/internal/logging"

	"github.com/joho/godotenv"
)

func main() {
	// .env があれば環境変数に読み込む
	_ = godotenv.Load()

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗しました: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	// アプリケーションを起動
	if err := app.Run(context.Background(), cfg, logger); err != nil {
		logger.Error("アプリケーションの実行に失敗しました", "error", err)
		os.Exit(1)
	}
}
