package server

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
)

//go:embed all:dist
var embedFS embed.FS

// GetAssetsFS は画面のJS/CSSのファイルシステムを返す
func GetAssetsFS() http.FileSystem {
	// dist/assets のサブディレクトリを取得
	assetsFS, err := fs.Sub(embedFS, "dist/assets")
	if err != nil {
		panic(fmt.Sprintf("埋め込みアセットファイルシステムの作成に失敗: %v", err))
	}
	return http.FS(assetsFS)
}

// getIndexHTML は画面のHTMLを返す
func getIndexHTML() []byte {
	data, err := embedFS.ReadFile("dist/index.html")
	if err != nil {
		panic(fmt.Sprintf("埋め込みindex.htmlの読み込みに失敗: %v", err))
	}
	return data
}
