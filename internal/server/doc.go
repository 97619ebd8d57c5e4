// Package server は、カメラ画面をHTTPで提供します。
//
// ブラウザの1ページが画面に相当し、ビューファインダー、撮影ボタン、
// トースト、権限ダイアログを表示します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - 画面（HTML/CSS/JS）の配信
//   - ビューファインダーのMJPEGストリーミング
//   - トーストと権限ダイアログのSSE配信
//   - 撮影要求と権限ダイアログへの応答の受け付け
//
// 仕様:
//   - gin を使用し、ルーティングは api.RegisterHandlers に従う
//   - 画面が終了したらサーバーも停止する
//   - グレースフルシャットダウンに対応
//   - 複数クライアントの同時接続をサポート
package server
