// Package camera はカメラセッションの束縛と静止画キャプチャを担う
//
// # 責務
// - カメラデバイスの検出とレンズ向きの判定
// - プロセス単位のカメラプロバイダーの非同期取得
// - プレビューと静止画キャプチャのユースケースを画面のスコープに束縛する
// - 静止画をファイルまたはメディアコレクションに非同期で保存する
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 背面カメラのプレビューを画面に流したい
// - ボタン操作で1枚撮影して保存したい
//
// # 仕様
// - Provider: カメラ一覧の管理とセッションの束縛・解放
// - Preview: ソースのフレームを SurfaceProvider に流す
// - ImageCapture: 1回の撮影につき結果を1回だけ返す
// - V4L2 Capturer: ffmpeg経由での画像キャプチャ
// - スコープ破棄時にセッションを自動で解放する
//
// # 前提要件
//   - v4l-utils: カメラ名の取得とデバイス制御に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: 画像キャプチャとストリーミングに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
