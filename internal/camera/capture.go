package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"
)

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// V4L2Capturer はシェルコマンドを使ってV4L2デバイスから画像を取得する
type V4L2Capturer struct {
	devicePath string
	width      int
	height     int
	fps        int
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(devicePath string, width, height, fps int) *V4L2Capturer {
	return &V4L2Capturer{
		devicePath: devicePath,
		width:      width,
		height:     height,
		fps:        fps,
	}
}

// IsDeviceAvailable はV4L2デバイスが利用可能かチェックする
func (c *V4L2Capturer) IsDeviceAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", c.devicePath, "--info")
	return cmd.Run() == nil
}

// CaptureFrameAsJPEG は1フレームをキャプチャしてJPEGバイト配列として返す
// quality は ffmpeg の -q:v（2が最高画質）
func (c *V4L2Capturer) CaptureFrameAsJPEG(ctx context.Context, quality int) ([]byte, error) {
	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-i", c.devicePath,
		"-vframes", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-q:v", strconv.Itoa(quality),
		"-",
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("JPEGフレームキャプチャに失敗: %w (stderr: %s)", err, stderr.String())
	}

	return stdout.Bytes(), nil
}

// StartStream は連続キャプチャ用のストリームを開始する
// ctx がキャンセルされると ffmpeg を終了し、frameChan をクローズする。
func (c *V4L2Capturer) StartStream(ctx context.Context, frameChan chan<- []byte, errorChan chan<- error) {
	defer close(frameChan)

	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-r", strconv.Itoa(c.fps),
		"-i", c.devicePath,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "5",
		"-",
	)
	cmd.Stderr = io.Discard

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		sendError(errorChan, fmt.Errorf("stdoutパイプの作成に失敗: %w", err))
		return
	}

	if err := cmd.Start(); err != nil {
		sendError(errorChan, fmt.Errorf("ffmpegの起動に失敗: %w", err))
		return
	}
	defer func() {
		_ = cmd.Wait() // コンテキストキャンセル時のエラーは無視
	}()

	if err := readJPEGStream(ctx, stdout, frameChan); err != nil {
		sendError(errorChan, err)
	}
}

// TestCapture はデバイステスト用の簡単なキャプチャ機能
func (c *V4L2Capturer) TestCapture(ctx context.Context) error {
	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.CaptureFrameAsJPEG(testCtx, 10)
	return err
}

// readJPEGStream は連結されたJPEGストリームをフレームに分割して送信する
func readJPEGStream(ctx context.Context, r io.Reader, frameChan chan<- []byte) error {
	buffer := make([]byte, 256*1024)
	var frameBuffer bytes.Buffer

	for {
		n, err := r.Read(buffer)
		if n > 0 {
			frameBuffer.Write(buffer[:n])
			for _, frame := range splitJPEGFrames(&frameBuffer) {
				select {
				case frameChan <- frame:
				case <-ctx.Done():
					return nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("フレーム読み取りエラー: %w", err)
		}
	}
}

// splitJPEGFrames はバッファから完全なJPEGフレームを取り出す
// 未完成のフレームはバッファに残す。
func splitJPEGFrames(buf *bytes.Buffer) [][]byte {
	var frames [][]byte
	data := buf.Bytes()

	for {
		startIdx := bytes.Index(data, jpegStart)
		if startIdx == -1 {
			// 開始マーカーの片割れ(FF)だけは残す
			if len(data) > 0 && data[len(data)-1] == 0xFF {
				data = data[len(data)-1:]
			} else {
				data = nil
			}
			break
		}

		endIdx := bytes.Index(data[startIdx+2:], jpegEnd)
		if endIdx == -1 {
			data = data[startIdx:]
			break
		}

		endIdx += startIdx + 2 + len(jpegEnd)
		frame := make([]byte, endIdx-startIdx)
		copy(frame, data[startIdx:endIdx])
		frames = append(frames, frame)

		data = data[endIdx:]
	}

	remaining := append([]byte(nil), data...)
	buf.Reset()
	buf.Write(remaining)
	return frames
}

// sendError はエラーチャンネルが詰まっていても待たずに送信する
func sendError(errorChan chan<- error, err error) {
	select {
	case errorChan <- err:
	default:
	}
}
