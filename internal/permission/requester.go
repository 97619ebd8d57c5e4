package permission

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// StaticRequester は設定された付与方針で即座に応答する
type StaticRequester struct {
	Grants map[Permission]bool
}

// NewStaticRequester は全ての権限に同じ応答を返すStaticRequesterを作成する
func NewStaticRequester(grantAll bool) *StaticRequester {
	return &StaticRequester{Grants: map[Permission]bool{
		Camera:               grantAll,
		WriteExternalStorage: grantAll,
	}}
}

// Request は設定に従って応答する
func (r *StaticRequester) Request(_ context.Context, perms []Permission) (map[Permission]bool, error) {
	results := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		results[p] = r.Grants[p]
	}
	return results, nil
}

// TerminalRequester は端末でユーザーに y/N を尋ねる
// 標準入力が端末でない場合は全て拒否する。
// 入力は1つのゴルーチンが読み続け、キャンセルされた要求への回答は次の要求が受け取る。
type TerminalRequester struct {
	in         io.Reader
	out        io.Writer
	isTerminal func() bool

	readOnce sync.Once
	lines    chan terminalLine
}

type terminalLine struct {
	text string
	err  error
}

// NewTerminalRequester は標準入出力を使うTerminalRequesterを作成する
func NewTerminalRequester() *TerminalRequester {
	return &TerminalRequester{
		in:  os.Stdin,
		out: os.Stdout,
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

// Request は権限ごとに確認を求める
func (r *TerminalRequester) Request(ctx context.Context, perms []Permission) (map[Permission]bool, error) {
	results := make(map[Permission]bool, len(perms))
	if !r.isTerminal() {
		for _, p := range perms {
			results[p] = false
		}
		return results, nil
	}

	r.readOnce.Do(r.startReader)

	for _, p := range perms {
		fmt.Fprintf(r.out, "Allow GymCamera to use %s? [y/N]: ", p)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case line, ok := <-r.lines:
			if !ok {
				// 入力が閉じられた後は拒否として扱う
				results[p] = false
				continue
			}
			if line.err != nil {
				return nil, fmt.Errorf("入力の読み取りに失敗: %w", line.err)
			}
			reply := strings.ToLower(strings.TrimSpace(line.text))
			results[p] = reply == "y" || reply == "yes"
		}
	}

	return results, nil
}

// startReader は入力を1行ずつ lines に送るゴルーチンを起動する
// 入力が終わるとチャンネルを閉じる。
func (r *TerminalRequester) startReader() {
	r.lines = make(chan terminalLine)
	go func() {
		defer close(r.lines)
		reader := bufio.NewReader(r.in)
		for {
			text, err := reader.ReadString('\n')
			if text != "" {
				r.lines <- terminalLine{text: text}
			}
			if err != nil {
				if err != io.EOF {
					r.lines <- terminalLine{err: err}
				}
				return
			}
		}
	}()
}
