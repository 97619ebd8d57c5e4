package permission

import (
	"context"
	"fmt"

	"gymcamera/internal/logging"
	"gymcamera/internal/platform"
)

// Result は権限ゲートの判定結果
type Result struct {
	Required  []Permission // 必要な権限
	Requested []Permission // 実際に要求した権限（全て付与済みなら空）
	Denied    []Permission // 拒否された権限
}

// Granted は全ての必要な権限が付与されたかを返す
func (r Result) Granted() bool {
	return len(r.Denied) == 0
}

// Gate は権限ゲート
type Gate struct {
	version   platform.Version
	checker   Checker
	requester Requester
	recorder  Recorder
	logger    *logging.Logger
}

// NewGate は新しいGateを作成する
// checker が Recorder も実装していれば要求結果を記録する。
func NewGate(version platform.Version, checker Checker, requester Requester, logger *logging.Logger) *Gate {
	g := &Gate{
		version:   version,
		checker:   checker,
		requester: requester,
		logger:    logger.WithComponent("permission"),
	}
	if recorder, ok := checker.(Recorder); ok {
		g.recorder = recorder
	}
	return g
}

// Missing は付与されていない必要権限を返す
func (g *Gate) Missing(ctx context.Context) ([]Permission, error) {
	var missing []Permission
	for _, p := range Required(g.version) {
		granted, err := g.checker.IsGranted(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("権限 %s の確認に失敗: %w", p, err)
		}
		if !granted {
			missing = append(missing, p)
		}
	}
	return missing, nil
}

// Run は必要な権限を確認し、不足分を1回の要求でまとめて求める
// 要求中はブロックする。応答に含まれない権限は拒否として扱う。
func (g *Gate) Run(ctx context.Context) (Result, error) {
	result := Result{Required: Required(g.version)}

	missing, err := g.Missing(ctx)
	if err != nil {
		return result, err
	}
	if len(missing) == 0 {
		g.logger.Debug("必要な権限は全て付与済みです", "version", g.version.String())
		return result, nil
	}

	result.Requested = missing
	g.logger.Info("権限を要求します", "permissions", missing)

	answers, err := g.requester.Request(ctx, missing)
	if err != nil {
		return result, fmt.Errorf("権限の要求に失敗: %w", err)
	}

	recorded := make(map[Permission]bool, len(missing))
	for _, p := range missing {
		granted := answers[p]
		recorded[p] = granted
		if !granted {
			result.Denied = append(result.Denied, p)
		}
	}

	if g.recorder != nil {
		if err := g.recorder.Record(ctx, recorded); err != nil {
			g.logger.Warn("権限の記録に失敗", "error", err)
		}
	}

	if !result.Granted() {
		g.logger.Warn("権限が拒否されました", "denied", result.Denied)
	}
	return result, nil
}
