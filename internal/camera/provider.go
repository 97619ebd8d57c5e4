package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gymcamera/internal/lifecycle"
	"gymcamera/internal/logging"

	"github.com/google/uuid"
)

// UseCase はカメラセッションに束縛できる処理（プレビュー・静止画キャプチャ）
type UseCase interface {
	// Name はログ用の名前を返す
	Name() string

	attach(src Source, cam Camera)
	detach()
}

// ProviderConfig はプロバイダーの初期化設定
type ProviderConfig struct {
	Discovery Discovery             // デバイス検出
	Factory   *SourceFactory        // ソース作成
	Settings  Settings              // 全カメラ共通の解像度とフレームレート
	Facings   map[string]LensFacing // デバイスパスごとのレンズ向きの上書き
	Logger    *logging.Logger
}

// Provider はプロセス内のカメラ一覧と、スコープに束縛されたセッションを管理する
type Provider struct {
	factory *SourceFactory
	logger  *logging.Logger

	mu      sync.Mutex
	cameras []Camera
	session *session
}

// session は1台のカメラと、それに束縛されたユースケース
type session struct {
	camera     Camera
	source     Source
	scope      *lifecycle.Scope
	useCases   []UseCase
	removeHook func()
}

// BoundCamera は束縛が成功したカメラのハンドル
type BoundCamera struct {
	Camera Camera
}

// NewProvider はデバイスを検出してプロバイダーを作成する
// カメラが1台も無くてもエラーにはしない。束縛時に ErrNoCameraAvailable となる。
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if cfg.Discovery == nil {
		return nil, errors.New("discovery is required")
	}
	if cfg.Factory == nil {
		cfg.Factory = NewSourceFactory()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	devices, err := cfg.Discovery.ScanDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("カメラの検出に失敗: %w", err)
	}

	p := &Provider{
		factory: cfg.Factory,
		logger:  cfg.Logger.WithComponent("camera-provider"),
	}

	for _, device := range devices {
		info, err := cfg.Discovery.GetDeviceInfo(ctx, device)
		if err != nil {
			p.logger.Warn("デバイス情報の取得に失敗", "device", device, "error", err)
			continue
		}
		p.cameras = append(p.cameras, newCamera(info, cfg.Settings))
	}

	// 明示的な指定を優先し、背面カメラが無ければ最初のカメラを背面として扱う
	for i := range p.cameras {
		if facing, ok := cfg.Facings[p.cameras[i].Device]; ok {
			p.cameras[i].Facing = facing
		}
	}
	if !hasFacing(p.cameras, LensFacingBack) && len(p.cameras) > 0 {
		if _, overridden := cfg.Facings[p.cameras[0].Device]; !overridden {
			p.cameras[0].Facing = LensFacingBack
		}
	}

	for _, cam := range p.cameras {
		p.logger.Info("カメラを検出しました", "id", cam.ID, "name", cam.Name, "device", cam.Device, "facing", cam.Facing)
	}
	return p, nil
}

func newCamera(info *DeviceInfo, settings Settings) Camera {
	sourceType := SourceTypeUSB
	if info.Driver == DriverMock {
		sourceType = SourceTypeFake
	}
	facing := info.Facing
	if facing == "" {
		facing = LensFacingExternal
	}
	return Camera{
		ID:       uuid.New().String(),
		Name:     info.Name,
		Device:   info.Device,
		Facing:   facing,
		Type:     sourceType,
		FPS:      settings.FPS,
		Width:    settings.Width,
		Height:   settings.Height,
		Status:   StatusInactive,
		LastSeen: time.Now(),
	}
}

func hasFacing(cameras []Camera, facing LensFacing) bool {
	for _, cam := range cameras {
		if cam.Facing == facing {
			return true
		}
	}
	return false
}

// Cameras は検出済みカメラの一覧を返す。束縛中のカメラは StatusActive になる
func (p *Provider) Cameras() []Camera {
	p.mu.Lock()
	defer p.mu.Unlock()

	cameras := make([]Camera, len(p.cameras))
	copy(cameras, p.cameras)
	if p.session != nil {
		for i := range cameras {
			if cameras[i].ID == p.session.camera.ID {
				cameras[i].Status = p.session.source.Status()
			}
		}
	}
	return cameras
}

// HasCamera はセレクターに一致するカメラがあるかを返す
func (p *Provider) HasCamera(selector CameraSelector) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(selector.filter(p.cameras)) > 0
}

// BindToLifecycle はセレクターで選んだカメラを起動し、ユースケースをスコープに束縛する
// スコープが破棄されると自動で解放される。
func (p *Provider) BindToLifecycle(scope *lifecycle.Scope, selector CameraSelector, useCases ...UseCase) (*BoundCamera, error) {
	if len(useCases) == 0 {
		return nil, ErrNoUseCases
	}
	if !scope.Alive() {
		return nil, ErrScopeDestroyed
	}

	bound, created, err := p.bind(scope, selector, useCases)
	if err != nil {
		return nil, err
	}

	// スコープが既に破棄されていると OnDestroy は即座に実行されるため、ロックの外で登録する
	if created != nil {
		remove := scope.OnDestroy(func() {
			p.unbindSession(created)
		})
		p.mu.Lock()
		created.removeHook = remove
		p.mu.Unlock()
	}

	// 束縛中にスコープが破棄された場合、セッションは解放済み
	if !scope.Alive() {
		return nil, ErrScopeDestroyed
	}
	return bound, nil
}

func (p *Provider) bind(scope *lifecycle.Scope, selector CameraSelector, useCases []UseCase) (*BoundCamera, *session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := selector.filter(p.cameras)
	if len(candidates) == 0 {
		return nil, nil, ErrNoCameraAvailable
	}
	cam := candidates[0]

	current := p.session
	if current != nil && (current.scope != scope || current.camera.ID != cam.ID) {
		for _, uc := range useCases {
			if current.contains(uc) {
				return nil, nil, fmt.Errorf("%w: %s", ErrUseCaseAlreadyBound, uc.Name())
			}
		}
		return nil, nil, ErrSessionConflict
	}

	var created *session
	if current == nil {
		src, err := p.factory.Create(cam, p.logger)
		if err != nil {
			return nil, nil, err
		}
		if err := src.Start(scope.Context()); err != nil {
			return nil, nil, err
		}

		created = &session{camera: cam, source: src, scope: scope}
		current = created
		p.session = current
	}

	for _, uc := range useCases {
		if current.contains(uc) {
			continue
		}
		uc.attach(current.source, cam)
		current.useCases = append(current.useCases, uc)
	}

	p.logger.Info("カメラを束縛しました", "camera", cam.Name, "scope", scope.Name(), "use_cases", len(current.useCases))
	return &BoundCamera{Camera: cam}, created, nil
}

// IsBound はユースケースが束縛中かを返す
func (p *Provider) IsBound(uc UseCase) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session != nil && p.session.contains(uc)
}

// Unbind は指定したユースケースを解放する。ユースケースが無くなればカメラも停止する
func (p *Provider) Unbind(useCases ...UseCase) {
	p.mu.Lock()
	s := p.session
	if s == nil {
		p.mu.Unlock()
		return
	}

	kept := s.useCases[:0]
	var removed []UseCase
	for _, uc := range s.useCases {
		if containsUseCase(useCases, uc) {
			removed = append(removed, uc)
			continue
		}
		kept = append(kept, uc)
	}
	s.useCases = kept
	empty := len(kept) == 0
	if empty {
		p.session = nil
	}
	p.mu.Unlock()

	for _, uc := range removed {
		uc.detach()
	}
	if empty {
		p.stopSession(s)
	}
}

// UnbindAll は全てのユースケースを解放し、カメラを停止する
func (p *Provider) UnbindAll() {
	p.mu.Lock()
	s := p.session
	p.session = nil
	p.mu.Unlock()

	if s == nil {
		return
	}
	for _, uc := range s.useCases {
		uc.detach()
	}
	p.stopSession(s)
}

// unbindSession はスコープ破棄時に、そのスコープのセッションがまだ有効なら解放する
func (p *Provider) unbindSession(s *session) {
	p.mu.Lock()
	if p.session != s {
		p.mu.Unlock()
		return
	}
	p.session = nil
	p.mu.Unlock()

	for _, uc := range s.useCases {
		uc.detach()
	}
	p.stopSession(s)
}

func (p *Provider) stopSession(s *session) {
	p.mu.Lock()
	remove := s.removeHook
	p.mu.Unlock()
	if remove != nil {
		remove()
	}
	if err := s.source.Stop(context.Background()); err != nil {
		p.logger.Warn("カメラの停止に失敗", "camera", s.camera.Name, "error", err)
	}
	p.logger.Info("カメラを解放しました", "camera", s.camera.Name, "scope", s.scope.Name())
}

func (s *session) contains(uc UseCase) bool {
	return containsUseCase(s.useCases, uc)
}

func containsUseCase(list []UseCase, uc UseCase) bool {
	for _, u := range list {
		if u == uc {
			return true
		}
	}
	return false
}

// ProviderFuture はプロバイダーの非同期取得結果
type ProviderFuture struct {
	done      chan struct{}
	mu        sync.Mutex
	provider  *Provider
	err       error
	completed bool
	listeners []futureListener
}

type futureListener struct {
	fn   func()
	exec lifecycle.Executor
}

// NewProviderFuture はバックグラウンドでプロバイダーを初期化する
func NewProviderFuture(ctx context.Context, cfg ProviderConfig) *ProviderFuture {
	f := &ProviderFuture{done: make(chan struct{})}
	go func() {
		provider, err := NewProvider(ctx, cfg)
		f.complete(provider, err)
	}()
	return f
}

// AddListener は初期化完了後に fn を exec 上で実行する
// 既に完了している場合は即座に exec に投入する。
func (f *ProviderFuture) AddListener(fn func(), exec lifecycle.Executor) {
	f.mu.Lock()
	if !f.completed {
		f.listeners = append(f.listeners, futureListener{fn: fn, exec: exec})
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	exec.Execute(fn)
}

// Get は初期化の完了を待ってプロバイダーを返す
func (f *ProviderFuture) Get() (*Provider, error) {
	<-f.done
	return f.provider, f.err
}

// Done は初期化完了時にクローズされるチャンネルを返す
func (f *ProviderFuture) Done() <-chan struct{} {
	return f.done
}

func (f *ProviderFuture) complete(provider *Provider, err error) {
	f.mu.Lock()
	f.provider = provider
	f.err = err
	f.completed = true
	listeners := f.listeners
	f.listeners = nil
	close(f.done)
	f.mu.Unlock()

	for _, l := range listeners {
		l.exec.Execute(l.fn)
	}
}

var (
	instanceMu sync.Mutex
	instance   *ProviderFuture
)

// GetInstance はプロセスで共有するプロバイダーの Future を返す
// 初回呼び出しの設定で初期化し、以降は同じ Future を返す。
func GetInstance(ctx context.Context, cfg ProviderConfig) *ProviderFuture {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == nil {
		instance = NewProviderFuture(ctx, cfg)
	}
	return instance
}

// resetInstance は共有インスタンスを破棄する（テスト用）
func resetInstance() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = nil
}
