package camera

import (
	"fmt"
	"sort"
	"sync"

	"gymcamera/internal/logging"
)

// SourceCreator はソース作成関数の型
type SourceCreator func(cam Camera, logger *logging.Logger) (Source, error)

// SourceFactory はソースタイプごとにソースを作成する
type SourceFactory struct {
	mu       sync.RWMutex
	creators map[SourceType]SourceCreator
}

// NewSourceFactory はUSBカメラと疑似カメラを登録したファクトリーを作成する
func NewSourceFactory() *SourceFactory {
	factory := &SourceFactory{
		creators: make(map[SourceType]SourceCreator),
	}

	factory.Register(SourceTypeUSB, func(cam Camera, logger *logging.Logger) (Source, error) {
		if cam.Device == "" {
			return nil, fmt.Errorf("USBカメラの作成にはデバイスパスが必要です")
		}
		return NewUSBSource(cam, logger), nil
	})
	factory.Register(SourceTypeFake, func(cam Camera, logger *logging.Logger) (Source, error) {
		return NewFakeSource(cam, logger), nil
	})

	return factory
}

// Register はソース作成関数を登録する。同じタイプは上書きする
func (f *SourceFactory) Register(sourceType SourceType, creator SourceCreator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[sourceType] = creator
}

// Create はカメラのタイプに応じたソースを作成する
func (f *SourceFactory) Create(cam Camera, logger *logging.Logger) (Source, error) {
	f.mu.RLock()
	creator, exists := f.creators[cam.Type]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("サポートされていないソースタイプ: %s", cam.Type)
	}
	return creator(cam, logger)
}

// SupportedTypes はサポートされているソースタイプを返す
func (f *SourceFactory) SupportedTypes() []SourceType {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]SourceType, 0, len(f.creators))
	for sourceType := range f.creators {
		types = append(types, sourceType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
