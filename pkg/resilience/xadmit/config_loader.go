package xadmit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// PolicyProvider 策略提供器接口，从外部源加载准入策略
type PolicyProvider interface {
	// Load 加载策略
	Load() (Policy, error)

	// Watch 监视策略变更，返回变更通道
	// 调用方在不再需要时取消 context 以停止监视
	Watch(ctx context.Context) (<-chan PolicyChange, error)
}

// PolicyChange 策略变更事件
type PolicyChange struct {
	// NewPolicy 新策略
	NewPolicy Policy
	// Err 如果加载失败
	Err error
}

// watchDebounce 文件变更防抖时间
// 编辑器保存可能触发多个事件，合并为一次重载
const watchDebounce = 100 * time.Millisecond

// LoadPolicyBytes 从字节数据解析策略
//
// 覆盖语义为字段级：数据中出现的键覆盖默认值，缺失的键保留默认，
// 因此配置文件可以只写需要调整的字段。format 为 "yaml" 或 "json"。
func LoadPolicyBytes(data []byte, format string) (Policy, error) {
	var parser koanf.Parser
	switch strings.ToLower(format) {
	case "yaml", "yml":
		parser = kyaml.Parser()
	case "json":
		parser = kjson.Parser()
	default:
		return Policy{}, fmt.Errorf("%w: unsupported format %q", ErrInvalidPolicy, format)
	}

	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return Policy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
		}
	}

	policy := DefaultPolicy()
	if err := k.Unmarshal("", &policy); err != nil {
		return Policy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// FilePolicyProvider 基于文件的策略提供器
// 根据扩展名自动识别 YAML/JSON 格式
type FilePolicyProvider struct {
	path   string
	format string
}

// 编译时接口检查
var _ PolicyProvider = (*FilePolicyProvider)(nil)

// NewFilePolicyProvider 创建文件策略提供器
func NewFilePolicyProvider(path string) (*FilePolicyProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty policy file path", ErrInvalidPolicy)
	}

	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	case ".json":
		format = "json"
	default:
		return nil, fmt.Errorf("%w: unsupported policy file extension %q", ErrInvalidPolicy, filepath.Ext(path))
	}

	return &FilePolicyProvider{path: path, format: format}, nil
}

// Load 从文件加载策略
func (p *FilePolicyProvider) Load() (Policy, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return LoadPolicyBytes(data, p.format)
}

// Watch 监视策略文件变更
//
// 监视文件所在目录而非文件本身：编辑器保存常以"写临时文件再
// rename"的方式落盘，直接监视文件会丢失事件。
// 变更投递为非阻塞、丢旧保新：策略是覆盖语义，只需最新值。
//
// 重载与投递都在监视 goroutine 内完成，通道只有这一个发送方，
// 关闭通道不会与在途的发送竞争。
func (p *FilePolicyProvider) Watch(ctx context.Context) (<-chan PolicyChange, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		closeErr := watcher.Close()
		return nil, errors.Join(fmt.Errorf("watch directory %s: %w", dir, err), closeErr)
	}

	ch := make(chan PolicyChange, 1)
	filename := filepath.Base(p.path)

	go func() {
		defer close(ch)
		defer func() { _ = watcher.Close() }()

		// 防抖计时器惰性创建；debounce 为 nil 时对应 select 分支永不就绪
		var timer *time.Timer
		var debounce <-chan time.Time
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filename {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}

				// 防抖：重置计时器，窗口内多次变更合并为一次重载
				if timer == nil {
					timer = time.NewTimer(watchDebounce)
					debounce = timer.C
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(watchDebounce)
				}

			case <-debounce:
				debounce = nil
				timer = nil

				var change PolicyChange
				if policy, loadErr := p.Load(); loadErr != nil {
					change = PolicyChange{Err: loadErr}
				} else {
					change = PolicyChange{NewPolicy: policy}
				}
				deliverLatest(ch, change)

			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				deliverLatest(ch, PolicyChange{Err: fmt.Errorf("watch error: %w", watchErr)})
			}
		}
	}()

	return ch, nil
}

// deliverLatest 非阻塞投递，丢弃未消费的旧事件
func deliverLatest(ch chan PolicyChange, change PolicyChange) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- change:
	default:
	}
}

// FollowPolicy 持续将提供器的策略变更应用到引擎
//
// 阻塞直到 ctx 取消，通常在独立 goroutine 中运行。
// 加载失败或校验失败的变更被跳过，引擎保持上一份有效策略。
func FollowPolicy(ctx context.Context, engine *Engine, provider PolicyProvider) error {
	ch, err := provider.Watch(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-ch:
			if !ok {
				return nil
			}
			if change.Err != nil {
				continue
			}
			// SetPolicy 自带校验，失败时保持旧策略
			_ = engine.SetPolicy(change.NewPolicy)
		}
	}
}
