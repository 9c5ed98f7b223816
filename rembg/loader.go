package rembg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var ErrUnavailable = errors.New("background remover unavailable")

// Provider 获取（加载）去背景能力，可能很慢，也可能失败
type Provider func(ctx context.Context) (Remover, error)

type State int

const (
	StateUnset State = iota
	StateReady
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unset"
	}
}

// Handle 是一次加载的结果：Ready 时持有 Remover，Unavailable 时持有失败原因
type Handle struct {
	remover Remover
	err     error
}

// ReadyHandle 构造可用的 Handle
func ReadyHandle(r Remover) Handle {
	return Handle{remover: r}
}

// UnavailableHandle 构造不可用的 Handle
func UnavailableHandle(cause error) Handle {
	if cause == nil {
		cause = ErrUnavailable
	}
	return Handle{err: cause}
}

func (h Handle) Ready() bool {
	return h.remover != nil
}

func (h Handle) Remover() Remover {
	return h.remover
}

// Err 不可用的原因，Ready 时为 nil
func (h Handle) Err() error {
	if h.Ready() {
		return nil
	}
	if h.err == nil {
		return ErrUnavailable
	}
	return h.err
}

// Loader 懒加载去背景能力：第一次使用时加载且只加载一次
//
// 加载失败不会返回错误，而是记录日志并缓存 Unavailable 状态；
// 之后的 Ensure 直接返回缓存结果，只有 Reload 才会重新尝试。
// 并发的首次调用会被互斥锁串行化，所有调用方看到同一个结果。
type Loader struct {
	provider    Provider
	logger      *zap.Logger
	loadTimeout time.Duration

	mu     sync.Mutex
	state  State
	handle Handle
}

// DefaultLoadTimeout 单次加载的超时时间
const DefaultLoadTimeout = 2 * time.Minute

type LoaderOption func(*Loader)

// WithLoadTimeout 设置单次加载超时，<= 0 表示不限制
func WithLoadTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) { l.loadTimeout = d }
}

func NewLoader(provider Provider, logger *zap.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{provider: provider, logger: logger, loadTimeout: DefaultLoadTimeout}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Ensure 返回能力句柄，必要时触发首次加载
func (l *Loader) Ensure(ctx context.Context) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateUnset {
		l.load(ctx)
	}
	return l.handle
}

// Reload 仅在 Unavailable 时重新加载；Ready 或尚未加载时行为同 Ensure
func (l *Loader) Reload(ctx context.Context) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateReady {
		l.load(ctx)
	}
	return l.handle
}

// State 当前状态，不会触发加载
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// ScheduleReload 按 cron 表达式定期重试不可用的能力
func (l *Loader) ScheduleReload(c *cron.Cron, spec string) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		if l.State() != StateUnavailable {
			return
		}
		l.logger.Info("retrying background remover initialization")
		l.Reload(context.Background())
	})
	if err != nil {
		return 0, fmt.Errorf("schedule reload %q: %w", spec, err)
	}
	return id, nil
}

// load 调用方需持有 l.mu
// 加载结果会被所有调用方共享，因此不跟随触发者的取消，只受 loadTimeout 约束。
func (l *Loader) load(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if l.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.loadTimeout)
		defer cancel()
	}

	remover, err := l.acquire(ctx)
	if err != nil {
		l.logger.Error("failed to initialize background remover, falling back to original images", zap.Error(err))
		l.state = StateUnavailable
		l.handle = UnavailableHandle(fmt.Errorf("%w: %w", ErrUnavailable, err))
		return
	}

	l.logger.Info("background remover ready")
	l.state = StateReady
	l.handle = ReadyHandle(remover)
}

func (l *Loader) acquire(ctx context.Context) (remover Remover, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			remover, err = nil, fmt.Errorf("provider panicked: %v", rec)
		}
	}()

	if l.provider == nil {
		return nil, errors.New("no provider configured")
	}
	remover, err = l.provider(ctx)
	if err != nil {
		return nil, err
	}
	if remover == nil {
		return nil, errors.New("provider returned nil remover")
	}
	return remover, nil
}
