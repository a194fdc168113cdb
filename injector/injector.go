package injector

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-canary/logger"
)

// TrafficDecider 流量决策接口（由金丝雀路由器实现）
// ShouldInject 返回 false 时包装器透传原 handler 链
type TrafficDecider interface {
	ShouldInject(route string) bool
}

// Stats 注入器聚合统计
type Stats struct {
	ActiveCount   int     `json:"active_count"`
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	AvgErrorRate  float64 `json:"avg_error_rate"`
}

// InjectionInfo 注入记录的只读快照
type InjectionInfo struct {
	ID           string       `json:"id"`
	Patch        HandlerPatch `json:"patch"`
	AttachedAt   time.Time    `json:"attached_at"`
	Active       bool         `json:"active"`
	RequestCount int64        `json:"request_count"`
	ErrorCount   int64        `json:"error_count"`
}

// Injector 注入器核心接口
type Injector interface {
	// Attach 校验并挂载补丁，返回注入 ID
	// 失败情形：清单/形状校验失败（ErrValidation）、源码命中黑名单
	// （ErrForbiddenConstruct）、容量已满（ErrCapacity）、路由被占用
	// （ErrRouteOccupied）
	Attach(patch HandlerPatch, callable interface{}) (string, error)

	// Detach 逻辑摘除（active=false，包装器此后透传；不物理移除）
	Detach(injectionID string) error

	// Replace 替换可调用体，计数器保持连续（不清零）
	Replace(injectionID string, callable interface{}) error

	// Get 按 ID 查询注入快照
	Get(injectionID string) (InjectionInfo, bool)

	// ActiveForRoute 查询路由上的活跃注入
	ActiveForRoute(route string) (InjectionInfo, bool)

	// List 所有注入快照（含已摘除的，按挂载时间排序）
	List() []InjectionInfo

	// Stats 聚合统计
	Stats() Stats

	// EmergencyStopAll 紧急停用所有补丁（幂等，熔断器的最后防线）
	EmergencyStopAll()

	// Middleware 返回路由级 gin 中间件（补丁包装器），见 wrapper.go
	Middleware(route string) gin.HandlerFunc
}

// injection 注入记录（内部，含热路径原子计数器）
type injection struct {
	id         string
	patch      HandlerPatch
	attachedAt time.Time

	// callable 受 mu 保护（Replace 可换），active/计数器用原子操作
	mu       sync.RWMutex
	callable PatchFunc

	active       atomic.Bool
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func (in *injection) getCallable() PatchFunc {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.callable
}

func (in *injection) snapshot() InjectionInfo {
	return InjectionInfo{
		ID:           in.id,
		Patch:        in.patch,
		AttachedAt:   in.attachedAt,
		Active:       in.active.Load(),
		RequestCount: in.requestCount.Load(),
		ErrorCount:   in.errorCount.Load(),
	}
}

// manager Injector 实现
type manager struct {
	config  Config
	clock   clockwork.Clock
	logger  *logger.CtxZapLogger
	decider TrafficDecider

	mu         sync.RWMutex
	records    map[string]*injection // 注入 ID -> 记录
	byRoute    map[string]*injection // 路由 -> 当前注入（含已摘除的，最后挂载者）
}

// Option 注入器选项
type Option func(*manager)

// WithClock 注入时钟（测试用）
func WithClock(clock clockwork.Clock) Option {
	return func(m *manager) { m.clock = clock }
}

// WithLogger 注入 Logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(m *manager) { m.logger = l }
}

// WithTrafficDecider 注入流量决策器（金丝雀路由器）
func WithTrafficDecider(d TrafficDecider) Option {
	return func(m *manager) { m.decider = d }
}

// New 创建注入器
func New(cfg Config, opts ...Option) (Injector, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, ErrValidation.WithCause(err)
	}

	m := &manager{
		config:  cfg,
		clock:   clockwork.NewRealClock(),
		logger:  logger.GetLogger("injector"),
		records: make(map[string]*injection),
		byRoute: make(map[string]*injection),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Attach 校验并挂载补丁
func (m *manager) Attach(patch HandlerPatch, callable interface{}) (string, error) {
	if err := patch.Validate(); err != nil {
		return "", ErrValidation.WithCause(err)
	}

	if m.config.ScanSource != nil && *m.config.ScanSource && patch.Source != "" {
		if hit := ScanSource(patch.Source); hit != "" {
			return "", ErrForbiddenConstruct.WithData("construct", hit)
		}
	}

	fn, err := ValidateCallable(callable)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeCountLocked() >= m.config.MaxActivePatches {
		return "", ErrCapacity.WithData("max_active_patches", m.config.MaxActivePatches)
	}
	if existing, ok := m.byRoute[patch.TargetRoute]; ok && existing.active.Load() {
		return "", ErrRouteOccupied.WithData("route", patch.TargetRoute)
	}

	in := &injection{
		id:         uuid.New().String(),
		patch:      patch,
		attachedAt: m.clock.Now(),
		callable:   fn,
	}
	in.active.Store(true)
	m.records[in.id] = in
	m.byRoute[patch.TargetRoute] = in

	m.logger.Info("patch attached",
		zap.String("injection_id", in.id),
		zap.String("patch", patch.Name),
		zap.String("route", patch.TargetRoute))
	return in.id, nil
}

// Detach 逻辑摘除
// 包装器在每次调用时检查 active 标志并透传，补丁保持在 handler 链中
func (m *manager) Detach(injectionID string) error {
	m.mu.RLock()
	in, ok := m.records[injectionID]
	m.mu.RUnlock()
	if !ok {
		return ErrInjectionNotFound.WithData("injection_id", injectionID)
	}

	if in.active.CompareAndSwap(true, false) {
		m.logger.Info("patch detached",
			zap.String("injection_id", injectionID),
			zap.String("route", in.patch.TargetRoute))
	}
	return nil
}

// Replace 替换可调用体（计数器连续）
func (m *manager) Replace(injectionID string, callable interface{}) error {
	fn, err := ValidateCallable(callable)
	if err != nil {
		return err
	}

	m.mu.RLock()
	in, ok := m.records[injectionID]
	m.mu.RUnlock()
	if !ok {
		return ErrInjectionNotFound.WithData("injection_id", injectionID)
	}

	in.mu.Lock()
	in.callable = fn
	in.mu.Unlock()

	m.logger.Info("patch callable replaced", zap.String("injection_id", injectionID))
	return nil
}

// Get 按 ID 查询
func (m *manager) Get(injectionID string) (InjectionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.records[injectionID]
	if !ok {
		return InjectionInfo{}, false
	}
	return in.snapshot(), true
}

// ActiveForRoute 查询路由上的活跃注入
func (m *manager) ActiveForRoute(route string) (InjectionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.byRoute[route]
	if !ok || !in.active.Load() {
		return InjectionInfo{}, false
	}
	return in.snapshot(), true
}

// List 所有注入快照
func (m *manager) List() []InjectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]InjectionInfo, 0, len(m.records))
	for _, in := range m.records {
		infos = append(infos, in.snapshot())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].AttachedAt.Before(infos[j].AttachedAt)
	})
	return infos
}

// Stats 聚合统计
func (m *manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Stats
	for _, in := range m.records {
		if in.active.Load() {
			s.ActiveCount++
		}
		s.TotalRequests += in.requestCount.Load()
		s.TotalErrors += in.errorCount.Load()
	}
	if s.TotalRequests > 0 {
		s.AvgErrorRate = float64(s.TotalErrors) / float64(s.TotalRequests)
	}
	return s
}

// EmergencyStopAll 紧急停用所有补丁（幂等）
func (m *manager) EmergencyStopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stopped := 0
	for _, in := range m.records {
		if in.active.CompareAndSwap(true, false) {
			stopped++
		}
	}
	if stopped > 0 {
		m.logger.Warn("emergency stop: all patches deactivated", zap.Int("stopped", stopped))
	}
}

// activeCountLocked 活跃补丁数（调用方持有 mu）
func (m *manager) activeCountLocked() int {
	count := 0
	for _, in := range m.records {
		if in.active.Load() {
			count++
		}
	}
	return count
}

// lookupRoute 请求路径上的查找（热路径，只读锁）
func (m *manager) lookupRoute(route string) (*injection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.byRoute[route]
	return in, ok
}
