package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// retryKeyPrefix Redis中端点重试队列的键前缀（ZSET，score为到期时间）
const retryKeyPrefix = "notify:retry:"

// NotificationService 通知服务
type NotificationService struct {
	config   *NotificationConfig
	notifier *WebhookNotifier

	// 队列和工作协程
	eventQueue chan *NotificationEvent
	retryQueue chan retryPayload

	// 生命周期
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// 可选：Redis持久化重试队列
	redisClient redisv9.UniversalClient
	// 可选：事件发布者
	publishers []Publisher

	stats   *NotificationStats
	statsMu sync.RWMutex
}

// retryPayload 表示一次端点级重试任务
type retryPayload struct {
	Event    *NotificationEvent   `json:"event"`
	Endpoint NotificationEndpoint `json:"endpoint"`
}

// Option 通知服务选项
type Option func(*NotificationService)

// WithRedis 使用Redis持久化重试任务
func WithRedis(client redisv9.UniversalClient) Option {
	return func(s *NotificationService) { s.redisClient = client }
}

// WithPublisher 追加事件发布者
func WithPublisher(p Publisher) Option {
	return func(s *NotificationService) { s.publishers = append(s.publishers, p) }
}

// WithNotifier 替换webhook投递器
func WithNotifier(n *WebhookNotifier) Option {
	return func(s *NotificationService) { s.notifier = n }
}

// NewNotificationService 创建通知服务
func NewNotificationService(config *NotificationConfig, opts ...Option) (*NotificationService, error) {
	if config == nil {
		config = DefaultNotificationConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %v", err)
	}

	stats := &NotificationStats{
		EndpointStats:  make(map[string]*EndpointStats),
		LastUpdateTime: time.Now(),
	}
	for _, endpoint := range config.Endpoints {
		stats.EndpointStats[endpoint.Name] = &EndpointStats{Name: endpoint.Name}
	}

	s := &NotificationService{
		config:     config,
		notifier:   NewWebhookNotifier(nil),
		eventQueue: make(chan *NotificationEvent, config.QueueSize),
		retryQueue: make(chan retryPayload, config.QueueSize),
		stats:      stats,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start 启动通知服务
func (s *NotificationService) Start(ctx context.Context) error {
	if !s.config.Enabled {
		logger.Info("通知服务已禁用")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("通知服务已在运行")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.wg.Add(1)
	go s.retryWorker()
	s.running = true

	logger.WithFields(logrus.Fields{
		"workers":    s.config.Workers,
		"queue_size": s.config.QueueSize,
		"endpoints":  len(s.config.Endpoints),
		"publishers": len(s.publishers),
	}).Info("通知服务已启动")
	return nil
}

// Stop 停止通知服务，未投递的内存事件被丢弃
func (s *NotificationService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	for _, p := range s.publishers {
		if err := p.Close(); err != nil {
			logger.WithField("error", err.Error()).Warn("关闭事件发布者失败")
		}
	}
	logger.Info("通知服务已停止")
	return nil
}

// Alert 发送告警事件
func (s *NotificationService) Alert(ctx context.Context, eventType, vin, commandID string) error {
	return s.SendNotification(&NotificationEvent{
		EventType: eventType,
		VIN:       vin,
		CommandID: commandID,
	})
}

// NotifyOwner 发送车主通知
func (s *NotificationService) NotifyOwner(ctx context.Context, vin, owner, subject, message string) error {
	return s.SendNotification(&NotificationEvent{
		EventType: EventTypeOwnerNotify,
		VIN:       vin,
		Owner:     owner,
		Subject:   subject,
		Message:   message,
	})
}

// SendNotification 将事件放入队列，队列满时丢弃并返回错误
func (s *NotificationService) SendNotification(event *NotificationEvent) error {
	if !s.config.Enabled {
		return nil
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return fmt.Errorf("通知服务未运行")
	}

	select {
	case s.eventQueue <- event:
		return nil
	default:
		s.statsMu.Lock()
		s.stats.TotalDropped++
		s.statsMu.Unlock()
		return fmt.Errorf("通知队列已满")
	}
}

// worker 工作协程
func (s *NotificationService) worker(workerID int) {
	defer s.wg.Done()
	logger.WithField("worker_id", workerID).Debug("通知工作协程已启动")

	for {
		select {
		case event := <-s.eventQueue:
			s.processEvent(event)
		case <-s.ctx.Done():
			return
		}
	}
}

// retryWorker 重试工作协程
func (s *NotificationService) retryWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Retry.InitialInterval)
	defer ticker.Stop()

	for {
		select {
		case payload := <-s.retryQueue:
			s.sendToEndpoint(payload.Event, payload.Endpoint)
		case <-ticker.C:
			s.loadRetryEvents()
		case <-s.ctx.Done():
			return
		}
	}
}

// processEvent 处理事件
func (s *NotificationService) processEvent(event *NotificationEvent) {
	for _, p := range s.publishers {
		if err := p.Publish(s.ctx, event); err != nil {
			logger.WithFields(logrus.Fields{
				"component":  "notification",
				"event_id":   event.EventID,
				"event_type": event.EventType,
				"vin":        event.VIN,
				"error":      err.Error(),
			}).Error("事件发布失败")
			continue
		}
		s.statsMu.Lock()
		s.stats.TotalPublished++
		s.statsMu.Unlock()
	}

	endpoints := s.config.GetEndpointsByEvent(event.EventType)
	if len(endpoints) == 0 {
		logger.WithField("event_type", event.EventType).Debug("没有端点订阅该事件类型")
		return
	}
	for _, endpoint := range endpoints {
		s.sendToEndpoint(event, endpoint)
	}
}

// sendToEndpoint 向端点发送通知
func (s *NotificationService) sendToEndpoint(event *NotificationEvent, endpoint NotificationEndpoint) {
	start := time.Now()
	status, err := s.notifier.Post(s.ctx, endpoint, event)
	elapsed := time.Since(start)

	fields := logrus.Fields{
		"component":     "notification",
		"event_id":      event.EventID,
		"event_type":    event.EventType,
		"vin":           event.VIN,
		"endpoint":      endpoint.Name,
		"status_code":   status,
		"response_time": elapsed.String(),
	}
	if err == nil {
		logger.WithFields(fields).Info("通知推送成功")
		s.updateStats(endpoint.Name, true)
		return
	}

	fields["error"] = err.Error()
	logger.WithFields(fields).Error("通知推送失败")
	s.updateStats(endpoint.Name, false)
	s.scheduleRetry(event, endpoint)
}

// scheduleRetry 安排重试，优先写入Redis，失败时回退到内存延迟
func (s *NotificationService) scheduleRetry(event *NotificationEvent, endpoint NotificationEndpoint) {
	// 每个重试任务持有独立的事件副本，原事件可能仍在其他端点投递中
	retry := *event
	retry.EndpointAttempts = make(map[string]int, len(event.EndpointAttempts)+1)
	for name, n := range event.EndpointAttempts {
		retry.EndpointAttempts[name] = n
	}
	retry.EndpointAttempts[endpoint.Name]++
	attempts := retry.EndpointAttempts[endpoint.Name]
	event = &retry

	if attempts > s.config.Retry.MaxAttempts {
		logger.WithFields(logrus.Fields{
			"event_id":     event.EventID,
			"endpoint":     endpoint.Name,
			"max_attempts": s.config.Retry.MaxAttempts,
		}).Error("通知推送失败 - 重试次数已用尽")
		return
	}

	delay := s.calculateRetryDelay(attempts - 1)
	s.statsMu.Lock()
	s.stats.TotalRetried++
	s.statsMu.Unlock()

	if s.redisClient != nil {
		b, err := json.Marshal(retryPayload{Event: event, Endpoint: endpoint})
		if err == nil {
			readyAt := time.Now().Add(delay).UnixMilli()
			z := redisv9.Z{Score: float64(readyAt), Member: string(b)}
			if err := s.redisClient.ZAdd(s.ctx, retryKeyPrefix+endpoint.Name, z).Err(); err == nil {
				return
			}
		}
	}

	go func() {
		select {
		case <-time.After(delay):
			select {
			case s.retryQueue <- retryPayload{Event: event, Endpoint: endpoint}:
			default:
				logger.WithField("event_id", event.EventID).Error("重试队列已满，丢弃事件")
			}
		case <-s.ctx.Done():
		}
	}()
}

// calculateRetryDelay 计算重试延迟
func (s *NotificationService) calculateRetryDelay(attemptCount int) time.Duration {
	delay := s.config.Retry.InitialInterval
	for i := 0; i < attemptCount; i++ {
		delay = time.Duration(float64(delay) * s.config.Retry.Multiplier)
		if delay > s.config.Retry.MaxInterval {
			return s.config.Retry.MaxInterval
		}
	}
	return delay
}

// updateStats 更新统计信息
func (s *NotificationService) updateStats(endpointName string, success bool) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	now := time.Now()
	s.stats.LastUpdateTime = now
	s.stats.TotalSent++
	if success {
		s.stats.TotalSuccess++
	} else {
		s.stats.TotalFailed++
	}

	if es, ok := s.stats.EndpointStats[endpointName]; ok {
		es.TotalSent++
		if success {
			es.TotalSuccess++
			es.LastSuccess = now
		} else {
			es.TotalFailed++
			es.LastFailure = now
		}
	}
}

// loadRetryEvents 从Redis加载到期的重试事件
func (s *NotificationService) loadRetryEvents() {
	if s.redisClient == nil {
		return
	}

	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	for _, endpoint := range s.config.Endpoints {
		key := retryKeyPrefix + endpoint.Name
		members, err := s.redisClient.ZRangeByScore(s.ctx, key, &redisv9.ZRangeBy{
			Min:   "-inf",
			Max:   now,
			Count: 100,
		}).Result()
		if err != nil || len(members) == 0 {
			continue
		}

		for _, str := range members {
			// 删除成功者获得该任务，避免多实例重复投递
			removed, err := s.redisClient.ZRem(s.ctx, key, str).Result()
			if err != nil || removed == 0 {
				continue
			}
			var payload retryPayload
			if err := json.Unmarshal([]byte(str), &payload); err != nil {
				continue
			}
			s.sendToEndpoint(payload.Event, payload.Endpoint)
		}
	}
}

// GetStats 统计数据快照
func (s *NotificationService) GetStats() NotificationStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	snapshot := *s.stats
	snapshot.EndpointStats = make(map[string]*EndpointStats, len(s.stats.EndpointStats))
	for k, v := range s.stats.EndpointStats {
		es := *v
		snapshot.EndpointStats[k] = &es
	}
	return snapshot
}

// GetQueueLength 获取队列长度
func (s *NotificationService) GetQueueLength() int {
	return len(s.eventQueue)
}

// IsRunning 检查服务是否运行
func (s *NotificationService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
