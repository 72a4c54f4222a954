package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"product-catalog-server-go/internal/platform/logging"
)

const defaultQueueSize = 256

// Bus 同步/异步事件总线，异步事件由固定数量的worker投递
type Bus struct {
	bus       evbus.Bus
	logger    *logging.Logger
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	workers   sync.WaitGroup
	pending   sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	// mu guards stopped and orders pending.Add before Stop's pending.Wait.
	mu      sync.Mutex
	stopped bool
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// New 创建事件总线，workerNum<=0 时使用默认值
func New(workerNum int, logger *logging.Logger) *Bus {
	if workerNum <= 0 {
		workerNum = 2
	}
	return &Bus{
		bus:       evbus.New(),
		logger:    logger,
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, defaultQueueSize),
		stopChan:  make(chan struct{}),
	}
}

// Start 启动异步处理
func (b *Bus) Start() {
	b.startOnce.Do(func() {
		for i := 0; i < b.workerNum; i++ {
			b.workers.Add(1)
			go b.worker()
		}
	})
}

// Stop 等待已入队事件处理完毕后停止worker
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		b.mu.Unlock()

		b.pending.Wait()
		close(b.stopChan)
		b.workers.Wait()
	})
}

func (b *Bus) worker() {
	defer b.workers.Done()

	for {
		select {
		case <-b.stopChan:
			return
		case event := <-b.workChan:
			b.deliver(event)
		}
	}
}

func (b *Bus) deliver(event asyncEvent) {
	defer b.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorTag("事件", "event handler panic: topic=%s panic=%v", event.topic, r)
		}
	}()
	b.bus.Publish(event.topic, event.args...)
}

// Publish 发布同步事件
func (b *Bus) Publish(topic string, args ...interface{}) {
	b.bus.Publish(topic, args...)
}

// PublishAsync 异步发布事件，队列满或总线已停止时丢弃
func (b *Bus) PublishAsync(topic string, args ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}

	b.pending.Add(1)
	select {
	case b.workChan <- asyncEvent{topic: topic, args: args}:
	default:
		b.pending.Done()
		b.logger.WarnTag("事件", "event queue full, dropping event: topic=%s", topic)
	}
}

// Subscribe 订阅事件
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.Subscribe(topic, fn)
}

// Unsubscribe 取消订阅
func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.bus.Unsubscribe(topic, fn)
}

// HasCallback 检查是否有订阅者
func (b *Bus) HasCallback(topic string) bool {
	return b.bus.HasCallback(topic)
}

// Wait 等待已发布的异步事件处理完成
func (b *Bus) Wait() {
	b.pending.Wait()
}
