package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/practicecoach-next/internal/config"
	"github.com/practicecoach-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 资金相关任务队列
	CriticalQueue = constants.QueueCritical
)

// Client 队列客户端封装
type Client struct {
	client        *asynq.Client
	enabled       bool
	defaultQueue  string
	criticalQueue string
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false, defaultQueue: DefaultQueue, criticalQueue: CriticalQueue}, nil
	}
	opt := buildRedisOpt(cfg)
	client := asynq.NewClient(opt)
	return &Client{
		client:        client,
		enabled:       true,
		defaultQueue:  DefaultQueue,
		criticalQueue: CriticalQueue,
	}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueuePaymentSucceeded 推送支付成功入账任务，按支付事件ID去重
func (c *Client) EnqueuePaymentSucceeded(payload PaymentSucceededPayload) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewPaymentSucceededTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(task,
		asynq.Queue(c.criticalQueue),
		asynq.TaskID(taskID(TaskCommissionPaymentSucceeded, payload.Provider, payload.ProviderEventID)),
	)
}

// EnqueueRefund 推送退款处理任务，按退款事件ID去重
func (c *Client) EnqueueRefund(payload RefundPayload) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewRefundTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(task,
		asynq.Queue(c.criticalQueue),
		asynq.TaskID(taskID(TaskCommissionRefund, payload.Provider, payload.RefundEventID)),
	)
}

// EnqueueApprove 在冻结截止时间推送确认任务
func (c *Client) EnqueueApprove(payload ApprovePayload, processAt time.Time) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewApproveTask(payload)
	if err != nil {
		return err
	}
	options := []asynq.Option{
		asynq.Queue(c.defaultQueue),
		asynq.TaskID(taskID(TaskCommissionApprove, payload.IdempotencyKey)),
	}
	if processAt.After(time.Now()) {
		options = append(options, asynq.ProcessAt(processAt))
	}
	return c.enqueue(task, options...)
}

// enqueue 推送任务，重复任务ID视为已入队
func (c *Client) enqueue(task *asynq.Task, opts ...asynq.Option) error {
	_, err := c.client.Enqueue(task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

func taskID(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		cleaned = append(cleaned, strings.TrimSpace(part))
	}
	return strings.Join(cleaned, ":")
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 10
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{DefaultQueue: 1, CriticalQueue: 2}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
