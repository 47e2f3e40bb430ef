package constants

// 归因 Cookie 名称常量
const (
	AttributionCookieFirstTouch = "pc_attrib_ft"
	AttributionCookieLastTouch  = "pc_attrib_lt"
)

// 归因窗口默认天数
const (
	AttributionFirstTouchDaysDefault = 90
	AttributionLastTouchDaysDefault  = 7
)

// 归因分析事件名称常量
const (
	AnalyticsEventAttributionTouch = "attribution_touch"
	AnalyticsEventCommission       = "commission_event"
)

// 请求头常量
const (
	HeaderVisitorKey  = "X-Visitor-Key"
	HeaderRequestID   = "X-Request-ID"
	HeaderIngestToken = "X-Ingest-Token"
)

// 佣金默认策略
const (
	CommissionDefaultFirstBps     = 3000
	CommissionDefaultRecurringBps = 2000
	CommissionHoldDaysDefault     = 14
	CommissionClawbackDaysDefault = 60
)

// 佣金事件备注常量
const (
	CommissionNoteRefundBeforeHold = "refund_before_hold"
)

// 支付事件状态常量
const (
	PaymentEventStatusSucceeded = "succeeded"
)

// 异步任务类型常量
const (
	TaskCommissionPaymentSucceeded = "commission:payment_succeeded"
	TaskCommissionRefund           = "commission:refund"
	TaskCommissionApprove          = "commission:approve"
)

// 队列名称常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault          = "pc"
	CacheKeyCommissionPolicy    = "commission:policy"
	AnalyticsStreamDefault      = "analytics:events"
	AnalyticsStreamMaxLenApprox = 100000
)

// 设置键常量
const (
	SettingKeyCommissionPolicy = "commission_policy"
)

// gin 上下文键常量
const (
	ContextKeyRequestID    = "request_id"
	ContextKeyTouchSignal  = "attribution_signal"
	ContextKeyTouchHistory = "attribution_history"
)
