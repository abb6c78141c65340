package enums

// OutboxEventType identifies the domain events emitted through the outbox.
type OutboxEventType string

const (
	EventOrderCreated   OutboxEventType = "order.created"
	EventOrderPaid      OutboxEventType = "order.paid"
	EventOrderCancelled OutboxEventType = "order.cancelled"
	EventOrderDelivered OutboxEventType = "order.delivered"
	EventOrderCompleted OutboxEventType = "order.completed"
	EventPaymentFailed  OutboxEventType = "payment.failed"
	EventPayoutPaid     OutboxEventType = "payout.paid"
	EventPayoutFailed   OutboxEventType = "payout.failed"
)

// OutboxAggregateType identifies the aggregate an outbox event refers to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
	AggregatePayout  OutboxAggregateType = "payout"
)
