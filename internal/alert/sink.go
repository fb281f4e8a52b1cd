package alert

import (
	"context"
)

// Sink 报警通知出口
// Notify 的失败互相隔离：一个 sink 出错不影响其他 sink 收到同一条通知
type Sink interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}
