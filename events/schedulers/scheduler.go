// Schedulers run event work with per-key ordering.
//
// Work added for the same key (a chat) is started strictly in the order it was added. Work for different keys has no ordering relative to each other.
package schedulers

import (
	"context"

	"github.com/kantek-org/kantek/events"
)

type Scheduler interface {
	AddWork(ctx context.Context, key string, val *events.Event) error
	Shutdown()
}
