package gateway

import (
	"context"
	"log/slog"
	"strings"

	"marketwatch/internal/watch"

	goredis "github.com/go-redis/redis/v8"
)

// reportPattern matches the per-symbol report channels written by the
// Redis store.
const reportPattern = "report:*"

// RunRelay feeds reports published on Redis into the hub, so a gateway can
// serve clients without owning a watch loop. Blocks until ctx ends.
func RunRelay(ctx context.Context, rdb *goredis.Client, hub *Hub) {
	ps := rdb.PSubscribe(ctx, reportPattern)
	defer ps.Close()
	slog.Info("[gateway] relaying redis reports", slog.String("pattern", reportPattern))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !strings.HasPrefix(msg.Channel, "report:") {
				continue
			}
			hub.Broadcast(watch.ChannelReport, []byte(msg.Payload))
		}
	}
}
