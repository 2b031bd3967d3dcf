package sink

import (
	"context"
	"time"

	"github.com/pkg/errors"
	qdb "github.com/questdb/go-questdb-client/v4"
)

// SenderPool hands out ILP-over-HTTP line senders. HTTP senders buffer
// rows client-side, so a small pool is enough to keep tick writes off
// any single request's latency.
type SenderPool struct {
	pool chan qdb.LineSender
	size int
	addr string
}

func NewSenderPool(size int, addr string) (*SenderPool, error) {
	pool := &SenderPool{
		pool: make(chan qdb.LineSender, size),
		size: size,
		addr: addr,
	}

	for i := 0; i < size; i++ {
		sender, err := qdb.NewLineSender(
			context.Background(),
			qdb.WithHttp(),
			qdb.WithAddress(addr),
			qdb.WithAutoFlushRows(10000),
			qdb.WithRequestTimeout(60*time.Second),
		)
		if err != nil {
			return nil, errors.Wrapf(err, "creating sender %d", i)
		}
		pool.pool <- sender
	}

	return pool, nil
}

func (p *SenderPool) Get() qdb.LineSender {
	return <-p.pool
}

func (p *SenderPool) Return(sender qdb.LineSender) {
	p.pool <- sender
}

func (p *SenderPool) Close() {
	close(p.pool)
	for sender := range p.pool {
		sender.Close(context.Background())
	}
}
