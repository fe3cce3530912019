package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/BrianLudlam/block-racer/log"
)

// BroadcastServer fans one source channel out to any number of listeners.
// A listener that does not consume within the send timeout is skipped for
// that message, so one slow consumer cannot stall the others.
type BroadcastServer[T any] interface {
	Subscribe() <-chan T
	CancelSubscription(<-chan T)
	Close()
}

type broadcastServer[T any] struct {
	name           string
	source         <-chan T
	listeners      []chan T
	addListener    chan chan T
	removeListener chan (<-chan T)
	ctx            context.Context
	cancel         context.CancelFunc
	numRcv         int
	numSnd         int
	numSkip        int
}

func (b *broadcastServer[T]) Subscribe() <-chan T {
	ch := make(chan T)
	b.addListener <- ch
	return ch
}

func (b *broadcastServer[T]) CancelSubscription(ch <-chan T) {
	b.removeListener <- ch
}

func (b *broadcastServer[T]) Close() {
	log.Info("Closing broadcast server",
		log.String("name", b.name),
		log.Int("rcv", b.numRcv), log.Int("snd", b.numSnd), log.Int("skip", b.numSkip))
	b.cancel()
}

func NewBroadcastServer[T any](name string, source <-chan T) BroadcastServer[T] {
	ctx, cancel := context.WithCancel(context.Background())
	b := &broadcastServer[T]{
		name:           name,
		source:         source,
		addListener:    make(chan chan T),
		removeListener: make(chan (<-chan T)),
		ctx:            ctx,
		cancel:         cancel,
	}
	go b.serve()
	return b
}

//nolint:gocognit // by design
func (b *broadcastServer[T]) serve() {
	defer func() {
		log.Info("Closing listeners", log.String("name", b.name))
		for _, listener := range b.listeners {
			if listener != nil {
				close(listener)
			}
		}
	}()
	m := sync.Mutex{}
	for {
		select {
		case <-b.ctx.Done():
			log.Info("broadcast server about to be closed", log.String("name", b.name))
			return
		case ch := <-b.addListener:
			b.listeners = append(b.listeners, ch)
		case ch := <-b.removeListener:
			m.Lock()
			for i, listener := range b.listeners {
				if listener == ch {
					b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
					close(listener)
				}
			}
			m.Unlock()
		case msg := <-b.source:
			m.Lock()
			b.numRcv++
			for _, listener := range b.listeners {
				select {
				case listener <- msg:
					b.numSnd++
				case <-time.After(50 * time.Millisecond):
					b.numSkip++
				}
			}
			m.Unlock()
		}
	}
}
