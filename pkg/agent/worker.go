package agent

import (
	"context"
	"time"

	"github.com/sushiaki/sorabot/pkg/bus"
	"github.com/sushiaki/sorabot/pkg/logger"
)

// worker serializes the reply runs of one conversation.
type worker struct {
	key     string
	queue   chan bus.InboundMessage
	pending int // reserved sends, guarded by Dispatcher.mu
}

// Run consumes the inbound queue until ctx is done, then waits for the
// in-flight runs of every conversation to finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	logger.InfoC("agent", "Dispatcher started")
	defer func() {
		d.wg.Wait()
		logger.InfoC("agent", "Dispatcher stopped")
	}()

	for {
		msg, ok := d.deps.Bus.ConsumeInbound(ctx)
		if !ok {
			return nil
		}
		if isIgnoredChat(msg) {
			logger.DebugCF("agent", "Ignoring non one-to-one chat", map[string]interface{}{"chat_id": msg.ChatID})
			continue
		}
		d.enqueue(ctx, msg)
	}
}

// enqueue hands msg to its conversation worker without blocking. A full
// queue drops the message for that conversation only, so the bus consumer
// keeps serving every other chat.
func (d *Dispatcher) enqueue(ctx context.Context, msg bus.InboundMessage) {
	key := workerKey(msg)

	d.mu.Lock()
	w, ok := d.workers[key]
	if !ok {
		w = &worker{key: key, queue: make(chan bus.InboundMessage, d.opts.QueueSize)}
		d.workers[key] = w
		d.wg.Add(1)
		go d.serve(ctx, w)
	}
	w.pending++
	d.mu.Unlock()

	select {
	case w.queue <- msg:
		return
	default:
	}

	d.mu.Lock()
	w.pending--
	d.mu.Unlock()
	d.dropped.Add(1)
	logger.WarnCF("agent", "Conversation queue full, message dropped", map[string]interface{}{
		"chat_id":    msg.ChatID,
		"message_id": msg.MessageID,
		"queue_size": d.opts.QueueSize,
	})
}

func (d *Dispatcher) serve(ctx context.Context, w *worker) {
	defer d.wg.Done()

	idle := time.NewTimer(d.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case msg := <-w.queue:
			d.mu.Lock()
			w.pending--
			d.mu.Unlock()

			d.Handle(ctx, msg)

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(d.opts.IdleTimeout)

		case <-idle.C:
			if d.retire(w) {
				return
			}
			idle.Reset(d.opts.IdleTimeout)

		case <-ctx.Done():
			d.mu.Lock()
			delete(d.workers, w.key)
			d.mu.Unlock()
			return
		}
	}
}

// retire removes an idle worker unless a send has been reserved for it.
func (d *Dispatcher) retire(w *worker) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w.pending > 0 || len(w.queue) > 0 {
		return false
	}
	delete(d.workers, w.key)
	return true
}
