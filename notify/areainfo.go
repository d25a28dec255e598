package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ReceiverDirectory resolves the webhook URL of an area info receiver.
type ReceiverDirectory interface {
	ReceiverURL(name string) (string, bool)
}

// AreaInfoNotifier posts new area info to the receivers' webhooks. Receivers without a URL are only logged.
// Every receiver is throttled on its own. A throttled notification is delayed, and if newer area info arrives in
// the meantime, only the newest text is sent.
type AreaInfoNotifier struct {
	directory ReceiverDirectory
	client    *http.Client
	timeout   time.Duration
	limit     rate.Limit
	burst     int
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	queues map[string]*receiverQueue
}

type receiverQueue struct {
	limiter *rate.Limiter
	pending *AreaInfo
	url     string
	running bool
}

func NewAreaInfoNotifier(directory ReceiverDirectory, limit rate.Limit, burst int, timeout time.Duration, log zerolog.Logger) *AreaInfoNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &AreaInfoNotifier{
		directory: directory,
		client:    &http.Client{Timeout: timeout},
		timeout:   timeout,
		limit:     limit,
		burst:     max(burst, 1),
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		queues:    make(map[string]*receiverQueue),
	}
}

// NotifyAreaInfo does not block, the notification is sent in the background.
func (n *AreaInfoNotifier) NotifyAreaInfo(slot int, receiver string, text string) {
	url, ok := n.directory.ReceiverURL(receiver)
	if !ok || url == "" {
		n.log.Info().Int("slot", slot).Str("receiver", receiver).Str("text", text).Msg("area info")
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ctx.Err() != nil {
		n.log.Warn().Int("slot", slot).Str("receiver", receiver).Msg("area info notification dropped, notifier closed")
		return
	}
	queue, ok := n.queues[receiver]
	if !ok {
		queue = &receiverQueue{limiter: rate.NewLimiter(n.limit, n.burst)}
		n.queues[receiver] = queue
	}
	if queue.pending != nil {
		n.log.Debug().Int("slot", slot).Str("receiver", receiver).Msg("pending area info notification superseded")
	}
	queue.pending = &AreaInfo{Slot: slot, Receiver: receiver, Text: text}
	queue.url = url
	if queue.running {
		return
	}
	queue.running = true
	n.wg.Add(1)
	go n.drain(queue)
}

// drain sends the pending notification of the given queue until there is nothing left to send.
func (n *AreaInfoNotifier) drain(queue *receiverQueue) {
	defer n.wg.Done()
	for {
		n.mu.Lock()
		if queue.pending == nil {
			queue.running = false
			n.mu.Unlock()
			return
		}
		n.mu.Unlock()

		if err := queue.limiter.Wait(n.ctx); err != nil {
			n.mu.Lock()
			if queue.pending != nil {
				n.log.Warn().Err(err).Str("receiver", queue.pending.Receiver).Msg("area info notification abandoned")
			}
			queue.pending = nil
			queue.running = false
			n.mu.Unlock()
			return
		}

		n.mu.Lock()
		info := *queue.pending
		url := queue.url
		queue.pending = nil
		n.mu.Unlock()

		n.send(url, info)
	}
}

func (n *AreaInfoNotifier) send(url string, info AreaInfo) {
	log := n.log.With().Int("slot", info.Slot).Str("receiver", info.Receiver).Logger()
	ctx, cancel := context.WithTimeout(n.ctx, n.timeout)
	defer cancel()
	err := postJSON(ctx, n.client, url, info)
	if err != nil {
		log.Warn().Err(err).Msg("cannot notify area info")
		return
	}
	log.Debug().Msg("area info notified")
}

// Wait until all pending notifications are sent.
func (n *AreaInfoNotifier) Wait() {
	n.wg.Wait()
}

// Close abandons the notifications that still wait for the rate limit and waits for the running ones.
func (n *AreaInfoNotifier) Close() error {
	n.mu.Lock()
	n.cancel()
	n.mu.Unlock()
	n.wg.Wait()
	return nil
}
