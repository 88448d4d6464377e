package poller

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/vineet4007/crypto-streaming-platform/pkg/models"
)

// KafkaWriter abstracts the kafka.Writer for testability
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Clock abstracts time for testability
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Poller fetches an RSS feed on a fixed interval and publishes each new item
// to the news topic. Items already published are tracked by link so repeated
// polls of an unchanged feed produce no duplicates.
type Poller struct {
	logger   *zap.Logger
	writer   KafkaWriter
	parser   *gofeed.Parser
	clock    Clock
	feedURL  string
	interval time.Duration

	seen map[string]bool
}

func NewPoller(logger *zap.Logger, writer KafkaWriter, feedURL string, interval time.Duration) *Poller {
	return &Poller{
		logger:   logger,
		writer:   writer,
		parser:   gofeed.NewParser(),
		clock:    RealClock{},
		feedURL:  feedURL,
		interval: interval,
		seen:     make(map[string]bool),
	}
}

// WithClock overrides the clock, for tests.
func (p *Poller) WithClock(c Clock) *Poller {
	p.clock = c
	return p
}

// Run polls until ctx is cancelled. The first poll happens immediately.
// Fetch and publish errors are transient: they are logged and the next tick
// proceeds.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("News poller started",
		zap.String("feed_url", p.feedURL),
		zap.Duration("interval", p.interval))

	p.pollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("News poller stopped")
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	feed, err := p.parser.ParseURLWithContext(p.feedURL, ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("Feed fetch failed", zap.String("feed_url", p.feedURL), zap.Error(err))
		return
	}

	published := 0
	for _, item := range feed.Items {
		if item == nil || item.Link == "" || p.seen[item.Link] {
			continue
		}

		event := p.mapItem(feed, item)
		if err := p.publish(ctx, event); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("News publish failed", zap.String("link", event.Link), zap.Error(err))
			continue
		}

		p.seen[item.Link] = true
		published++
	}

	if published > 0 {
		p.logger.Info("News items published", zap.Int("count", published))
	}
}

func (p *Poller) mapItem(feed *gofeed.Feed, item *gofeed.Item) models.NewsEvent {
	source := feed.Title
	if source == "" {
		source = p.feedURL
	}

	var publishedAt int64
	if item.PublishedParsed != nil {
		publishedAt = item.PublishedParsed.UnixMilli()
	}

	return models.NewsEvent{
		Source:      source,
		Title:       item.Title,
		Link:        item.Link,
		PublishedAt: publishedAt,
		IngestedAt:  p.clock.Now().UnixMilli(),
	}
}

func (p *Poller) publish(ctx context.Context, event models.NewsEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Source),
		Value: payload,
	})
}
