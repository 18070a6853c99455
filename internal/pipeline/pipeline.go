package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/signalatlas/vibe-etl/internal/domain"
	"github.com/signalatlas/vibe-etl/internal/observability"
)

// Source materializes the raw record lines for one batch.
type Source interface {
	FetchRecords(ctx context.Context) ([]string, error)
}

// Exporter delivers a finished AggregateResult to one destination. The result
// is owned by the run that produced it; exporters read it, never mutate it.
type Exporter interface {
	Name() string
	Export(ctx context.Context, result domain.AggregateResult) error
}

// Pipeline orchestrates one fetch-parse-aggregate-export batch.
type Pipeline struct {
	source     Source
	parser     *domain.Parser
	classifier *domain.Classifier
	aggregator *domain.Aggregator
	exporters  []Exporter
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(source Source, parser *domain.Parser, classifier *domain.Classifier, aggregator *domain.Aggregator, exporters []Exporter, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		source:     source,
		parser:     parser,
		classifier: classifier,
		aggregator: aggregator,
		exporters:  exporters,
		logger:     logger,
		metrics:    metrics,
	}
}

// CheckReadiness returns nil once at least one batch has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// Run executes one complete batch. Per-record parse failures are counted and
// skipped; an empty batch returns domain.ErrNoEvents as a clean no-op; any
// aggregation or export failure propagates.
func (p *Pipeline) Run(ctx context.Context) error {
	start := time.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	lines, err := p.source.FetchRecords(ctx)
	if err != nil {
		return fmt.Errorf("fetch records: %w", err)
	}
	p.metrics.RecordsConsumed.Add(float64(len(lines)))

	events, rejected := p.parseAll(lines)
	p.metrics.EventsAccepted.Add(float64(len(events)))
	p.logParseSummary(len(lines), len(events), rejected)

	if len(events) == 0 {
		p.logger.Warn("no valid events in batch, nothing to aggregate")
		return domain.ErrNoEvents
	}

	result, err := p.aggregator.Aggregate(events)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}
	p.metrics.CellsProduced.Set(float64(len(result.Cells)))

	for _, exp := range p.exporters {
		if err := exp.Export(ctx, result); err != nil {
			p.metrics.Exports.WithLabelValues(exp.Name(), "error").Inc()
			return fmt.Errorf("export %s: %w", exp.Name(), err)
		}
		p.metrics.Exports.WithLabelValues(exp.Name(), "success").Inc()
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)

	p.logger.Info("batch complete",
		"events", len(events),
		"cells", len(result.Cells),
		"insights", len(result.Insights),
		"progress_signal", result.Pulse.ProgressSignal,
		"noise_signal", result.Pulse.NoiseSignal,
		"humanity_ratio", result.Pulse.HumanityRatio,
		"duration", time.Since(start),
	)
	return nil
}

// RunLoop re-runs the batch on the given interval until the context is
// cancelled. An interval of zero runs exactly once. Empty batches are
// tolerated in loop mode; every other error stops the loop.
func (p *Pipeline) RunLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return p.Run(ctx)
	}

	for {
		err := p.Run(ctx)
		if err != nil && !errors.Is(err, domain.ErrNoEvents) {
			return err
		}

		p.logger.Info("next run scheduled", "interval", interval)
		if !sleepWithContext(ctx, interval) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// parseAll decodes and classifies every line, collecting rejection counts by
// reason. Rejections are expected and never abort the batch.
func (p *Pipeline) parseAll(lines []string) ([]domain.Event, map[domain.RejectReason]int) {
	events := make([]domain.Event, 0, len(lines))
	rejected := make(map[domain.RejectReason]int)

	for _, line := range lines {
		event, err := p.parser.ParseRecord(line)
		if err != nil {
			reason := domain.RejectParseError
			var skip *domain.SkipError
			if errors.As(err, &skip) {
				reason = skip.Reason
			}
			rejected[reason]++
			p.metrics.RecordsRejected.WithLabelValues(string(reason)).Inc()
			continue
		}
		events = append(events, p.classifier.Classify(event))
	}

	return events, rejected
}

func (p *Pipeline) logParseSummary(total, accepted int, rejected map[domain.RejectReason]int) {
	attrs := []any{"records", total, "accepted", accepted}
	for _, reason := range domain.RejectReasons() {
		if n := rejected[reason]; n > 0 {
			attrs = append(attrs, string(reason), n)
		}
	}
	p.logger.Info("parse summary", attrs...)
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
