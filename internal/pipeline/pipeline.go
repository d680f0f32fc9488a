package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/iff-guardian/hostguard/internal/broadcast"
	"github.com/iff-guardian/hostguard/internal/correlation"
	"github.com/iff-guardian/hostguard/internal/domain"
	"github.com/iff-guardian/hostguard/internal/eventstore"
	"github.com/iff-guardian/hostguard/internal/ignore"
	"github.com/iff-guardian/hostguard/internal/normalize"
	"github.com/iff-guardian/hostguard/pkg/logger"
	"github.com/iff-guardian/hostguard/pkg/metrics"
)

// ErrPoisoned is returned once a record's unique id has crossed the
// dead-letter failure threshold; the watcher never advances the bookmark
// past a record that returns this.
var ErrPoisoned = errors.New("record moved to dead-letter set")

// Pipeline implements watcher.Handler, wiring Normalizer(D) -> Ignore
// Engine(F) -> Event Store(B) + Correlation(G) -> Broadcaster(I) in the
// order spec §4 requires: a record is classified, checked against ignore
// patterns, committed to the store, analyzed for correlations, and only
// then broadcast.
type Pipeline struct {
	normalizer  *normalize.Normalizer
	ignore      *ignore.Engine
	events      eventstore.Store
	correlation *correlation.Engine
	broadcaster *broadcast.Broadcaster
	log         logger.Logger
	metrics     *metrics.Collector
	deadLetters *deadLetterSet
}

func New(
	normalizer *normalize.Normalizer,
	ignoreEngine *ignore.Engine,
	events eventstore.Store,
	correlationEngine *correlation.Engine,
	broadcaster *broadcast.Broadcaster,
	log logger.Logger,
	mc *metrics.Collector,
) *Pipeline {
	return &Pipeline{
		normalizer:  normalizer,
		ignore:      ignoreEngine,
		events:      events,
		correlation: correlationEngine,
		broadcaster: broadcaster,
		log:         log,
		metrics:     mc,
		deadLetters: newDeadLetterSet(1000),
	}
}

// Handle implements watcher.Handler.
func (p *Pipeline) Handle(ctx context.Context, record domain.RawRecord) error {
	logEvent := domain.FromRawRecord(record)

	secEvent, err := p.normalizer.Classify(ctx, logEvent)
	if err != nil {
		return p.handleNormalizationFailure(logEvent, err)
	}
	p.deadLetters.Clear(logEvent.UniqueID)

	if secEvent == nil {
		// No matching rule: nothing to store, ignore, or correlate.
		return nil
	}
	if p.metrics != nil {
		p.metrics.EventsClassified.WithLabelValues(string(secEvent.EventType), string(secEvent.RiskLevel)).Inc()
	}

	result := p.ignore.Evaluate(secEvent)
	if result.Suppress {
		if p.metrics != nil {
			p.metrics.EventsIgnored.WithLabelValues(result.Reason).Inc()
		}
		return nil
	}

	if _, err := p.events.Add(ctx, secEvent); err != nil {
		return err
	}

	if p.correlation != nil {
		if _, err := p.correlation.Analyze(ctx, secEvent); err != nil {
			// Analyze already isolates detector panics and store read
			// failures internally; any error it does return is logged and
			// swallowed so correlation never poisons the event stream.
			p.log.Warn("correlation analysis failed", "error", err, "event_id", secEvent.ID)
		} else if secEvent.IsCorrelationBased {
			if err := p.events.Update(ctx, secEvent); err != nil {
				p.log.Warn("failed to persist correlation enrichment", "error", err, "event_id", secEvent.ID)
			}
		}
	}

	if p.broadcaster != nil {
		p.broadcaster.Publish(broadcast.Message{
			Stream:     broadcast.StreamSecurityEvent,
			Payload:    secEvent,
			ProducedAt: time.Now().UTC(),
		})
		if secEvent.IsCorrelationBased {
			p.broadcaster.Publish(broadcast.Message{
				Stream:     broadcast.StreamCorrelationAlert,
				Payload:    secEvent,
				ProducedAt: time.Now().UTC(),
			})
		}
	}

	return nil
}

// handleNormalizationFailure records the failure against the dead-letter
// set and always returns a non-nil error so the watcher never advances
// the bookmark past a failing record; once a record crosses the failure
// threshold it is reported as ErrPoisoned instead of the underlying
// classification error, distinguishing "still retrying" from "now parked
// for operator review" in logs and metrics.
func (p *Pipeline) handleNormalizationFailure(logEvent domain.LogEvent, cause error) error {
	poisoned := p.deadLetters.RecordFailure(logEvent.Channel, logEvent.UniqueID, cause)
	if poisoned {
		p.log.Error("record moved to dead-letter set after repeated normalization failures",
			"channel", logEvent.Channel, "unique_id", logEvent.UniqueID, "error", cause)
		return ErrPoisoned
	}
	p.log.Warn("normalization failed, will retry", "channel", logEvent.Channel, "unique_id", logEvent.UniqueID, "error", cause)
	return cause
}

// DeadLetters returns the current set of poisoned records for operator
// inspection.
func (p *Pipeline) DeadLetters() []DeadLetterRecord {
	return p.deadLetters.List()
}

// Retry clears uniqueID from the dead-letter set so the next redelivery
// of that record is treated as a fresh failure count.
func (p *Pipeline) Retry(uniqueID string) {
	p.deadLetters.Clear(uniqueID)
}
