package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/themis/pkg/audit"
	"mercator-hq/themis/pkg/config"
	"mercator-hq/themis/pkg/decision"
	"mercator-hq/themis/pkg/decision/cache"
	"mercator-hq/themis/pkg/evaluator"
	"mercator-hq/themis/pkg/override"
	"mercator-hq/themis/pkg/policy"
	"mercator-hq/themis/pkg/resolver"
	"mercator-hq/themis/pkg/telemetry/metrics"
)

// Config contains engine settings.
type Config struct {
	// FallbackMode picks the verdict when the evaluator is unavailable.
	FallbackMode config.FallbackMode

	// CacheTTL is the lifetime of cache entries.
	CacheTTL time.Duration

	// DecisionTimeout bounds context resolution for one decision. Zero
	// means no bound. Evaluation and the audit write are detached from
	// the caller and carry their own timeouts.
	DecisionTimeout time.Duration
}

// Engine orchestrates one decision per request: resolve the context, check
// overrides, check the cache, evaluate policy, record the outcome. Every
// path that produces a verdict writes an audit record.
type Engine struct {
	resolver  *resolver.Resolver
	overrides *override.Store
	policies  *policy.Manager
	cache     *cache.Cache
	eval      evaluator.Evaluator
	recorder  *audit.Recorder
	metrics   *metrics.Collector
	config    Config
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New creates a decision engine. All collaborators are required.
func New(
	res *resolver.Resolver,
	overrides *override.Store,
	policies *policy.Manager,
	decisionCache *cache.Cache,
	eval evaluator.Evaluator,
	recorder *audit.Recorder,
	collector *metrics.Collector,
	cfg Config,
) *Engine {
	return &Engine{
		resolver:  res,
		overrides: overrides,
		policies:  policies,
		cache:     decisionCache,
		eval:      eval,
		recorder:  recorder,
		metrics:   collector,
		config:    cfg,
		logger:    slog.Default().With("component", "engine"),
		tracer:    otel.Tracer("themis/engine"),
	}
}

// outcome labels for metrics and logs.
const (
	outcomeEvaluated = "evaluated"
	outcomeCached    = "cached"
	outcomeOverride  = "override"
	outcomeFallback  = "fallback"
)

// Decide runs the full decision flow for req.
//
// Overrides take precedence over the cache and over policy; cache entries
// are served only under matching policy and override generations; when the
// evaluator is unavailable the configured fallback verdict applies and the
// result is marked degraded. A caller disconnect does not abort in-flight
// evaluation or the audit write; the result is simply discarded by the
// transport layer.
func (e *Engine) Decide(ctx context.Context, req *decision.Request) (*decision.Result, error) {
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "engine.Decide")
	defer span.End()

	if e.config.DecisionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.DecisionTimeout)
		defer cancel()
	}

	dctx, err := e.resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	policyGen := e.policies.Generation()
	overrideGen := e.overrides.Generation()

	result := &decision.Result{
		DecisionID: uuid.New().String(),
		Degraded:   dctx.ClassificationDegraded,
	}

	var fp decision.Fingerprint
	outcome := outcomeEvaluated

	if o, ok := e.overrides.Get(dctx.ResourceKey); ok {
		result.Verdict = o.Verdict
		result.Reason = "admin override"
		if o.Reason != "" {
			result.Reason = "admin override: " + o.Reason
		}
		result.Overridden = true
		outcome = outcomeOverride
	} else {
		fp = decision.FingerprintOf(dctx)

		if entry, hit := e.cache.Get(fp, policyGen, overrideGen); hit {
			result.Verdict = entry.Verdict
			result.Reason = entry.Reason
			result.RiskScore = entry.RiskScore
			result.Cached = true
			outcome = outcomeCached
			e.recordCacheStats(true)
		} else {
			e.recordCacheStats(false)
			outcome = e.evaluate(ctx, dctx, fp, policyGen, overrideGen, result)
		}
	}

	result.Duration = time.Since(start)
	result.DurationMillis = result.Duration.Milliseconds()

	span.SetAttributes(
		attribute.String("decision.id", result.DecisionID),
		attribute.String("decision.verdict", string(result.Verdict)),
		attribute.String("decision.outcome", outcome),
		attribute.String("decision.resource_key", dctx.ResourceKey),
		attribute.String("decision.fingerprint", string(fp)),
		attribute.Bool("decision.degraded", result.Degraded),
	)

	e.record(ctx, dctx, fp, policyGen, overrideGen, result)

	if e.metrics.Enabled() {
		e.metrics.Decision().Record(string(result.Verdict), outcome, result.Duration)
		e.metrics.Decision().SetGenerations(policyGen, overrideGen)
		e.metrics.Cache().SetEntries(e.cache.Len())
		e.metrics.Audit().SetQueueDepth(e.recorder.QueueDepth())
		e.metrics.Audit().SetDropped(e.recorder.Dropped())
	}

	e.logger.Info("decision served",
		"request_id", dctx.RequestID,
		"decision_id", result.DecisionID,
		"resource_key", dctx.ResourceKey,
		"verdict", result.Verdict,
		"outcome", outcome,
		"duration_ms", result.DurationMillis,
	)
	return result, nil
}

// evaluate calls the external evaluator and fills result, returning the
// outcome label. Successful ALLOW and DENY verdicts from clean contexts are
// cached; REVIEW verdicts and degraded contexts are not, so they are always
// re-evaluated.
func (e *Engine) evaluate(ctx context.Context, dctx *decision.Context, fp decision.Fingerprint, policyGen, overrideGen uint64, result *decision.Result) string {
	// The evaluation completes even if the caller disconnects, keeping
	// the cache warm and the audit trail complete.
	eval, err := e.eval.Evaluate(context.WithoutCancel(ctx), dctx)
	if err != nil {
		var unavail *evaluator.UnavailableError
		if !errors.As(err, &unavail) {
			e.logger.Error("evaluator returned malformed result",
				"request_id", dctx.RequestID, "error", err)
		}
		if e.metrics.Enabled() {
			e.metrics.Decision().RecordEvaluatorFailure()
		}
		e.applyFallback(result)
		return outcomeFallback
	}

	result.Verdict = eval.Verdict
	result.Reason = eval.Reason
	result.RiskScore = eval.RiskScore

	if eval.Verdict != decision.VerdictReview && !dctx.ClassificationDegraded {
		e.cache.Put(fp, cache.Entry{
			Verdict:     eval.Verdict,
			Reason:      eval.Reason,
			RiskScore:   eval.RiskScore,
			PolicyGen:   policyGen,
			OverrideGen: overrideGen,
			TTL:         e.config.CacheTTL,
		})
	}
	return outcomeEvaluated
}

// applyFallback fills result with the configured fallback verdict.
func (e *Engine) applyFallback(result *decision.Result) {
	switch e.config.FallbackMode {
	case config.FallbackOpen:
		result.Verdict = decision.VerdictAllow
		result.Reason = "policy evaluator unavailable, fail-open"
	default:
		result.Verdict = decision.VerdictDeny
		result.Reason = "policy evaluator unavailable, fail-closed"
	}
	result.Degraded = true
}

// record writes the mandatory audit record. The decision is returned to the
// caller even when the sink is unavailable; the response then carries the
// audit-pending marker.
func (e *Engine) record(ctx context.Context, dctx *decision.Context, fp decision.Fingerprint, policyGen, overrideGen uint64, result *decision.Result) {
	record := &audit.DecisionRecord{
		ID:                 result.DecisionID,
		RequestID:          dctx.RequestID,
		Fingerprint:        string(fp),
		UserID:             dctx.User.ID,
		Department:         dctx.User.Department,
		ResourceKey:        dctx.ResourceKey,
		Verdict:            result.Verdict,
		Reason:             result.Reason,
		RiskScore:          result.RiskScore,
		Overridden:         result.Overridden,
		Cached:             result.Cached,
		Degraded:           result.Degraded,
		PolicyGeneration:   policyGen,
		OverrideGeneration: overrideGen,
		Source:             dctx.Source,
		LatencyMillis:      result.Duration.Milliseconds(),
	}

	if err := e.recorder.Record(ctx, record); err != nil {
		result.AuditPending = true
		if e.metrics.Enabled() {
			e.metrics.Audit().RecordPending()
		}
	}
}

func (e *Engine) recordCacheStats(hit bool) {
	if !e.metrics.Enabled() {
		return
	}
	if hit {
		e.metrics.Cache().RecordHit()
	} else {
		e.metrics.Cache().RecordMiss()
	}
}
