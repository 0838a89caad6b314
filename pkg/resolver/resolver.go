package resolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mercator-hq/themis/pkg/decision"
)

// knownServices maps normalized resource keys to their governance category.
// Requests for resources outside this catalog are flagged unknown so policy
// can treat them conservatively.
var knownServices = map[string]string{
	"chatgpt":      "general_assistant",
	"chatgpt.com":  "general_assistant",
	"claude":       "general_assistant",
	"claude.ai":    "general_assistant",
	"gemini":       "general_assistant",
	"character.ai": "consumer_chat",
	"copilot":      "code_assistant",
	"codeium":      "code_assistant",
	"cursor":       "code_assistant",
	"perplexity":   "search_assistant",
	"midjourney":   "image_generation",
}

// Resolver assembles the full decision context from an inbound request:
// resolved user attributes, normalized resource identity, and content
// classification findings.
type Resolver struct {
	directory  Directory
	classifier Classifier
	logger     *slog.Logger
}

// New creates a resolver. directory may be nil, in which case the user
// attributes carried on the request are used as-is. classifier must not be
// nil; callers without an external classifier pass the built-in one.
func New(directory Directory, classifier Classifier) *Resolver {
	return &Resolver{
		directory:  directory,
		classifier: classifier,
		logger:     slog.Default().With("component", "resolver"),
	}
}

// Resolve builds a decision context for req.
//
// The user directory, when configured, is a required upstream: a failed
// lookup aborts resolution with *ResolutionError. The content classifier is
// degradable: on failure the context carries no findings and is flagged
// degraded, letting the engine pick a conservative fallback.
func (r *Resolver) Resolve(ctx context.Context, req *decision.Request) (*decision.Context, error) {
	dctx := &decision.Context{
		RequestID:  uuid.New().String(),
		User:       req.User,
		Resource:   req.Resource,
		Source:     req.Source,
		ReceivedAt: time.Now(),
	}

	if r.directory != nil {
		resolved, err := r.directory.Lookup(ctx, req.User.ID)
		if err != nil {
			return nil, &ResolutionError{Upstream: "user directory", Cause: err}
		}
		dctx.User = *resolved
	}

	dctx.ResourceKey = decision.NormalizeResourceKey(req.Resource)
	if category, ok := knownServices[dctx.ResourceKey]; ok {
		dctx.Category = category
		dctx.KnownService = true
	}

	if req.Content != "" {
		findings, err := r.classifier.Classify(ctx, req.Content)
		if err != nil {
			r.logger.Warn("content classification degraded",
				"request_id", dctx.RequestID,
				"error", err,
			)
			dctx.ClassificationDegraded = true
		} else {
			dctx.Findings = findings
		}
	}

	return dctx, nil
}
