// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/brainamp/planner-engine/internal/domain/course"
	"github.com/brainamp/planner-engine/internal/domain/shared"
	"github.com/brainamp/planner-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODULE RESOLVER
// Maps a free-text module reference to at most one of the user's modules.
// Resolution fails closed: every error, timeout or unexpected verdict from
// the semantic resolver reads as "no match", and only ids that were offered
// as candidates are ever accepted.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultResolveTimeout bounds one semantic resolver call.
const DefaultResolveTimeout = 8 * time.Second

// ModuleResolver resolves module references for one user at a time.
type ModuleResolver struct {
	store    course.Store
	semantic course.SemanticResolver
	timeout  time.Duration
	log      *logger.Logger
}

// NewModuleResolver creates a new ModuleResolver. A non-positive timeout
// selects DefaultResolveTimeout.
func NewModuleResolver(
	store course.Store,
	semantic course.SemanticResolver,
	timeout time.Duration,
	log *logger.Logger,
) *ModuleResolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	return &ModuleResolver{
		store:    store,
		semantic: semantic,
		timeout:  timeout,
		log:      log.With(logger.Component("module_resolver")),
	}
}

// Resolve returns the module the identifier refers to, or nil. With
// needTaskDate only scheduled modules are eligible.
//
// The error return is reserved for failures reading the user's own modules;
// resolver-side failures never surface.
func (r *ModuleResolver) Resolve(ctx context.Context, userID, identifier string, needTaskDate bool) (*course.Ref, error) {
	normalized := course.NormalizeIdentifier(identifier)
	if normalized == "" {
		return nil, nil
	}

	rows, err := r.store.ListForUser(ctx, userID, course.MaxLookupRows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	candidates := course.BuildCandidates(rows, needTaskDate)
	if len(candidates) == 0 {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	verdict, err := r.semantic.Classify(callCtx, identifier, candidates)
	if err != nil {
		r.log.Warn("semantic resolver failed; treating as no match",
			logger.UserID(userID),
			logger.Bool("external", shared.IsExternalService(err)),
			logger.Latency(time.Since(start)),
			logger.Err(err))
		return nil, nil
	}
	if verdict == nil || verdict.ID == nil || *verdict.ID == "" {
		r.log.Debug("semantic resolver returned no match", logger.UserID(userID))
		return nil, nil
	}

	offered := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		offered[c.ID] = struct{}{}
	}
	if _, ok := offered[*verdict.ID]; !ok {
		r.log.Warn("semantic resolver returned an id outside the candidate set",
			logger.UserID(userID), logger.ModuleID(*verdict.ID))
		return nil, nil
	}

	for _, m := range rows {
		if m.ID == *verdict.ID {
			return course.RefOf(m), nil
		}
	}
	return nil, nil
}
