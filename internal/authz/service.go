package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/lattice-ai/authcore/internal/audit"
	"github.com/lattice-ai/authcore/internal/decision"
	"github.com/lattice-ai/authcore/internal/observability"
	"github.com/lattice-ai/authcore/internal/ownership"
	"github.com/lattice-ai/authcore/internal/policy"
	"github.com/lattice-ai/authcore/internal/registry"
)

// ErrInvalidRequest indicates a malformed identity, action or resource
// reference. Caller bug; never retried.
var ErrInvalidRequest = errors.New("authz: invalid request")

// Request is one authorization check. OwnershipVersion is the caller's hint
// of the resource's current ownership stamp; zero when the owning service
// does not track one, in which case the cache TTL alone bounds staleness.
type Request struct {
	SubjectID        string   `json:"subject_id" validate:"required"`
	TenantID         string   `json:"tenant_id" validate:"required"`
	Roles            []string `json:"roles" validate:"required,min=1,dive,required"`
	ServiceAccount   bool     `json:"service_account"`
	RoleVersion      int64    `json:"role_version" validate:"min=0"`
	Action           string   `json:"action" validate:"required"`
	ResourceType     string   `json:"resource_type" validate:"required"`
	ResourceID       string   `json:"resource_id" validate:"required"`
	OwnershipVersion int64    `json:"ownership_version" validate:"min=0"`
}

func (r Request) identity() policy.Identity {
	return policy.Identity{
		SubjectID:      r.SubjectID,
		TenantID:       r.TenantID,
		Roles:          r.Roles,
		ServiceAccount: r.ServiceAccount,
		RoleVersion:    r.RoleVersion,
	}
}

func (r Request) ref() ownership.Ref {
	return ownership.Ref{Type: r.ResourceType, ID: r.ResourceID}
}

// Service is the authorization facade consumed by every platform service.
// Deny is a normal return value; only infrastructure failures are errors.
type Service struct {
	registry *registry.Store
	resolver *ownership.Registry
	cache    *decision.Cache
	emitter  audit.Emitter
	metrics  *observability.Metrics
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService wires the facade.
func NewService(store *registry.Store, resolver *ownership.Registry, cache *decision.Cache, emitter audit.Emitter, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{
		registry: store,
		resolver: resolver,
		cache:    cache,
		emitter:  emitter,
		metrics:  metrics,
		logger:   logger,
		validate: validator.New(),
	}
}

// Authorize validates the request, resolves ownership, evaluates policy and
// returns the decision. Results are served write-through from the decision
// cache; concurrent identical requests coalesce onto a single resolution and
// evaluation. Exactly one audit event is emitted per completed call,
// fire-and-forget.
func (s *Service) Authorize(ctx context.Context, req Request) (policy.Decision, error) {
	if err := s.validate.Struct(req); err != nil {
		return policy.Decision{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	snap := s.registry.Snapshot()
	identity := req.identity()
	ref := req.ref()

	// Forged or stale role claims fail before any resolution round trip.
	for _, role := range identity.Roles {
		if _, err := snap.EffectivePermissions(role); err != nil {
			return policy.Decision{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	fingerprint := decision.Fingerprint(snap.Version(), identity, req.Action, ref, req.OwnershipVersion)

	cached, hit, err := s.cache.Get(ctx, fingerprint)
	if err != nil {
		// Cache transport trouble degrades to a miss.
		s.logger.Warn("decision cache read", slog.Any("error", err))
	}
	s.metrics.ObserveCacheLookup(hit)
	if hit {
		s.finish(ctx, req, cached, true)
		return cached, nil
	}

	dec, _, err := s.cache.Compute(ctx, fingerprint, func(ctx context.Context) (policy.Decision, error) {
		start := time.Now()
		record, err := s.resolver.Resolve(ctx, ref)
		s.metrics.ObserveResolution(time.Since(start))
		if err != nil {
			return policy.Decision{}, err
		}
		evaluated, err := policy.Evaluate(snap, identity, req.Action, req.ResourceType, record)
		if err != nil {
			return policy.Decision{}, err
		}
		evaluated.ID = uuid.NewString()
		if putErr := s.cache.Put(ctx, fingerprint, evaluated); putErr != nil {
			s.logger.Warn("decision cache write", slog.Any("error", putErr))
		}
		return evaluated, nil
	})
	if err != nil {
		return policy.Decision{}, err
	}

	s.finish(ctx, req, dec, false)
	return dec, nil
}

// finish records metrics and hands the audit event off without ever blocking
// or failing the caller.
func (s *Service) finish(ctx context.Context, req Request, dec policy.Decision, cacheHit bool) {
	s.metrics.ObserveDecision(dec.Allowed, string(dec.Reason))

	event := audit.Event{
		ID:           uuid.NewString(),
		At:           time.Now().UTC(),
		SubjectID:    req.SubjectID,
		TenantID:     req.TenantID,
		Action:       registry.CanonicalName(req.Action),
		ResourceType: registry.CanonicalName(req.ResourceType),
		ResourceID:   req.ResourceID,
		DecisionID:   dec.ID,
		Allowed:      dec.Allowed,
		Reason:       string(dec.Reason),
		CacheHit:     cacheHit,
	}
	if dec.Allowed {
		event.Scope = dec.Scope.String()
	}

	emitCtx := context.WithoutCancel(ctx)
	go func() {
		if err := s.emitter.Emit(emitCtx, event); err != nil {
			s.metrics.ObserveAuditEmitFailure()
			s.logger.Error("audit emit", slog.Any("error", err), slog.String("decision_id", dec.ID))
		}
	}()
}
