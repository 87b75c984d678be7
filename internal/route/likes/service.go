package likes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/routebook/internal/route/catalog"
	"github.com/example/routebook/internal/route/domain"
)

const votedValue = "true"

// Service records likes against the catalog. Each client may like a route
// once; the flag is permanent and there is no unlike. Counts are pushed to
// the remote store on a best-effort basis: a failed push is logged and the
// local increment and vote flag stand, with no retry and no rollback.
type Service struct {
	catalog *catalog.Catalog
	remote  domain.RemoteLikeStore
	votes   domain.KeyValueStore
	cache   domain.KeyValueStore
	events  domain.EventPublisher
	clock   domain.Clock
	logger  *zap.Logger

	routeLocks sync.Map // route id -> *sync.Mutex

	mu      sync.Mutex
	pending map[int]struct{} // liked locally, remote not yet seen at or above the local count
}

// New constructs a Service. remote, cache and events are optional.
func New(cat *catalog.Catalog, remote domain.RemoteLikeStore, votes, cache domain.KeyValueStore, events domain.EventPublisher, clock domain.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		catalog: cat,
		remote:  remote,
		votes:   votes,
		cache:   cache,
		events:  events,
		clock:   clock,
		logger:  logger,
		pending: make(map[int]struct{}),
	}
}

func (s *Service) routeLock(routeID int) *sync.Mutex {
	m, _ := s.routeLocks.LoadOrStore(routeID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

func voteKey(clientID string, routeID int) string {
	return fmt.Sprintf("hasLiked:%s:%d", clientID, routeID)
}

func countKey(routeID int) string {
	return "likes-" + strconv.Itoa(routeID)
}

// RecordLike registers a like from clientID. It returns the route's count and
// whether this call incremented it. Unknown routes are ignored silently. The
// only error is a failure to establish the vote flag, in which case nothing changed.
func (s *Service) RecordLike(ctx context.Context, clientID string, routeID int) (int, bool, error) {
	route, err := s.catalog.Get(routeID)
	if errors.Is(err, domain.ErrRouteNotFound) {
		likeAttempts.WithLabelValues("unknown_route").Inc()
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	first, err := s.votes.SetIfAbsent(ctx, voteKey(clientID, routeID), votedValue)
	if err != nil {
		likeAttempts.WithLabelValues("error").Inc()
		return route.Likes, false, fmt.Errorf("set vote flag: %w", err)
	}
	if !first {
		likeAttempts.WithLabelValues("duplicate").Inc()
		return route.Likes, false, nil
	}

	count, err := s.increment(context.WithoutCancel(ctx), routeID)
	if err != nil {
		return 0, false, err
	}
	likeAttempts.WithLabelValues("accepted").Inc()

	if s.events != nil {
		event := domain.LikeEvent{
			Type:       domain.EventLikeRecorded,
			RouteID:    routeID,
			ClientID:   clientID,
			Likes:      count,
			RecordedAt: s.clock.Now(),
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn("publish like event failed", zap.Int("route_id", routeID), zap.Error(err))
		}
	}
	return count, true, nil
}

// increment bumps the count and pushes it to the remote store while holding
// the route's lock, so pushes for one route reach the remote in count order.
func (s *Service) increment(ctx context.Context, routeID int) (int, error) {
	lock := s.routeLock(routeID)
	lock.Lock()
	defer lock.Unlock()

	count, err := s.catalog.AddLikes(routeID, 1)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.pending[routeID] = struct{}{}
	s.mu.Unlock()

	s.cacheCount(ctx, routeID, count)
	if s.remote != nil {
		if err := s.remote.UpdateLikes(ctx, routeID, count); err != nil {
			remoteFailures.WithLabelValues("update").Inc()
			s.logger.Warn("remote like update failed", zap.Int("route_id", routeID), zap.Int("likes", count), zap.Error(err))
		}
	}
	return count, nil
}

// HasVoted reports whether clientID already liked routeID. Store errors read as false.
func (s *Service) HasVoted(ctx context.Context, clientID string, routeID int) bool {
	v, ok, err := s.votes.Get(ctx, voteKey(clientID, routeID))
	if err != nil {
		s.logger.Warn("read vote flag failed", zap.Int("route_id", routeID), zap.Error(err))
		return false
	}
	return ok && v == votedValue
}

// WarmFromCache seeds counts from the local count cache. Routes without a
// cached value keep their count; non-numeric values read as zero.
func (s *Service) WarmFromCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	for _, r := range s.catalog.Routes() {
		raw, ok, err := s.cache.Get(ctx, countKey(r.ID))
		if err != nil {
			s.logger.Warn("read cached count failed", zap.Int("route_id", r.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			n = 0
		}
		_ = s.catalog.SetLikes(r.ID, n)
	}
}

// SyncFromRemote overwrites local counts with the remote collection. Records
// for unknown routes are ignored and routes missing from the response keep
// their count. A route liked here whose remote count is still below the local
// one keeps the local count until the remote catches up. A failed fetch
// leaves the catalog untouched.
func (s *Service) SyncFromRemote(ctx context.Context) {
	if s.remote == nil {
		return
	}
	records, err := s.remote.List(ctx)
	if err != nil {
		remoteFailures.WithLabelValues("list").Inc()
		s.logger.Error("remote like sync failed", zap.Error(err))
		return
	}
	synced := 0
	for _, rec := range records {
		if s.applyRemote(ctx, rec) {
			synced++
		}
	}
	syncedRoutes.Set(float64(synced))
	s.logger.Info("remote like sync complete", zap.Int("records", len(records)), zap.Int("routes", synced))
}

func (s *Service) applyRemote(ctx context.Context, rec domain.LikeRecord) bool {
	lock := s.routeLock(rec.RouteID)
	lock.Lock()
	defer lock.Unlock()

	route, err := s.catalog.Get(rec.RouteID)
	if err != nil {
		return false
	}
	s.mu.Lock()
	_, liked := s.pending[rec.RouteID]
	if liked && rec.Likes >= route.Likes {
		delete(s.pending, rec.RouteID)
		liked = false
	}
	s.mu.Unlock()
	if liked {
		return true
	}

	if err := s.catalog.SetLikes(rec.RouteID, rec.Likes); err != nil {
		return false
	}
	route, _ = s.catalog.Get(rec.RouteID)
	s.cacheCount(ctx, rec.RouteID, route.Likes)
	return true
}

func (s *Service) cacheCount(ctx context.Context, routeID, count int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, countKey(routeID), strconv.Itoa(count)); err != nil {
		s.logger.Warn("cache like count failed", zap.Int("route_id", routeID), zap.Error(err))
	}
}

// RunSync refreshes counts from the remote store every interval until ctx is done.
func (s *Service) RunSync(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("sync interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SyncFromRemote(ctx)
		}
	}
}
