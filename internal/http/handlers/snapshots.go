package handlers

import (
	"context"
	"time"

	"github.com/geocoder89/incidentdesk/internal/cache"
	"github.com/geocoder89/incidentdesk/internal/domain/incident"
	"github.com/geocoder89/incidentdesk/internal/session"
	"github.com/geocoder89/incidentdesk/internal/views"
	"golang.org/x/sync/errgroup"
)

const DefaultListLimit = 50

// Snapshot is what one dashboard shows. It is never modified after it is
// built; the next fetch replaces it.
type Snapshot struct {
	Incidents []incident.Incident
	Stats     *incident.Stats
	FetchedAt time.Time
}

// Snapshots fetches dashboard data and keeps it per client and view for a
// short while.
type Snapshots struct {
	api   IncidentAPI
	cache *cache.Cache
	limit int
}

func NewSnapshots(api IncidentAPI, c *cache.Cache, limit int) *Snapshots {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return &Snapshots{api: api, cache: c, limit: limit}
}

// Load returns the snapshot for view. Incidents and stats are fetched in
// parallel; the first failure cancels the other call. A result is cached
// only if the client was not forgotten while it was being fetched.
func (s *Snapshots) Load(ctx context.Context, clientID string, sess session.Session, view views.View) (Snapshot, error) {
	key := cache.SnapshotKey(clientID, sess.UserID, view.Name, s.limit)
	var epoch uint64
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			if snap, ok := v.(Snapshot); ok {
				return snap, nil
			}
		}
		epoch = s.cache.SnapshotEpoch(clientID)
	}

	var (
		list  []incident.Incident
		stats *incident.Stats
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if view.Name == views.AdminView.Name {
			list, err = s.api.ListIncidents(gctx, sess.Token, incident.ListFilter{Limit: s.limit})
		} else {
			list, err = s.api.MyIncidents(gctx, sess.Token, s.limit)
		}
		return err
	})

	if withStats(view) {
		g.Go(func() error {
			st, err := s.api.Stats(gctx, sess.Token)
			if err != nil {
				return err
			}
			stats = &st
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Incidents: list, Stats: stats, FetchedAt: time.Now()}
	if s.cache != nil {
		s.cache.SetSnapshot(key, clientID, epoch, snap)
	}
	return snap, nil
}

// Forget drops the client's snapshots after a change.
func (s *Snapshots) Forget(clientID string) {
	if s.cache != nil {
		s.cache.ForgetClient(clientID)
	}
}

func withStats(v views.View) bool {
	return v.Name == views.AdminView.Name || v.Name == views.AnalystView.Name
}
