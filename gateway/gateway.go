// Package gateway implements a keep-alive registry for capabilities.
// Registered caps stay restorable for as long as their heartbeat
// beats; silent entries are garbage-collected and unsaved.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/lthibault/log"
	"golang.org/x/sync/errgroup"

	"github.com/flowmesh/flowmesh"
	"github.com/flowmesh/flowmesh/vat"
)

// DefaultKeepAlive is the keep-alive interval advertised to clients
// when none is configured.
const DefaultKeepAlive = 600 * time.Second

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		"registration": {
			Name: "registration",
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
			},
		},
	},
}

// registration is a row in the gateway table.  Rows are immutable
// once inserted; liveness state lives in the heartbeat.
type registration struct {
	ID        string
	Cap       any
	Ref       vat.SturdyRef
	Unsaver   vat.Unsaver
	Heartbeat *Heartbeat
}

// Gateway registers capabilities with the vat's restorer and keeps
// them alive while their heartbeats beat.  It implements
// suture.Service; Serve runs the GC sweep.
type Gateway struct {
	Info     flowmesh.Info
	Log      log.Logger
	Metrics  flowmesh.Metrics
	Restorer vat.Restorer

	// KeepAlive is the interval clients are told to beat at.  The GC
	// sweeps every three intervals.  Zero disables collection.
	KeepAlive time.Duration

	db *memdb.MemDB
}

// Setup allocates the registration table.  It must be called once
// before any other method.
func (gw *Gateway) Setup() error {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	gw.db = db
	return nil
}

// Register saves cap through the restorer and returns its sturdy ref,
// the heartbeat the caller must beat, and the keep-alive interval.
//
// A non-empty secretSeed derives the capability id deterministically,
// so re-registration after a restart yields the same sturdy ref.  An
// existing registration under the same id is released first; its
// heartbeat stops being honored.
func (gw *Gateway) Register(ctx context.Context, cap any, secretSeed []byte) (vat.SturdyRef, *Heartbeat, time.Duration, error) {
	var id string
	if len(secretSeed) > 0 {
		id = seededUUID(secretSeed).String()
	} else {
		id = uuid.New().String()
	}

	txn := gw.db.Txn(false)
	old, err := txn.First("registration", "id", id)
	if err != nil {
		return "", nil, 0, fmt.Errorf("lookup %s: %w", id, err)
	}

	if old != nil {
		prev := old.(*registration)
		if err = prev.Unsaver.Release(ctx); err != nil {
			gw.Log.WithField("id", id).
				WithError(err).
				Warn("release of stale registration failed")
		}
	}

	ref, unsaver, err := gw.Restorer.Save(ctx, cap, vat.WithToken(id))
	if err != nil {
		return "", nil, 0, fmt.Errorf("save %s: %w", id, err)
	}

	reg := &registration{
		ID:        id,
		Cap:       cap,
		Ref:       ref,
		Unsaver:   unsaver,
		Heartbeat: newHeartbeat(),
	}

	wx := gw.db.Txn(true)
	if err = wx.Insert("registration", reg); err != nil {
		wx.Abort()
		return "", nil, 0, fmt.Errorf("insert %s: %w", id, err)
	}
	wx.Commit()

	if gw.Metrics != nil {
		gw.Metrics.Incr("gateway.register")
	}

	gw.Log.WithField("id", id).Info("registered capability")

	return ref, reg.Heartbeat, gw.interval(), nil
}

// Restore resolves a sturdy ref previously issued by Register.
func (gw *Gateway) Restore(ctx context.Context, ref vat.SturdyRef) (any, error) {
	return gw.Restorer.Restore(ctx, ref)
}

// Len reports the number of live registrations.
func (gw *Gateway) Len() int {
	txn := gw.db.Txn(false)

	it, err := txn.Get("registration", "id")
	if err != nil {
		return 0
	}

	var n int
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n++
	}

	return n
}

func (gw *Gateway) interval() time.Duration {
	if gw.KeepAlive <= 0 {
		return DefaultKeepAlive
	}

	return gw.KeepAlive
}

// Serve runs the GC loop until ctx ends.  Every third keep-alive
// interval, entries whose heartbeat count reached zero are evicted and
// unsaved concurrently; all others have their count decremented.  A
// failed unsave is logged and the entry evicted anyway.
func (gw *Gateway) Serve(ctx context.Context) error {
	if gw.KeepAlive <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(3 * gw.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			gw.sweep(ctx)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (gw *Gateway) sweep(ctx context.Context) {
	txn := gw.db.Txn(false)

	it, err := txn.Get("registration", "id")
	if err != nil {
		gw.Log.WithError(err).Error("registration scan failed")
		return
	}

	var expired []*registration
	for obj := it.Next(); obj != nil; obj = it.Next() {
		reg := obj.(*registration)
		if reg.Heartbeat.tick() {
			expired = append(expired, reg)
		}
	}

	if len(expired) == 0 {
		return
	}

	wx := gw.db.Txn(true)
	for _, reg := range expired {
		if err = wx.Delete("registration", reg); err != nil {
			gw.Log.WithField("id", reg.ID).
				WithError(err).
				Error("eviction failed")
		}
	}
	wx.Commit()

	var g errgroup.Group
	for _, reg := range expired {
		reg := reg
		g.Go(func() error {
			if err := reg.Unsaver.Release(ctx); err != nil {
				gw.Log.WithField("id", reg.ID).
					WithError(err).
					Warn("unsave failed")
			}

			return nil
		})
	}
	_ = g.Wait()

	if gw.Metrics != nil {
		gw.Metrics.Count("gateway.evicted", len(expired))
	}

	gw.Log.WithField("evicted", len(expired)).Debug("swept registrations")
}
