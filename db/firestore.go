package db

import (
	"context"
	"errors"
	"fmt"
	"go-pulsemap/types"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/juju/clock"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	incidentsCollection = "incidents"
	updatesCollection   = "incident_updates"
)

type incidentDoc struct {
	ID                string             `firestore:"id"`
	ThreadID          string             `firestore:"threadId"`
	Published         time.Time          `firestore:"published"`
	LastModified      *time.Time         `firestore:"lastModified"`
	Location          string             `firestore:"location"`
	District          string             `firestore:"district"`
	Category          string             `firestore:"category"`
	Subcategory       string             `firestore:"subcategory"`
	Title             string             `firestore:"title"`
	Description       string             `firestore:"description"`
	Status            string             `firestore:"status"`
	GroupID           string             `firestore:"groupId"`
	Coordinates       *types.Coordinates `firestore:"coordinates"`
	Geocoded          bool               `firestore:"geocoded"`
	Precision         string             `firestore:"precision"`
	Severity          string             `firestore:"severity"`
	IncidentStatus    string             `firestore:"incidentStatus"`
	GeocodingAttempts int                `firestore:"geocodingAttempts"`
	LastGeocoded      *time.Time         `firestore:"lastGeocoded"`
}

func (d incidentDoc) toIncident() types.EnrichedIncident {
	return types.EnrichedIncident{
		RawIncident: types.RawIncident{
			ID:           d.ID,
			Published:    d.Published.UTC(),
			LastModified: d.LastModified,
			Location:     d.Location,
			District:     d.District,
			Category:     d.Category,
			Subcategory:  d.Subcategory,
			Title:        d.Title,
			Description:  d.Description,
			Status:       d.Status,
			GroupID:      d.GroupID,
		},
		ThreadID:          d.ThreadID,
		Coordinates:       d.Coordinates,
		Precision:         types.Precision(d.Precision),
		Severity:          types.Severity(d.Severity),
		IncidentStatus:    types.Status(d.IncidentStatus),
		GeocodingAttempts: d.GeocodingAttempts,
		LastGeocoded:      d.LastGeocoded,
	}
}

type updateDoc struct {
	IncidentID  string    `firestore:"incidentId"`
	ThreadID    string    `firestore:"threadId"`
	Timestamp   time.Time `firestore:"timestamp"`
	Description string    `firestore:"description"`
	Status      string    `firestore:"status"`
}

// FirestoreStore keeps incidents in the "incidents" collection, keyed by the hashed feed id.
type FirestoreStore struct {
	client *firestore.Client
	clock  clock.Clock
	logger *zap.Logger
}

func NewFirestoreStore(client *firestore.Client, clk clock.Clock, logger *zap.Logger) *FirestoreStore {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FirestoreStore{client: client, clock: clk, logger: logger.Named("firestore")}
}

func (s *FirestoreStore) incidentRef(id string) *firestore.DocumentRef {
	return s.client.Collection(incidentsCollection).Doc(HashString(id))
}

func (s *FirestoreStore) Upsert(ctx context.Context, inc *types.EnrichedIncident) error {
	docRef := s.incidentRef(inc.ID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return fmt.Errorf("error getting incident doc %s: %w", inc.ID, err)
			}
			return tx.Create(docRef, incidentDoc{
				ID:             inc.ID,
				ThreadID:       inc.ThreadID,
				Published:      inc.Published,
				LastModified:   inc.LastModified,
				Location:       inc.Location,
				District:       inc.District,
				Category:       inc.Category,
				Subcategory:    inc.Subcategory,
				Title:          inc.Title,
				Description:    inc.Description,
				Status:         inc.Status,
				GroupID:        inc.GroupID,
				Coordinates:    inc.Coordinates,
				Geocoded:       inc.Coordinates != nil,
				Precision:      string(inc.Precision),
				Severity:       string(inc.Severity),
				IncidentStatus: string(inc.IncidentStatus),
			})
		}

		return tx.Update(docRef, []firestore.Update{
			{Path: "lastModified", Value: inc.LastModified},
			{Path: "description", Value: inc.Description},
			{Path: "status", Value: inc.Status},
			{Path: "coordinates", Value: inc.Coordinates},
			{Path: "geocoded", Value: inc.Coordinates != nil},
			{Path: "precision", Value: string(inc.Precision)},
			{Path: "severity", Value: string(inc.Severity)},
			{Path: "incidentStatus", Value: string(inc.IncidentStatus)},
		})
	})
	if err != nil {
		return fmt.Errorf("upsert incident %s: %w", inc.ID, err)
	}
	return nil
}

func (s *FirestoreStore) GetByThread(ctx context.Context, threadID string) ([]types.EnrichedIncident, error) {
	incidents, err := s.query(ctx, s.client.Collection(incidentsCollection).Where("threadId", "==", threadID))
	if err != nil {
		return nil, err
	}
	sortOldestFirst(incidents)
	return incidents, nil
}

func (s *FirestoreStore) AppendUpdate(ctx context.Context, threadID string, u types.IncidentUpdate) error {
	docID := HashString(u.IncidentID + "|" + strconv.FormatInt(u.Timestamp.UnixNano(), 10))
	_, err := s.client.Collection(updatesCollection).Doc(docID).Create(ctx, updateDoc{
		IncidentID:  u.IncidentID,
		ThreadID:    threadID,
		Timestamp:   u.Timestamp,
		Description: u.Description,
		Status:      u.Status,
	})
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	if err != nil {
		return fmt.Errorf("append update for %s: %w", u.IncidentID, err)
	}
	return nil
}

// GetNeedingGeocode narrows on the indexed fields and applies the cooldown in process.
func (s *FirestoreStore) GetNeedingGeocode(ctx context.Context, limit int) ([]types.EnrichedIncident, error) {
	candidates, err := s.query(ctx, s.client.Collection(incidentsCollection).
		Where("geocoded", "==", false).
		Where("geocodingAttempts", "<", MaxGeocodeAttempts))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var out []types.EnrichedIncident
	for i := range candidates {
		if needsGeocode(&candidates[i], now) {
			out = append(out, candidates[i])
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *FirestoreStore) UpdateGeocode(ctx context.Context, id string, coords *types.Coordinates, precision types.Precision) error {
	updates := []firestore.Update{
		{Path: "precision", Value: string(precision)},
		{Path: "geocodingAttempts", Value: firestore.Increment(1)},
		{Path: "lastGeocoded", Value: s.clock.Now().UTC()},
	}
	if coords != nil {
		updates = append(updates,
			firestore.Update{Path: "coordinates", Value: coords},
			firestore.Update{Path: "geocoded", Value: true})
	}

	_, err := s.incidentRef(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update geocode for %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) GetStats(ctx context.Context) (types.Stats, error) {
	var st types.Stats
	iter := s.client.Collection(incidentsCollection).
		Select("incidentStatus", "geocoded", "geocodingAttempts").
		Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return types.Stats{}, fmt.Errorf("error iterating incidents: %w", err)
		}
		var d incidentDoc
		if err := doc.DataTo(&d); err != nil {
			s.logger.Warn("Skipping unreadable incident", zap.String("doc", doc.Ref.ID), zap.Error(err))
			continue
		}
		st.Total++
		if d.IncidentStatus == string(types.Active) {
			st.Active++
		}
		if d.Geocoded {
			st.Geocoded++
		} else if d.GeocodingAttempts < MaxGeocodeAttempts {
			st.NeedsGeocode++
		}
	}
	return st, nil
}

func (s *FirestoreStore) GetIncident(ctx context.Context, id string) (*types.EnrichedIncident, error) {
	snap, err := s.incidentRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting incident %s: %w", id, err)
	}
	var d incidentDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("error converting incident %s: %w", id, err)
	}
	inc := d.toIncident()
	return &inc, nil
}

// ListIncidents walks incidents newest first and filters in process until the cap is reached.
func (s *FirestoreStore) ListIncidents(ctx context.Context, filter types.IncidentFilter) ([]types.EnrichedIncident, error) {
	q := s.client.Collection(incidentsCollection).OrderBy("published", firestore.Desc)
	if filter.DateFrom != nil {
		q = q.Where("published", ">=", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		q = q.Where("published", "<=", *filter.DateTo)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []types.EnrichedIncident
	for len(out) < listLimit {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating incidents: %w", err)
		}
		var d incidentDoc
		if err := doc.DataTo(&d); err != nil {
			s.logger.Warn("Skipping unreadable incident", zap.String("doc", doc.Ref.ID), zap.Error(err))
			continue
		}
		inc := d.toIncident()
		if matchesFilter(&inc, filter) {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (s *FirestoreStore) GetThreadUpdates(ctx context.Context, threadID string) ([]types.IncidentUpdate, error) {
	iter := s.client.Collection(updatesCollection).Where("threadId", "==", threadID).Documents(ctx)
	defer iter.Stop()

	var updates []types.IncidentUpdate
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating updates for thread %s: %w", threadID, err)
		}
		var d updateDoc
		if err := doc.DataTo(&d); err != nil {
			s.logger.Warn("Skipping unreadable update", zap.String("doc", doc.Ref.ID), zap.Error(err))
			continue
		}
		updates = append(updates, types.IncidentUpdate{
			IncidentID:  d.IncidentID,
			Timestamp:   d.Timestamp.UTC(),
			Description: d.Description,
			Status:      d.Status,
		})
	}
	sortUpdates(updates)
	return updates, nil
}

func (s *FirestoreStore) Ping(ctx context.Context) error {
	iter := s.client.Collection(incidentsCollection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) query(ctx context.Context, q firestore.Query) ([]types.EnrichedIncident, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var incidents []types.EnrichedIncident
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating incidents: %w", err)
		}
		var d incidentDoc
		if err := doc.DataTo(&d); err != nil {
			s.logger.Warn("Skipping unreadable incident", zap.String("doc", doc.Ref.ID), zap.Error(err))
			continue
		}
		incidents = append(incidents, d.toIncident())
	}
	return incidents, nil
}
