package feed

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const feedTestURL = "https://feed.test/v1"

func newMockedClient(t *testing.T, pageSize int) (*Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	c := NewClient(ClientConfig{
		BaseURL:    feedTestURL,
		PageSize:   pageSize,
		MaxPages:   5,
		HTTPClient: &http.Client{Transport: transport},
	}, zap.NewNop())
	return c, transport
}

func TestClient_FetchIncidentsBareArray(t *testing.T) {
	c, transport := newMockedClient(t, 100)
	from := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	transport.RegisterResponder(http.MethodGet, `=~^https://feed\.test/v1/hendelser`,
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			assert.Equal(t, "Oslo", q.Get("politidistrikt"))
			assert.Equal(t, "2026-10-15T00:00:00Z", q.Get("fra"))
			assert.Equal(t, "2026-10-16T00:00:00Z", q.Get("til"))
			assert.Equal(t, "1", q.Get("side"))
			return httpmock.NewStringResponse(http.StatusOK, `[
				{"id": "a1", "published": "2026-10-15T10:00:00Z", "location": "Storgata 15",
				 "district": "Oslo", "category": "Trafikkulykke", "title": "Ulykke", "status": "Pågår"}
			]`), nil
		})

	incidents, err := c.FetchIncidents(context.Background(), "Oslo", from, to)
	require.NoError(t, err)
	require.Len(t, incidents, 1)

	inc := incidents[0]
	assert.Equal(t, "a1", inc.ID)
	assert.Equal(t, "Storgata 15", inc.Location)
	assert.Equal(t, "Trafikkulykke", inc.Category)
	assert.Equal(t, time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC), inc.Published)
	assert.Nil(t, inc.LastModified)
}

func TestClient_FetchIncidentsLegacyKeysInEnvelope(t *testing.T) {
	c, transport := newMockedClient(t, 100)

	transport.RegisterResponder(http.MethodGet, `=~^https://feed\.test/v1/hendelser`,
		httpmock.NewStringResponder(http.StatusOK, `{"hendelser": [
			{"hendelseid": 42, "publisert": "2026-10-15T10:00:00Z", "sistEndret": "2026-10-15T11:00:00Z",
			 "sted": "Grünerløkka", "politidistrikt": "Oslo", "kategori": "Ordensforstyrrelser",
			 "underkategori": "Støy", "tittel": "Støyklager", "beskrivelse": "Avsluttet.",
			 "gruppeId": "g-7"}
		]}`))

	incidents, err := c.FetchIncidents(context.Background(), "", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, incidents, 1)

	inc := incidents[0]
	assert.Equal(t, "42", inc.ID)
	assert.Equal(t, "Grünerløkka", inc.Location)
	assert.Equal(t, "Oslo", inc.District)
	assert.Equal(t, "Støy", inc.Subcategory)
	assert.Equal(t, "Støyklager", inc.Title)
	assert.Equal(t, "g-7", inc.GroupID)
	require.NotNil(t, inc.LastModified)
	assert.Equal(t, time.Date(2026, 10, 15, 11, 0, 0, 0, time.UTC), *inc.LastModified)
}

func TestClient_NewestKeyWins(t *testing.T) {
	c, transport := newMockedClient(t, 100)
	transport.RegisterResponder(http.MethodGet, `=~^https://feed\.test/v1/hendelser`,
		httpmock.NewStringResponder(http.StatusOK, `{"results": [
			{"id": "a1", "published": "2026-10-15T10:00:00Z", "title": "Ny", "tittel": "Gammel"}
		]}`))

	incidents, err := c.FetchIncidents(context.Background(), "", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, "Ny", incidents[0].Title)
	assert.Equal(t, "Ukjent", incidents[0].Category)
}

func TestClient_SkipsMalformedRecords(t *testing.T) {
	c, transport := newMockedClient(t, 100)
	transport.RegisterResponder(http.MethodGet, `=~^https://feed\.test/v1/hendelser`,
		httpmock.NewStringResponder(http.StatusOK, `[
			{"published": "2026-10-15T10:00:00Z"},
			{"id": "bad-time", "published": "yesterday"},
			{"id": "ok", "published": "2026-10-15T10:00:00Z"}
		]`))

	incidents, err := c.FetchIncidents(context.Background(), "", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, "ok", incidents[0].ID)
}

func TestClient_UnknownShape(t *testing.T) {
	c, transport := newMockedClient(t, 100)
	transport.RegisterResponder(http.MethodGet, `=~^https://feed\.test/v1/hendelser`,
		httpmock.NewStringResponder(http.StatusOK, `{"message": "ok"}`))

	_, err := c.FetchIncidents(context.Background(), "", time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestClient_Paginates(t *testing.T) {
	c, transport := newMockedClient(t, 2)

	pages := map[string]string{
		"1": `[{"id": "a", "published": "2026-10-15T10:00:00Z"}, {"id": "b", "published": "2026-10-15T09:00:00Z"}]`,
		"2": `[{"id": "c", "published": "2026-10-15T08:00:00Z"}, {"id": "d", "published": "2026-10-15T07:00:00Z"}]`,
		"3": `[{"id": "e", "published": "2026-10-15T06:00:00Z"}]`,
	}
	transport.RegisterResponder(http.MethodGet, `=~^https://feed\.test/v1/hendelser`,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "2", req.URL.Query().Get("antall"))
			return httpmock.NewStringResponse(http.StatusOK, pages[req.URL.Query().Get("side")]), nil
		})

	incidents, err := c.FetchIncidents(context.Background(), "", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, incidents, 5)
	assert.Equal(t, 3, transport.GetTotalCallCount())
}

func TestClient_PaginationStopsWhenPageRepeats(t *testing.T) {
	c, transport := newMockedClient(t, 2)

	// a feed that ignores the page parameter
	transport.RegisterResponder(http.MethodGet, `=~^https://feed\.test/v1/hendelser`,
		httpmock.NewStringResponder(http.StatusOK,
			`[{"id": "a", "published": "2026-10-15T10:00:00Z"}, {"id": "b", "published": "2026-10-15T09:00:00Z"}]`))

	incidents, err := c.FetchIncidents(context.Background(), "", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, incidents, 2)
	assert.Equal(t, 2, transport.GetTotalCallCount())
}

func TestClient_FetchIncidentsHTTPError(t *testing.T) {
	c, transport := newMockedClient(t, 100)
	transport.RegisterResponder(http.MethodGet, `=~^https://feed\.test/v1/hendelser`,
		httpmock.NewStringResponder(http.StatusBadGateway, `upstream down`))

	_, err := c.FetchIncidents(context.Background(), "Oslo", time.Time{}, time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-OK response")
}

func TestClient_FetchIncidentByID(t *testing.T) {
	c, transport := newMockedClient(t, 100)
	transport.RegisterResponder(http.MethodGet, feedTestURL+"/hendelser/a1",
		httpmock.NewStringResponder(http.StatusOK,
			`{"id": "a1", "published": "2026-10-15T10:00:00Z", "location": "Oslo S", "category": "Vold"}`))
	transport.RegisterResponder(http.MethodGet, feedTestURL+"/hendelser/missing",
		httpmock.NewStringResponder(http.StatusNotFound, `{"error": "not found"}`))

	inc, err := c.FetchIncidentByID(context.Background(), "a1")
	require.NoError(t, err)
	require.NotNil(t, inc)
	assert.Equal(t, "Oslo S", inc.Location)

	missing, err := c.FetchIncidentByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClient_HealthCheck(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		want      bool
	}{
		{"ok", httpmock.NewStringResponder(http.StatusOK, `[]`), true},
		{"server_error", httpmock.NewStringResponder(http.StatusInternalServerError, ``), false},
		{"transport_error", httpmock.NewErrorResponder(fmt.Errorf("connection refused")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, transport := newMockedClient(t, 100)
			transport.RegisterResponder(http.MethodGet, `=~^https://feed\.test/v1/hendelser`, tt.responder)
			assert.Equal(t, tt.want, c.HealthCheck(context.Background()))
		})
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-10-15T10:00:00Z", time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)},
		{"2026-10-15T12:00:00+02:00", time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)},
		{"2026-10-15T10:00:00", time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)},
		{"1792058400000", time.UnixMilli(1792058400000).UTC()},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTime(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
		})
	}

	_, err := parseTime("")
	assert.Error(t, err)
}
