package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCredentials struct {
	ensures    atomic.Int32
	refreshes  atomic.Int32
	refreshErr error
}

func (f *fakeCredentials) EnsureValid(context.Context) error {
	f.ensures.Add(1)
	return nil
}

func (f *fakeCredentials) ForceRefresh(context.Context) error {
	f.refreshes.Add(1)
	return f.refreshErr
}

func (f *fakeCredentials) Token() string {
	return fmt.Sprintf("token-%d", f.refreshes.Load())
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *fakeCredentials) {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	creds := &fakeCredentials{}
	return New(server.URL+"/", creds, 5*time.Second), creds
}

func TestUnauthorizedThenOKRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	c, creds := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/zones", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[{"id": 1, "name": "A"}]`))
	})

	zones, err := c.Zones(context.Background())
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, "A", zones[0].Name)
	assert.Equal(t, int32(1), creds.refreshes.Load())
	assert.Equal(t, int32(2), calls.Load())
}

func TestUnauthorizedTwiceSurfacesError(t *testing.T) {
	var calls atomic.Int32
	c, creds := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Unauthenticated."}`))
	})

	_, err := c.ChargingStations(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.MethodGet, httpErr.Method)
	assert.Contains(t, httpErr.URL, "/api/charging-stations")
	assert.Contains(t, httpErr.Body, "Unauthenticated")
	assert.Equal(t, int32(1), creds.refreshes.Load())
	assert.Equal(t, int32(2), calls.Load())
}

func TestServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, creds := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Connectors(context.Background())
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusInternalServerError, httpErr.Status)
	assert.Equal(t, int32(0), creds.refreshes.Load())
	assert.Equal(t, int32(1), calls.Load())
}

func TestRefreshFailureAborts(t *testing.T) {
	c, creds := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	creds.refreshErr = errors.New("token endpoint down")

	_, err := c.Zones(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token endpoint down")
}

func TestEquipmentRequestsValuesAndDropsInvalid(t *testing.T) {
	c, creds := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/equipments", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("values"))
		w.Write([]byte(`{"data": [{"id": 1, "name": "EC-1"}, {"id": 2, "name": ""}]}`))
	})

	items, err := c.Equipment(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "EC-1", items[0].Name)
	assert.Equal(t, int32(1), creds.ensures.Load())
}

func TestTransactionsFollowsPages(t *testing.T) {
	var pages []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		switch page {
		case "1":
			fmt.Fprint(w, `{"current_page":1,"last_page":2,"next_page_url":"x?page=2","data":[{"transactionId":1,"chargingStationIdentity":"CS-1"}]}`)
		default:
			fmt.Fprint(w, `{"current_page":2,"last_page":2,"next_page_url":null,"data":[{"transactionId":2,"chargingStationIdentity":"CS-1"},{"transactionId":0}]}`)
		}
	})

	txs, err := c.Transactions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, pages)
	require.Len(t, txs, 2)
	assert.Equal(t, 2, txs[1].TransactionID)
}

func TestTransactionsStopsAtPageLimit(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		fmt.Fprintf(w, `{"current_page":%d,"last_page":100,"next_page_url":"more","data":[]}`, n)
	})
	c.MaxTransactionPages = 3

	_, err := c.Transactions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}
