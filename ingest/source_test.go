package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const samplePayload = `[
	{"COD_SIMB":"BNC","DESC_SIMB":"BANCO NAC. DE CREDITO","PRECIO":"1,25","VAR_ABS":"0,05","VAR_REL":"4,17","VOLUMEN":"12.500,00","MONTO_EFECTIVO":"15.625,00","HORA":"10:45","ICON":"https://example.com/bnc.png"},
	{"COD_SIMB":"MVZ.A","DESC_SIMB":"MERCANTIL SERV. FIN. A","PRECIO":245.5,"VAR_ABS":-1.5,"VAR_REL":-0.61,"VOLUMEN":300,"MONTO_EFECTIVO":73650,"HORA":"10:40","ICON":null}
]`

func TestClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the real endpoint answers with text/html
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	records, err := NewClient(srv.URL, time.Second, zap.NewNop().Sugar()).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "BNC", records[0].Symbol)
	price, err := records[0].Price.Decimal()
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("1.25")))

	amount, err := records[0].CashAmount.Decimal()
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("15625")))

	assert.Equal(t, "MVZ.A", records[1].Symbol)
	assert.Empty(t, records[1].Icon)
	rel, err := records[1].RelChange.Decimal()
	require.NoError(t, err)
	assert.True(t, rel.Equal(decimal.RequireFromString("-0.61")))
}

func TestClientFetchNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, zap.NewNop().Sugar()).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClientFetchInvalidPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>mantenimiento</html>"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, zap.NewNop().Sugar()).Fetch(context.Background())
	assert.Error(t, err)
}

func TestClientFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 20*time.Millisecond, zap.NewNop().Sugar()).Fetch(context.Background())
	assert.Error(t, err)
}

func TestClientBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, zap.NewNop().Sugar())
	for i := 0; i < 5; i++ {
		_, err := client.Fetch(context.Background())
		require.Error(t, err)
	}

	_, err := client.Fetch(context.Background())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 5, atomic.LoadInt32(&hits))
}
