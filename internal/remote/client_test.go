package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func calcTask(t *testing.T) *domain.Task {
	t.Helper()
	payload := json.RawMessage(`{"principal":10000,"annual_rate":4,"years":10}`)
	tsk, err := domain.NewTask(domain.TaskTypeCompoundInterest, payload, 3, time.Now())
	require.NoError(t, err)
	return tsk
}

func TestClient_ExecuteSuccess(t *testing.T) {
	t.Parallel()

	var gotPath, gotContentType, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"final_amount":14908.33}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, AuthToken: "secret-token"}, testLogger())
	tsk := calcTask(t)

	result, err := client.Execute(context.Background(), tsk)
	require.NoError(t, err)

	assert.JSONEq(t, `{"final_amount":14908.33}`, string(result))
	assert.Equal(t, "/api/v1/calculator/compound-interest", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.JSONEq(t, string(tsk.Payload), string(gotBody))
}

func TestClient_ExecuteNoAuthHeaderWithoutToken(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, testLogger())
	_, err := client.Execute(context.Background(), calcTask(t))
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestClient_ExecuteValidationRejectionIsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Validation Error","message":"Startkapital zu groß","code":"VALIDATION_ERROR"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, testLogger())
	_, err := client.Execute(context.Background(), calcTask(t))

	require.Error(t, err)
	assert.True(t, task.IsPermanent(err))
	assert.Contains(t, err.Error(), "Startkapital zu groß")
}

func TestClient_ExecuteThrottlingIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, testLogger())
	_, err := client.Execute(context.Background(), calcTask(t))

	require.Error(t, err)
	assert.False(t, task.IsPermanent(err))
}

func TestClient_ExecuteServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, testLogger())
	_, err := client.Execute(context.Background(), calcTask(t))

	require.Error(t, err)
	assert.False(t, task.IsPermanent(err))
	assert.Contains(t, err.Error(), "status 500")
}

func TestClient_ExecuteNetworkErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, testLogger())
	_, err := client.Execute(context.Background(), calcTask(t))

	require.Error(t, err)
	assert.False(t, task.IsPermanent(err))
}

func TestClient_ExecuteHonorsContextDeadline(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(Config{BaseURL: srv.URL}, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Execute(ctx, calcTask(t))

	require.Error(t, err)
	assert.False(t, task.IsPermanent(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_ExecuteUnknownTaskTypeIsPermanent(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{BaseURL: "http://localhost:0"}, testLogger())
	tsk, err := domain.NewTask("prime_factorization", json.RawMessage(`{}`), 3, time.Now())
	require.NoError(t, err)

	_, err = client.Execute(context.Background(), tsk)

	require.Error(t, err)
	assert.True(t, task.IsPermanent(err))
	assert.Contains(t, err.Error(), "unsupported task type")
}

func TestClient_ExecuteMalformedSuccessBodyIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, testLogger())
	_, err := client.Execute(context.Background(), calcTask(t))

	require.Error(t, err)
	assert.False(t, task.IsPermanent(err))
	assert.Contains(t, err.Error(), "malformed JSON")
}
