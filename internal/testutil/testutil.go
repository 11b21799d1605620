// Package testutil provides common test helpers for SalesPipe tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/BTreeMap/SalesPipe/internal/models"
	"github.com/BTreeMap/SalesPipe/internal/store"
)

// T is the subset of testing.TB used by the helpers.
type T interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Envelope is models.APIResponse with the result left undecoded.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// DecodeEnvelope decodes the JSON envelope and validates its status field.
// When result is non-nil the envelope result is decoded into it.
func DecodeEnvelope(t T, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus, result interface{}) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return env
	}
	if env.Status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s' (message %q)", expectedStatus, env.Status, env.Message)
	}
	if result != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, result); err != nil {
			t.Fatalf("failed to decode result: %v", err)
		}
	}
	return env
}

// NewJSONRequest creates an HTTP request with an optional JSON body.
func NewJSONRequest(t T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		buf.Write(MustMarshalJSON(t, body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// SeedSession stores an active session in phase. Zero times default to now.
func SeedSession(t T, st store.Store, id string, phase models.Phase, startedAgo time.Duration) models.Session {
	t.Helper()
	start := time.Now().UTC().Add(-startedAgo).Truncate(time.Second)
	sess := models.Session{
		ID:            id,
		Status:        models.SessionActive,
		CurrentPhase:  phase,
		PreConviction: 5,
		Counters:      models.NewSessionCounters(),
		StartTime:     start,
		LastActivity:  start,
	}
	if err := st.CreateSession(sess); err != nil {
		t.Fatalf("failed to seed session %s: %v", id, err)
	}
	return sess
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
