// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap/zaptest"
)

// approx compares coordinates with the 0.1% relative tolerance the fixtures
// were recorded with.
var approx = cmpopts.EquateApprox(0.001, 0)

func testOptions(t *testing.T) *ClientOptions {
	t.Helper()

	return &ClientOptions{Logger: zaptest.NewLogger(t)}
}

// fixtureServer answers every request with status and body, and records the
// last request it saw.
type fixtureServer struct {
	*httptest.Server

	status   int
	body     string
	requests []*http.Request
	forms    []map[string]string
}

func newFixtureServer(t *testing.T, status int, body string) *fixtureServer {
	t.Helper()

	fs := &fixtureServer{status: status, body: body}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		form := map[string]string{}
		if err := r.ParseForm(); err == nil {
			for k := range r.PostForm {
				form[k] = r.PostForm.Get(k)
			}
		}

		fs.requests = append(fs.requests, r)
		fs.forms = append(fs.forms, form)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fs.status)
		_, _ = w.Write([]byte(fs.body))
	}))
	t.Cleanup(fs.Close)

	return fs
}

func (fs *fixtureServer) last(t *testing.T) *http.Request {
	t.Helper()

	if len(fs.requests) == 0 {
		t.Fatalf("no request reached the fixture server")
	}

	return fs.requests[len(fs.requests)-1]
}

// closedServerURL returns an URL nothing listens on.
func closedServerURL(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()

	return u
}

// assertEnvelope checks the envelope invariants and the expected outcome.
func assertEnvelope[T any](t *testing.T, env Envelope[T], wantStatus bool, wantMsg string) {
	t.Helper()

	if env.Status != wantStatus {
		t.Fatalf("Status = %v, want %v (message %q)", env.Status, wantStatus, env.MessageText())
	}

	if env.Status {
		if env.Message != nil {
			t.Errorf("successful envelope has message %q", *env.Message)
		}

		if env.Result == nil {
			t.Errorf("successful envelope has no result")
		}

		if env.Err() != nil {
			t.Errorf("successful envelope has error %v", env.Err())
		}

		return
	}

	if env.Result != nil {
		t.Errorf("failed envelope has result %+v", *env.Result)
	}

	if env.Message == nil {
		t.Fatalf("failed envelope has no message")
	}

	if *env.Message != wantMsg {
		t.Errorf("Message = %q, want %q", *env.Message, wantMsg)
	}

	if env.Err() == nil {
		t.Errorf("failed envelope has no error")
	}
}

func assertCoordinate(t *testing.T, got, want Coordinate) {
	t.Helper()

	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("coordinate mismatch (-want +got):\n%s", diff)
	}
}
