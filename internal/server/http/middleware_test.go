package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/model"
)

func Test_bearerToken_OkAndErrors(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc.def.ghi")
	got, err := bearerToken(r)
	if err != nil || got != "abc.def.ghi" {
		t.Fatalf("ok: got=%q err=%v", got, err)
	}

	r.Header.Set("Authorization", "bearer abc")
	if got, err := bearerToken(r); err != nil || got != "abc" {
		t.Fatalf("scheme must be case-insensitive: %q %v", got, err)
	}

	r.Header.Set("Authorization", "Basic foo")
	if _, err := bearerToken(r); err == nil {
		t.Fatalf("want error on non-bearer")
	}

	r.Header.Set("Authorization", "Bearer   ")
	if _, err := bearerToken(r); err == nil {
		t.Fatalf("want error on empty token")
	}

	r.Header.Del("Authorization")
	if _, err := bearerToken(r); err == nil {
		t.Fatalf("want error on missing header")
	}
}

func TestSessionCtx_RoundTrip(t *testing.T) {
	t.Parallel()

	if _, ok := SessionFromCtx(context.Background()); ok {
		t.Fatalf("empty ctx must not carry a session")
	}
	want := Session{UserID: uuid.Must(uuid.NewV4()), Username: "alice", SessionID: "jti"}
	got, ok := SessionFromCtx(WithSession(context.Background(), want))
	if !ok || got != want {
		t.Fatalf("round trip: %+v %v", got, ok)
	}

	ctx, slot := withLogSlot(context.Background())
	_ = WithSession(ctx, want)
	if *slot != want {
		t.Fatalf("log slot not filled: %+v", *slot)
	}
}

type stubAuth struct {
	claims *model.Claims
	err    error
}

func (s stubAuth) Authenticate(string) (*model.Claims, error) { return s.claims, s.err }

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	id := uuid.Must(uuid.NewV4())
	var seen Session
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SessionFromCtx(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		auth   stubAuth
		header string
		code   int
	}{
		{"valid", stubAuth{claims: &model.Claims{UserID: id.String(), Username: "alice", SessionID: "jti-1"}}, "Bearer t", http.StatusNoContent},
		{"missing", stubAuth{}, "", http.StatusUnauthorized},
		{"rejected", stubAuth{err: errs.ErrUnauthorized}, "Bearer t", http.StatusUnauthorized},
		{"bad subject", stubAuth{claims: &model.Claims{UserID: "nope"}}, "Bearer t", http.StatusUnauthorized},
	}
	for _, c := range cases {
		seen = Session{}
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if c.header != "" {
			r.Header.Set("Authorization", c.header)
		}
		rec := httptest.NewRecorder()
		RequireAuth(c.auth)(next).ServeHTTP(rec, r)
		if rec.Code != c.code {
			t.Fatalf("%s: code=%d want %d", c.name, rec.Code, c.code)
		}
		if c.code == http.StatusNoContent && seen != (Session{UserID: id, Username: "alice", SessionID: "jti-1"}) {
			t.Fatalf("%s: session not propagated: %+v", c.name, seen)
		}
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	t.Parallel()

	h := Recover(zaptest.NewLogger(t))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("oh no")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestLogging_NoBodies(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	h := Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	h.ServeHTTP(httptest.NewRecorder(), r)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("want 1 log line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) || fields["path"] != "/api/auth/login" {
		t.Fatalf("fields: %v", fields)
	}
	for k := range fields {
		if k == "body" || k == "master_password" {
			t.Fatalf("payload logged under %q", k)
		}
	}
}

func TestLogging_NamesAuthenticatedCaller(t *testing.T) {
	t.Parallel()

	id := uuid.Must(uuid.NewV4())
	core, logs := observer.New(zap.InfoLevel)
	auth := stubAuth{claims: &model.Claims{UserID: id.String()}}
	h := Logging(zap.New(core))(RequireAuth(auth)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
	r := httptest.NewRequest(http.MethodGet, "/api/passwords", nil)
	r.Header.Set("Authorization", "Bearer t")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got := logs.All()[0].ContextMap()["user_id"]; got != id.String() {
		t.Fatalf("user_id=%v", got)
	}

	logs.TakeAll()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/passwords", nil))
	if _, ok := logs.All()[0].ContextMap()["user_id"]; ok {
		t.Fatalf("anonymous request must not carry user_id")
	}
}

func TestFail_InternalIsOpaque(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	s := &Server{log: zap.New(core)}
	rec := httptest.NewRecorder()
	s.fail(rec, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("pq: connection refused to 10.0.0.5"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code=%d", rec.Code)
	}
	if body := rec.Body.String(); body != "{\"error\":\"internal error\"}\n" {
		t.Fatalf("detail leaked: %s", body)
	}
	if logs.Len() != 1 {
		t.Fatalf("internal error must be logged")
	}
}

func TestFail_LogsCaller(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	s := &Server{log: zap.New(core)}
	id := uuid.Must(uuid.NewV4())
	r := httptest.NewRequest(http.MethodGet, "/api/passwords", nil)
	r = r.WithContext(WithSession(r.Context(), Session{UserID: id}))
	s.fail(httptest.NewRecorder(), r, errors.New("boom"))

	if got := logs.All()[0].ContextMap()["user_id"]; got != id.String() {
		t.Fatalf("user_id=%v", got)
	}
}
