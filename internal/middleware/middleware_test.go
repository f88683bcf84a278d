package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := NewChain(tag("outer"), tag("middle")).Append(tag("inner")).Then(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}),
	)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"outer", "middle", "inner", "handler"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	if recorder.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", recorder.Code)
	}
	if body := recorder.Body.String(); body == "" {
		t.Error("expected an error body")
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
	}))

	t.Run("generated", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		h.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
		if seen == "" {
			t.Fatal("no id assigned to the request")
		}
		if recorder.Header().Get(RequestIDHeader) != seen {
			t.Error("response id differs from request id")
		}
	})

	t.Run("client id trusted", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(RequestIDHeader, "given-id")
		recorder := httptest.NewRecorder()
		h.ServeHTTP(recorder, r)
		if seen != "given-id" {
			t.Errorf("request id = %q, want given-id", seen)
		}
	})
}

func TestAccessLogPassesThrough(t *testing.T) {
	h := AccessLog("/healthz")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, "payload")
	}))

	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/thing?a=b", nil))

	if recorder.Code != http.StatusCreated {
		t.Errorf("status = %d", recorder.Code)
	}
	if recorder.Body.String() != "payload" {
		t.Errorf("body = %q", recorder.Body.String())
	}
}
