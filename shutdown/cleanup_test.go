package shutdown

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestStepAdapters(t *testing.T) {
	stopped := false
	if err := StopStep(func() { stopped = true })(context.Background()); err != nil || !stopped {
		t.Errorf("StopStep() = %v, stopped %v", err, stopped)
	}

	var gotCtx context.Context
	ctx := context.WithValue(context.Background(), struct{}{}, 1)
	StopContextStep(func(c context.Context) { gotCtx = c })(ctx)
	if gotCtx != ctx {
		t.Error("StopContextStep should pass the shutdown context")
	}

	want := errors.New("close failed")
	if err := CloseStep(closerFunc(func() error { return want }))(context.Background()); !errors.Is(err, want) {
		t.Errorf("CloseStep() = %v, want %v", err, want)
	}
}

func TestServerStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	if err := ServerStep(srv.Config)(context.Background()); err != nil {
		t.Errorf("ServerStep() error = %v", err)
	}
	if _, err := http.Get(srv.URL); err == nil {
		t.Error("server should refuse requests after ServerStep")
	}
}
