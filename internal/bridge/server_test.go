package bridge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/park285/cubetimer/internal/auth"
	"github.com/park285/cubetimer/internal/domain"
	"github.com/park285/cubetimer/internal/eventbus"
	"github.com/park285/cubetimer/internal/jsonx"
	"github.com/park285/cubetimer/internal/msgcat"
	"github.com/park285/cubetimer/internal/reconcile"
	"github.com/park285/cubetimer/internal/scramble"
	"github.com/park285/cubetimer/internal/session"
	"github.com/park285/cubetimer/internal/store"
	"github.com/park285/cubetimer/internal/timer"
	"github.com/park285/cubetimer/pkg/solvedto"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

const testOwner = "0b7c3e2a-61f4-4d5e-9a55-2f0a9c1d7e10"

func steppingNow() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type fixture struct {
	srv      *httptest.Server
	store    *store.Memory
	verifier *auth.Verifier
	clock    *timer.FakeClock
	token    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	v, err := auth.NewVerifier("bridge-test-secret")
	require.NoError(t, err)
	token, err := v.Sign(testOwner, time.Hour)
	require.NoError(t, err)
	msgs, err := msgcat.New("")
	require.NoError(t, err)

	st := store.NewMemory(store.WithNow(steppingNow()))
	records := eventbus.New[domain.RecordEvent]()
	recon := reconcile.New(st, records)
	clk := timer.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	scrambles := scramble.NewSeeded(scramble.DefaultLength, 11)

	s := New(Deps{
		Verifier: v,
		NewController: func(id *auth.Identity) *session.Controller {
			return session.New(id.OwnerID, session.Deps{
				Store:      st,
				Reconciler: recon,
				Records:    records,
				Scrambles:  scrambles,
				Messages:   msgs,
				Clock:      clk,
			}, session.Config{RefreshInterval: time.Hour})
		},
		Scrambles: scrambles,
		Messages:  msgs,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: st, verifier: v, clock: clk, token: token}
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, jsonx.Unmarshal(data, dest))
}

func seed(t *testing.T, st store.Store, times ...int64) []*domain.Solve {
	t.Helper()
	out := make([]*domain.Solve, 0, len(times))
	for _, ms := range times {
		s, err := st.CreateSolve(context.Background(), domain.NewSolve{OwnerID: testOwner, TimeMs: ms, Scramble: "R U"})
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthDegraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v, err := auth.NewVerifier("x")
	require.NoError(t, err)
	s := New(Deps{Verifier: v, Health: func(context.Context) error { return errors.New("db down") }})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "db down")
}

func TestAPIRequiresToken(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/api/solves")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body solvedto.ErrorBody
	decode(t, resp, &body)
	require.Equal(t, "unauthenticated", body.Code)
}

func TestHistoryPaging(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, 10000, 11000, 12000)

	resp := f.get(t, "/api/solves?limit=2&offset=0")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page solvedto.HistoryPage
	decode(t, resp, &page)
	require.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	require.Equal(t, int64(12000), page.Items[0].TimeMs)
	require.Equal(t, "12.00", page.Items[0].Display)
}

func TestDeleteSolve(t *testing.T) {
	f := newFixture(t)
	solves := seed(t, f.store, 10000)

	req, err := http.NewRequest(http.MethodDelete, f.srv.URL+"/api/solves/"+solves[0].ID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.DefaultClient.Do(req.Clone(context.Background()))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, 10000, 12000, 11000, 13000, 9000)

	resp := f.get(t, "/api/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st solvedto.Stats
	decode(t, resp, &st)
	require.Equal(t, 5, st.Count)
	require.Equal(t, "9.00", st.Best)
	require.Equal(t, "11.00", st.Ao5)
	require.Equal(t, "N/A", st.Ao12)
}

func TestScramblePNG(t *testing.T) {
	f := newFixture(t)
	resp := f.get(t, "/api/scramble.png?scramble=R+U+R%27+U%27")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	require.Equal(t, "R U R' U'", resp.Header.Get("X-Scramble"))

	resp = f.get(t, "/api/scramble.png?format=base64")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var prev solvedto.ScramblePreview
	decode(t, resp, &prev)
	require.NotEmpty(t, prev.Scramble)
	require.NotEmpty(t, prev.ImageBase64)

	resp = f.get(t, "/api/scramble.png?scramble=Q2")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (f *fixture) dial(t *testing.T) *wsClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?access_token=" + f.token
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(frame solvedto.ClientFrame) {
	c.t.Helper()
	data, err := jsonx.Marshal(frame)
	require.NoError(c.t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(c.t, c.conn.Write(ctx, websocket.MessageText, data))
}

// until reads frames until match accepts one.
func (c *wsClient) until(match func(solvedto.ServerFrame) bool) solvedto.ServerFrame {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		_, data, err := c.conn.Read(ctx)
		require.NoError(c.t, err)
		var frame solvedto.ServerFrame
		require.NoError(c.t, jsonx.Unmarshal(data, &frame))
		if match(frame) {
			return frame
		}
	}
}

func stateIs(state timer.State) func(solvedto.ServerFrame) bool {
	return func(f solvedto.ServerFrame) bool {
		return f.Type == string(session.EventState) && f.State != nil && f.State.State == string(state)
	}
}

func typeIs(typ session.EventType) func(solvedto.ServerFrame) bool {
	return func(f solvedto.ServerFrame) bool { return f.Type == string(typ) }
}

func TestWebsocketSolveFlow(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	c.until(stateIs(timer.StateIdle))
	first := c.until(typeIs(session.EventScramble)).Scramble
	require.NotEmpty(t, first)

	c.send(solvedto.ClientFrame{Type: solvedto.ClientPress})
	c.until(func(fr solvedto.ServerFrame) bool {
		return fr.Type == string(session.EventState) && fr.State != nil && fr.State.KeyDown
	})
	f.clock.Advance(timer.DefaultHoldDelay)
	c.until(stateIs(timer.StateReady))

	c.send(solvedto.ClientFrame{Type: solvedto.ClientRelease})
	c.until(stateIs(timer.StateRunning))
	f.clock.Advance(9870 * time.Millisecond)

	c.send(solvedto.ClientFrame{Type: solvedto.ClientPress})
	stopped := c.until(stateIs(timer.StateStopped))
	require.Equal(t, int64(9870), stopped.State.LastSolveMs)

	saved := c.until(typeIs(session.EventSolveSaved))
	require.NotNil(t, saved.Solve)
	require.Equal(t, int64(9870), saved.Solve.TimeMs)
	require.Equal(t, first, saved.Solve.Scramble)

	c.send(solvedto.ClientFrame{Type: solvedto.ClientRelease})
	c.send(solvedto.ClientFrame{Type: solvedto.ClientPenalty, Penalty: "+2"})
	next := c.until(typeIs(session.EventScramble))
	require.NotEqual(t, first, next.Scramble)

	solves, err := f.store.ListSolves(context.Background(), testOwner, store.Page{Limit: 5})
	require.NoError(t, err)
	require.Len(t, solves, 1)
	require.Equal(t, domain.PenaltyPlusTwo, solves[0].Penalty)
}

func TestWebsocketRejectsBadFrames(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	c.send(solvedto.ClientFrame{Type: "jump"})
	errFrame := c.until(typeIs(session.EventError))
	require.Contains(t, errFrame.Message, "jump")

	c.send(solvedto.ClientFrame{Type: solvedto.ClientPenalty, Penalty: "ok"})
	errFrame = c.until(typeIs(session.EventError))
	require.Equal(t, session.ErrNotStopped.Error(), errFrame.Message)
}

func TestOutboxCoalescesOnlyStateFrames(t *testing.T) {
	overflows := 0
	box := newOutbox(2, func() { overflows++ })
	state := string(session.EventState)

	for i := 0; i < 50; i++ {
		box.push(state, []byte{byte(i)})
	}
	box.push(string(session.EventSolveSaved), []byte("saved"))
	box.push(string(session.EventRecord), []byte("record"))

	require.Equal(t, 0, overflows, "state frames must not use the ordered queue")
	require.Equal(t, []byte{49}, <-box.state, "only the newest state is kept")
	require.Len(t, box.state, 0)
	require.Equal(t, "saved", string(<-box.frames))
	require.Equal(t, "record", string(<-box.frames))
}

func TestOutboxOverflowClosesInsteadOfDropping(t *testing.T) {
	overflows := 0
	box := newOutbox(1, func() { overflows++ })

	box.push(string(session.EventSolveSaved), []byte("saved"))
	require.False(t, box.overflowed())
	box.push(string(session.EventSolveSaveFailed), []byte("failed"))
	box.push(string(session.EventScramble), []byte("scramble"))

	require.True(t, box.overflowed())
	require.Equal(t, 1, overflows, "overflow fires once per socket")
	require.Equal(t, "saved", string(<-box.frames))
}

func TestWebsocketRequiresToken(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestScrambleRateLimitAndHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v, err := auth.NewVerifier("limit-secret")
	require.NoError(t, err)
	token, err := v.Sign(testOwner, time.Hour)
	require.NoError(t, err)
	h := New(Deps{Verifier: v, WriteLimit: 2}).Handler()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/scramble.png?scramble=R", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
