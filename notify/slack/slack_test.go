package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/chanlock/testkit"
	"github.com/ceyewan/chanlock/xerrors"
)

type apiCall struct {
	Method string
	Form   map[string]string
}

// fakeAPI 模拟 Slack Web API，按方法名返回固定响应
type fakeAPI struct {
	mu     sync.Mutex
	calls  []apiCall
	errors map[string]string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{errors: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := strings.TrimPrefix(r.URL.Path, "/")
	form := map[string]string{}
	for k := range r.Form {
		form[k] = r.Form.Get(k)
	}

	a.mu.Lock()
	a.calls = append(a.calls, apiCall{Method: method, Form: form})
	errCode := a.errors[method]
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if errCode != "" {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": errCode})
		return
	}

	switch method {
	case "chat.postMessage":
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": form["channel"], "ts": "1700000000.000100"})
	case "chat.update":
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": form["channel"], "ts": form["ts"], "text": form["text"]})
	case "conversations.open":
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": map[string]any{"id": "D" + form["users"]}})
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func (a *fakeAPI) failOn(method, code string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors[method] = code
}

func (a *fakeAPI) callsOf(method string) []apiCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []apiCall
	for _, c := range a.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func newTestNotifier(t *testing.T) (*Notifier, *fakeAPI) {
	t.Helper()
	api, srv := newFakeAPI(t)
	n, err := New(&Config{Token: "xoxb-test", APIURL: srv.URL}, WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	return n, api
}

// ============================================================================
// 构造
// ============================================================================

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(&Config{Token: "  "})
	assert.True(t, xerrors.Is(err, xerrors.ErrInvalidInput))
}

// ============================================================================
// 投递
// ============================================================================

func TestPostInit_ReturnsChannelTimestampRef(t *testing.T) {
	n, api := newTestNotifier(t)

	ref, err := n.PostInit(context.Background(), "C1", "🔐 _LOCK_ deploy (<@U1>, 30 mins)")
	require.NoError(t, err)
	assert.Equal(t, "C1:1700000000.000100", ref)

	calls := api.callsOf("chat.postMessage")
	require.Len(t, calls, 1)
	assert.Equal(t, "C1", calls[0].Form["channel"])
	assert.Contains(t, calls[0].Form["text"], "_LOCK_ deploy")
}

func TestUpdate_DoesNotReact(t *testing.T) {
	n, api := newTestNotifier(t)

	require.NoError(t, n.Update(context.Background(), "C1:1700000000.000100", "🔓 ~_LOCK_~", true))

	calls := api.callsOf("chat.update")
	require.Len(t, calls, 1)
	assert.Equal(t, "C1", calls[0].Form["channel"])
	assert.Equal(t, "1700000000.000100", calls[0].Form["ts"])
	assert.Empty(t, api.callsOf("reactions.add"))
}

func TestReact(t *testing.T) {
	n, api := newTestNotifier(t)
	ctx := context.Background()

	require.NoError(t, n.React(ctx, "C1:1700000000.000100", "unlock"))
	calls := api.callsOf("reactions.add")
	require.Len(t, calls, 1)
	assert.Equal(t, "unlock", calls[0].Form["name"])
	assert.Equal(t, "C1", calls[0].Form["channel"])
	assert.Equal(t, "1700000000.000100", calls[0].Form["timestamp"])

	api.failOn("reactions.add", "already_reacted")
	assert.NoError(t, n.React(ctx, "C1:1700000000.000100", "unlock"))

	api.failOn("reactions.add", "message_not_found")
	assert.Error(t, n.React(ctx, "C1:1700000000.000100", "unlock"))
}

func TestMalformedRef(t *testing.T) {
	n, api := newTestNotifier(t)
	ctx := context.Background()

	assert.ErrorIs(t, n.Update(ctx, "no-separator", "x", false), ErrBadRef)
	assert.ErrorIs(t, n.React(ctx, ":123", "unlock"), ErrBadRef)
	assert.Empty(t, api.callsOf("chat.update"))
}

func TestDirect_SendsExpiryActions(t *testing.T) {
	n, api := newTestNotifier(t)

	err := n.Direct(context.Background(), "C1", "Your lock in <#C1> will expire in about 9 minutes", "U1")
	require.NoError(t, err)

	opens := api.callsOf("conversations.open")
	require.Len(t, opens, 1)
	assert.Equal(t, "U1", opens[0].Form["users"])

	posts := api.callsOf("chat.postMessage")
	require.Len(t, posts, 1)
	assert.Equal(t, "DU1", posts[0].Form["channel"])

	var attachments []struct {
		Fallback   string `json:"fallback"`
		CallbackID string `json:"callback_id"`
		Actions    []struct {
			Value string `json:"value"`
		} `json:"actions"`
	}
	require.NoError(t, json.Unmarshal([]byte(posts[0].Form["attachments"]), &attachments))
	require.Len(t, attachments, 1)
	assert.Equal(t, "C1", attachments[0].Fallback)
	assert.Equal(t, CallbackLockExpiry, attachments[0].CallbackID)

	var values []string
	for _, a := range attachments[0].Actions {
		values = append(values, a.Value)
	}
	assert.Equal(t, []string{ActionUnlock, ActionLock, ActionNothing}, values)
}

func TestDirect_OpenFailure(t *testing.T) {
	n, api := newTestNotifier(t)
	api.failOn("conversations.open", "user_not_found")

	assert.Error(t, n.Direct(context.Background(), "C1", "x", "U1"))
	assert.Empty(t, api.callsOf("chat.postMessage"))
}

func TestPost_Failure(t *testing.T) {
	n, api := newTestNotifier(t)
	api.failOn("chat.postMessage", "channel_not_found")

	err := n.Post(context.Background(), "C1", "🔓 _unlock_")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}
