package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/serroba/doc-annotations/internal/acl"
	"github.com/serroba/doc-annotations/internal/api"
	"github.com/serroba/doc-annotations/internal/session"
	"github.com/serroba/doc-annotations/internal/storage"
	"github.com/serroba/doc-annotations/internal/ws"
)

const testHTML = `<p>the quick brown fox</p><p>jumps over the lazy dog</p>`

type testServer struct {
	*httptest.Server
	store storage.Store
	perms acl.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := storage.NewMemoryStore()
	perms := acl.NewMemoryStore()
	hub := ws.NewHub()

	manager := session.NewManager(session.ManagerConfig{
		Store:     store,
		PermStore: perms,
		Hub:       hub,
		Debounce:  10 * time.Millisecond,
	})
	t.Cleanup(func() { _ = manager.CloseAll() })

	srv := api.NewServer(api.ServerConfig{
		Manager:   manager,
		Store:     store,
		PermStore: perms,
		Hub:       hub,
	})

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	return &testServer{Server: hs, store: store, perms: perms}
}

// do performs a request as the given user and returns the response.
func (ts *testServer) do(t *testing.T, method, path, userID string, body any) *http.Response {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)

	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))

	return v
}

// createDocument creates a document as "owner" and grants extra roles.
func (ts *testServer) createDocument(t *testing.T, docID string, grants map[string]acl.Role) {
	t.Helper()

	resp := ts.do(t, http.MethodPost, "/documents", "owner", api.CreateDocumentRequest{
		ID:    docID,
		Title: "Test Document",
		HTML:  testHTML,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for userID, role := range grants {
		require.NoError(t, ts.perms.Grant(docID, userID, role))
	}
}

func TestAuth_MissingUserHeader(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/documents/doc-1", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateDocument(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.createDocument(t, "doc-1", nil)

	// The creator is granted the owner role.
	role, err := ts.perms.GetRole("doc-1", "owner")
	require.NoError(t, err)
	require.Equal(t, acl.Owner, role)

	// Duplicate ids conflict.
	resp := ts.do(t, http.MethodPost, "/documents", "owner", api.CreateDocumentRequest{ID: "doc-1"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// Missing id is rejected.
	resp = ts.do(t, http.MethodPost, "/documents", "owner", api.CreateDocumentRequest{Title: "x"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetDocument(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.createDocument(t, "doc-1", nil)

	resp := ts.do(t, http.MethodGet, "/documents/doc-1", "owner", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	doc := decodeJSON[storage.Document](t, resp)
	require.Equal(t, "doc-1", doc.ID)
	require.Equal(t, testHTML, doc.HTML)

	resp = ts.do(t, http.MethodGet, "/documents/missing", "owner", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateAnnotation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.createDocument(t, "doc-1", map[string]acl.Role{"alice": acl.Commenter})

	resp := ts.do(t, http.MethodPost, "/documents/doc-1/annotations", "alice", api.CreateAnnotationRequest{
		Kind:         storage.KindMark,
		SelectedText: "quick brown",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	a := decodeJSON[storage.Annotation](t, resp)
	require.Equal(t, storage.KindMark, a.Kind)
	require.Equal(t, "alice", a.Author)
	require.NotNil(t, a.Anchor)
	require.Equal(t, "section-thequickbrownfox-p", a.Anchor.SectionID)
}

func TestCreateAnnotation_Denied(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.createDocument(t, "doc-1", map[string]acl.Role{"viewer": acl.Viewer})

	resp := ts.do(t, http.MethodPost, "/documents/doc-1/annotations", "viewer", api.CreateAnnotationRequest{
		Kind:         storage.KindMark,
		SelectedText: "quick",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCreateAnnotation_Invalid(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.createDocument(t, "doc-1", nil)

	// Comment without content.
	resp := ts.do(t, http.MethodPost, "/documents/doc-1/annotations", "owner", api.CreateAnnotationRequest{
		Kind:         storage.KindComment,
		SelectedText: "quick",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown kind.
	resp = ts.do(t, http.MethodPost, "/documents/doc-1/annotations", "owner", api.CreateAnnotationRequest{
		Kind: "sticker",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Malformed body.
	resp = ts.do(t, http.MethodPost, "/documents/doc-1/annotations", "owner", "{not json")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListAnnotations(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.createDocument(t, "doc-1", nil)

	resp := ts.do(t, http.MethodGet, "/documents/doc-1/annotations", "owner", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	list := decodeJSON[[]storage.Annotation](t, resp)
	require.NotNil(t, list)
	require.Empty(t, list)

	resp = ts.do(t, http.MethodPost, "/documents/doc-1/annotations", "owner", api.CreateAnnotationRequest{
		Kind:         storage.KindMark,
		SelectedText: "lazy dog",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/documents/doc-1/annotations", "owner", nil)
	list = decodeJSON[[]storage.Annotation](t, resp)
	require.Len(t, list, 1)
}

func TestRenderedDocument(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.createDocument(t, "doc-1", nil)

	resp := ts.do(t, http.MethodPost, "/documents/doc-1/annotations", "owner", api.CreateAnnotationRequest{
		Kind:         storage.KindMark,
		SelectedText: "quick brown",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	a := decodeJSON[storage.Annotation](t, resp)

	resp = ts.do(t, http.MethodGet, "/documents/doc-1/rendered", "owner", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rendered := decodeJSON[api.RenderedDocumentResponse](t, resp)
	require.Equal(t, 1, rendered.Applied)
	require.Equal(t, 0, rendered.Skipped)

	if !strings.Contains(rendered.HTML, `data-annotation-id="`+a.ID+`"`) {
		t.Errorf("rendered HTML missing marker: %s", rendered.HTML)
	}
}

func TestUpdateAnnotation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.createDocument(t, "doc-1", map[string]acl.Role{"alice": acl.Commenter, "bob": acl.Commenter})

	resp := ts.do(t, http.MethodPost, "/documents/doc-1/annotations", "alice", api.CreateAnnotationRequest{
		Kind:         storage.KindComment,
		Content:      "first",
		SelectedText: "quick",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	a := decodeJSON[storage.Annotation](t, resp)

	// Only the author may edit.
	resp = ts.do(t, http.MethodPatch, "/annotations/"+a.ID, "bob", api.UpdateAnnotationRequest{Content: "hijack"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodPatch, "/annotations/"+a.ID, "alice", api.UpdateAnnotationRequest{Content: "second"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decodeJSON[storage.Annotation](t, resp)
	require.Equal(t, "second", updated.Content)

	resp = ts.do(t, http.MethodPatch, "/annotations/missing", "alice", api.UpdateAnnotationRequest{Content: "x"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteAnnotation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.createDocument(t, "doc-1", map[string]acl.Role{"alice": acl.Commenter})

	resp := ts.do(t, http.MethodPost, "/documents/doc-1/annotations", "alice", api.CreateAnnotationRequest{
		Kind:         storage.KindMark,
		SelectedText: "quick",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	a := decodeJSON[storage.Annotation](t, resp)

	resp = ts.do(t, http.MethodDelete, "/annotations/"+a.ID, "alice", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/annotations/"+a.ID, "alice", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReplaceContent(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.createDocument(t, "doc-1", map[string]acl.Role{"viewer": acl.Viewer})

	// Only managers may replace content.
	resp := ts.do(t, http.MethodPut, "/documents/doc-1/content", "viewer", `<p>nope</p>`)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodPut, "/documents/doc-1/content", "owner", `<p>brand new content</p>`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	doc, err := ts.store.GetDocument("doc-1")
	require.NoError(t, err)
	require.Equal(t, `<p>brand new content</p>`, doc.HTML)
}

func TestExportDocument(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.createDocument(t, "doc-1", nil)

	resp := ts.do(t, http.MethodPost, "/documents/doc-1/annotations", "owner", api.CreateAnnotationRequest{
		Kind:         storage.KindMark,
		SelectedText: "lazy dog",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/documents/doc-1/export", "owner", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	body := string(raw)
	require.Contains(t, body, "# Test Document")
	require.Contains(t, body, "## Highlights")
	require.Contains(t, body, "> lazy dog")
}

func TestDeleteDocument(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.createDocument(t, "doc-1", map[string]acl.Role{"alice": acl.Commenter})

	resp := ts.do(t, http.MethodDelete, "/documents/doc-1", "alice", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/documents/doc-1", "owner", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/documents/doc-1", "owner", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// wsEnvelope mirrors the wire shape of hub messages for test reads.
type wsEnvelope struct {
	Type    ws.MessageType  `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dialWS(t *testing.T, ts *testServer, userID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	header := http.Header{}
	header.Set("X-User-Id", userID)

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)

	if resp != nil {
		_ = resp.Body.Close()
	}

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var env wsEnvelope
	require.NoError(t, conn.ReadJSON(&env))

	return env
}

// waitForType reads until a message of the wanted type arrives, skipping
// interleaved broadcasts such as reconciliation summaries.
func waitForType(t *testing.T, conn *websocket.Conn, want ws.MessageType) wsEnvelope {
	t.Helper()

	for range 10 {
		env := readEnvelope(t, conn)
		if env.Type == want {
			return env
		}
	}

	t.Fatalf("no %s message received", want)

	return wsEnvelope{}
}

func TestWebSocket_SubscribeAndEvents(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.createDocument(t, "doc-1", map[string]acl.Role{"alice": acl.Commenter})

	conn := dialWS(t, ts, "alice")

	require.NoError(t, conn.WriteJSON(ws.Message{
		Type:    ws.MessageTypeSubscribe,
		Payload: ws.SubscribePayload{DocID: "doc-1"},
	}))

	waitForType(t, conn, ws.MessageTypeSubscribed)

	// An annotation created over HTTP reaches the subscriber.
	resp := ts.do(t, http.MethodPost, "/documents/doc-1/annotations", "owner", api.CreateAnnotationRequest{
		Kind:         storage.KindMark,
		SelectedText: "quick",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	a := decodeJSON[storage.Annotation](t, resp)

	env := waitForType(t, conn, ws.MessageTypeAnnotationCreated)

	var payload ws.AnnotationEventPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.Equal(t, a.ID, payload.AnnotationID)
	require.Equal(t, "doc-1", payload.DocID)
}

func TestWebSocket_SubscribeDenied(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.createDocument(t, "doc-1", nil)

	conn := dialWS(t, ts, "stranger")

	require.NoError(t, conn.WriteJSON(ws.Message{
		Type:    ws.MessageTypeSubscribe,
		Payload: ws.SubscribePayload{DocID: "doc-1"},
	}))

	env := readEnvelope(t, conn)
	require.Equal(t, ws.MessageTypeError, env.Type)

	var payload ws.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.Equal(t, ws.ErrorCodeAccessDenied, payload.Code)
}

func TestWebSocket_SubscribeUnknownDocument(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	conn := dialWS(t, ts, "alice")

	require.NoError(t, conn.WriteJSON(ws.Message{
		Type:    ws.MessageTypeSubscribe,
		Payload: ws.SubscribePayload{DocID: "missing"},
	}))

	env := readEnvelope(t, conn)
	require.Equal(t, ws.MessageTypeError, env.Type)
}
