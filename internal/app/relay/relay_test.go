package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tzinov15/messaging-app-backend/internal/app/identity"
	"github.com/Tzinov15/messaging-app-backend/internal/pkg/errs"
)

// fakeStore is an in-memory MessageStore for exercising the relay without a database.
type fakeStore struct {
	mu       sync.Mutex
	saved    []Message
	history  map[string][]StoredMessage
	failSave bool
	failFind bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{history: make(map[string][]StoredMessage)}
}

func (f *fakeStore) Save(ctx context.Context, msg Message) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSave {
		return uuid.Nil, errors.New("store unavailable")
	}
	f.saved = append(f.saved, msg)
	return uuid.New(), nil
}

func (f *fakeStore) FindByParticipant(ctx context.Context, username string) ([]StoredMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failFind {
		return nil, errors.New("store unavailable")
	}
	return f.history[username], nil
}

func (f *fakeStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func (f *fakeStore) savedAuthors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	authors := make([]string, 0, len(f.saved))
	for _, m := range f.saved {
		authors = append(authors, m.Author)
	}
	return authors
}

// waitForSaves polls the fake store until it holds want records or the deadline passes.
func waitForSaves(t *testing.T, f *fakeStore, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.savedCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("store holds %d records, want %d", f.savedCount(), want)
}

// readFrame pulls the next queued frame for c and decodes it.
func readFrame(t *testing.T, c *Client, timeout time.Duration) map[string]any {
	t.Helper()

	select {
	case raw := <-c.send:
		var frame map[string]any
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("frame is not valid JSON: %v", err)
		}
		return frame
	case <-time.After(timeout):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

// readFrameAction reads frames for c until one carries the wanted action.
func readFrameAction(t *testing.T, c *Client, action string, timeout time.Duration) map[string]any {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		frame := readFrame(t, c, time.Until(deadline))
		if frame["action"] == action {
			return frame
		}
	}
	t.Fatalf("timed out waiting for %s frame", action)
	return nil
}

func assertNoFrame(t *testing.T, c *Client, wait time.Duration) {
	t.Helper()

	select {
	case raw := <-c.send:
		t.Fatalf("unexpected frame: %s", raw)
	case <-time.After(wait):
	}
}

func rosterUsernames(t *testing.T, frame map[string]any) []string {
	t.Helper()

	users, ok := frame["users"].([]any)
	if !ok {
		t.Fatalf("frame carries no users list: %v", frame)
	}

	names := make([]string, 0, len(users))
	for _, u := range users {
		entry := u.(map[string]any)
		names = append(names, entry["username"].(string))
	}
	return names
}

func messageFrame(author, recipient, body string) []byte {
	raw, _ := json.Marshal(map[string]string{
		"author":    author,
		"recipient": recipient,
		"msg":       body,
	})
	return raw
}

func TestConnectBroadcastsRosterToEveryone(t *testing.T) {
	r := NewRelay(newFakeStore(), time.Millisecond)

	a := newBareClient("alice")
	b := newBareClient("bob")
	c := newBareClient("carol")

	r.handleConnect(a)
	r.handleConnect(b)
	r.handleConnect(c)

	// Every earlier client sees carol arrive; the roster holds N+1 entries
	// including the synthetic SERVER participant. Alice saw bob join first,
	// so her carol update is the second connect frame.
	readFrameAction(t, a, ActionClientConnect, time.Second)
	for _, existing := range []*Client{a, b} {
		frame := readFrameAction(t, existing, ActionClientConnect, time.Second)
		names := rosterUsernames(t, frame)
		if len(names) != 4 {
			t.Errorf("roster size = %d, want 4 (3 clients + SERVER)", len(names))
		}
	}

	frame := readFrameAction(t, c, ActionClientNew, time.Second)
	names := rosterUsernames(t, frame)
	if len(names) != 4 {
		t.Errorf("new client roster size = %d, want 4", len(names))
	}

	hasServer := false
	for _, n := range names {
		if n == identity.ServerUsername {
			hasServer = true
		}
	}
	if !hasServer {
		t.Error("roster is missing the SERVER entry")
	}
}

func TestOnlyNewClientReceivesHistory(t *testing.T) {
	fs := newFakeStore()
	fs.history["bob"] = []StoredMessage{
		{ID: uuid.New(), Message: Message{Author: "alice", Recipient: "bob", Body: "hey"}},
		{ID: uuid.New(), Message: Message{Author: "bob", Recipient: "alice", Body: "hi"}},
	}

	r := NewRelay(fs, time.Millisecond)

	a := newBareClient("alice")
	b := newBareClient("bob")

	r.handleConnect(a)
	r.handleConnect(b)

	welcome := readFrameAction(t, b, ActionClientNew, time.Second)
	messages, ok := welcome["messages"].([]any)
	if !ok {
		t.Fatalf("welcome frame carries no message history: %v", welcome)
	}
	if len(messages) != 2 {
		t.Errorf("history length = %d, want 2", len(messages))
	}

	update := readFrameAction(t, a, ActionClientConnect, time.Second)
	if _, present := update["messages"]; present {
		t.Error("roster update to existing client carries message history")
	}
}

func TestHistoryFetchFailureDoesNotAbortPresence(t *testing.T) {
	fs := newFakeStore()
	fs.failFind = true

	r := NewRelay(fs, time.Millisecond)

	a := newBareClient("alice")
	b := newBareClient("bob")

	r.handleConnect(a)
	r.handleConnect(b)

	// The rest of the roster still hears about bob.
	readFrameAction(t, a, ActionClientConnect, time.Second)

	// Bob is welcomed with an empty history instead of being dropped.
	welcome := readFrameAction(t, b, ActionClientNew, time.Second)
	messages, ok := welcome["messages"].([]any)
	if !ok {
		t.Fatalf("welcome frame carries no messages field: %v", welcome)
	}
	if len(messages) != 0 {
		t.Errorf("history length = %d on fetch failure, want 0", len(messages))
	}
}

func TestRouteEchoesAndDelivers(t *testing.T) {
	fs := newFakeStore()
	r := NewRelay(fs, time.Millisecond)

	a := newBareClient("alice")
	b := newBareClient("bob")
	r.registry.Add(a)
	r.registry.Add(b)

	r.route(a, messageFrame("alice", "bob", "hello bob"))

	echo := readFrameAction(t, a, ActionUserMessage, time.Second)
	delivery := readFrameAction(t, b, ActionUserMessage, time.Second)

	if echo["msg"] != "hello bob" || delivery["msg"] != "hello bob" {
		t.Error("echo or delivery body does not match the sent message")
	}

	echoTS, _ := echo["timestamp"].(string)
	deliveryTS, _ := delivery["timestamp"].(string)
	if echoTS == "" {
		t.Error("echo carries no server-stamped timestamp")
	}
	if echoTS != deliveryTS {
		t.Errorf("echo timestamp %q differs from delivery timestamp %q", echoTS, deliveryTS)
	}

	waitForSaves(t, fs, 1)
}

func TestRouteMalformedFrameIsDropped(t *testing.T) {
	fs := newFakeStore()
	r := NewRelay(fs, time.Millisecond)

	a := newBareClient("alice")
	r.registry.Add(a)

	r.route(a, []byte("{not json"))

	assertNoFrame(t, a, 50*time.Millisecond)
	if fs.savedCount() != 0 {
		t.Errorf("store holds %d records after malformed frame, want 0", fs.savedCount())
	}

	// The connection stays usable.
	r.route(a, messageFrame("alice", "alice", "note to self"))
	readFrameAction(t, a, ActionUserMessage, time.Second)
}

func TestRouteRecipientUnavailable(t *testing.T) {
	fs := newFakeStore()
	r := NewRelay(fs, time.Millisecond)

	a := newBareClient("alice")
	r.registry.Add(a)

	r.route(a, messageFrame("alice", "ghost", "anyone there?"))

	readFrameAction(t, a, ActionUserMessage, time.Second)

	errFrame := readFrameAction(t, a, ActionError, time.Second)
	if code, _ := errFrame["code"].(float64); int(code) != errs.ErrRecipientUnavailable {
		t.Errorf("error code = %v, want %d", errFrame["code"], errs.ErrRecipientUnavailable)
	}

	// Persistence is independent of delivery.
	waitForSaves(t, fs, 1)
}

func TestRoutePersistFailureDoesNotBlockDelivery(t *testing.T) {
	fs := newFakeStore()
	fs.failSave = true

	r := NewRelay(fs, time.Millisecond)

	a := newBareClient("alice")
	b := newBareClient("bob")
	r.registry.Add(a)
	r.registry.Add(b)

	r.route(a, messageFrame("alice", "bob", "still gets through"))

	readFrameAction(t, a, ActionUserMessage, time.Second)
	readFrameAction(t, b, ActionUserMessage, time.Second)
}

func TestServerRecipientGetsDelayedReply(t *testing.T) {
	fs := newFakeStore()
	r := NewRelay(fs, 30*time.Millisecond)

	a := newBareClient("alice")
	r.registry.Add(a)

	start := time.Now()
	r.route(a, messageFrame("alice", identity.ServerUsername, "hi server"))

	readFrameAction(t, a, ActionUserMessage, time.Second)

	reply := readFrameAction(t, a, ActionUserMessage, time.Second)
	if reply["author"] != identity.ServerUsername {
		t.Errorf("reply author = %v, want %q", reply["author"], identity.ServerUsername)
	}
	if reply["recipient"] != "alice" {
		t.Errorf("reply recipient = %v, want alice", reply["recipient"])
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("reply arrived after %s, before the configured delay", elapsed)
	}

	// Original message and the synthetic reply are both persisted.
	waitForSaves(t, fs, 2)

	authors := fs.savedAuthors()
	foundServer := false
	for _, author := range authors {
		if author == identity.ServerUsername {
			foundServer = true
		}
	}
	if !foundServer {
		t.Errorf("no persisted record authored by SERVER: %v", authors)
	}
}

func TestServerReplyCancelledWhenSenderDisconnects(t *testing.T) {
	fs := newFakeStore()
	r := NewRelay(fs, 100*time.Millisecond)

	a := newBareClient("alice")
	r.registry.Add(a)

	r.route(a, messageFrame("alice", identity.ServerUsername, "hi server"))
	readFrameAction(t, a, ActionUserMessage, time.Second)

	a.shutdown()

	time.Sleep(300 * time.Millisecond)

	if fs.savedCount() != 1 {
		t.Errorf("store holds %d records, want only the original message", fs.savedCount())
	}
	assertNoFrame(t, a, 50*time.Millisecond)
}

func TestDisconnectRemovesFromRosterAndLookup(t *testing.T) {
	r := NewRelay(newFakeStore(), time.Millisecond)

	a := newBareClient("alice")
	b := newBareClient("bob")

	r.handleConnect(a)
	r.handleConnect(b)
	readFrameAction(t, a, ActionClientConnect, time.Second)

	r.handleDisconnect(b)

	if got := r.registry.Find("bob"); got != nil {
		t.Error("Find(bob) still resolves after disconnect")
	}

	frame := readFrameAction(t, a, ActionClientDisconnect, time.Second)
	for _, name := range rosterUsernames(t, frame) {
		if name == "bob" {
			t.Error("disconnected client still present in broadcast roster")
		}
	}
}

func TestRelayRunPresenceFlow(t *testing.T) {
	r := NewRelay(newFakeStore(), time.Millisecond)
	go r.Run()

	a := newBareClient("alice")
	b := newBareClient("bob")

	r.Register(a)
	readFrameAction(t, a, ActionClientNew, time.Second)

	r.Register(b)
	readFrameAction(t, a, ActionClientConnect, time.Second)
	readFrameAction(t, b, ActionClientNew, time.Second)

	r.Unregister(b)
	readFrameAction(t, a, ActionClientDisconnect, time.Second)

	done := make(chan struct{})
	go func() {
		r.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not complete")
	}
}

// newWsPair spins up a loopback WebSocket and returns the server-side and
// client-side connections.
func newWsPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	cli, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial test WebSocket: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { cli.Close() })

	select {
	case serverConn := <-connCh:
		t.Cleanup(func() { serverConn.Close() })
		return serverConn, cli
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side connection")
		return nil, nil
	}
}

func TestDuplicateUsernameEvictsOldConnection(t *testing.T) {
	r := NewRelay(newFakeStore(), time.Millisecond)

	firstConn, _ := newWsPair(t)
	secondConn, _ := newWsPair(t)

	first := NewClient(r, firstConn, identity.Identity{Username: "alice"})
	second := NewClient(r, secondConn, identity.Identity{Username: "alice"})

	r.handleConnect(first)
	r.handleConnect(second)

	select {
	case <-first.Done():
	default:
		t.Error("evicted connection was not shut down")
	}

	if got := r.registry.Find("alice"); got != second {
		t.Error("Find(alice) does not resolve to the replacement connection")
	}

	// The evicted connection's late cleanup must not remove the replacement.
	r.handleDisconnect(first)
	if got := r.registry.Find("alice"); got != second {
		t.Error("stale disconnect evicted the replacement connection")
	}
}

func TestStampClockFormat(t *testing.T) {
	ts := time.Date(2020, 5, 17, 16, 5, 9, 42*int(time.Millisecond), time.UTC)

	if got, want := stampClock(ts), "4:05:09:042 pm"; got != want {
		t.Errorf("stampClock = %q, want %q", got, want)
	}

	morning := time.Date(2020, 5, 17, 9, 30, 0, 7*int(time.Millisecond), time.UTC)
	if got, want := stampClock(morning), "9:30:00:007 am"; got != want {
		t.Errorf("stampClock = %q, want %q", got, want)
	}
}
