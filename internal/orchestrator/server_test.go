package orchestrator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRegisterWorkerThenGetPeerReturnsIt(t *testing.T) {
	s := NewServer()

	rec := doJSON(t, s.Handler(), http.MethodPost, "/register_worker",
		`{"game_id":"g1","node_id":"n1","coord":{"q":0,"r":0},"raft_addr":"127.0.0.1:5000","data_addr":"127.0.0.1:8081"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("register_worker: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/get_peer?game_id=g1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get_peer: status %d", rec.Code)
	}
	var peers []PeerInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &peers); err != nil {
		t.Fatalf("decode peers: %v", err)
	}
	if len(peers) != 1 || peers[0].NodeID != "n1" {
		t.Fatalf("expected one peer n1, got %+v", peers)
	}
}

func TestKillRemovesWorkerFromDirectory(t *testing.T) {
	s := NewServer()
	doJSON(t, s.Handler(), http.MethodPost, "/register_worker",
		`{"game_id":"g1","node_id":"n1","coord":{"q":0,"r":0}}`)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/kill", `{"node_id":"n1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("kill: status %d", rec.Code)
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/get_peer?game_id=g1", "")
	var peers []PeerInfo
	_ = json.Unmarshal(rec.Body.Bytes(), &peers)
	if len(peers) != 0 {
		t.Fatalf("expected empty directory after kill, got %+v", peers)
	}
}

func TestKillWorkersClearsGame(t *testing.T) {
	s := NewServer()
	doJSON(t, s.Handler(), http.MethodPost, "/register_worker",
		`{"game_id":"g1","node_id":"n1","coord":{"q":0,"r":0}}`)
	doJSON(t, s.Handler(), http.MethodPost, "/register_worker",
		`{"game_id":"g1","node_id":"n2","coord":{"q":1,"r":0}}`)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/kill_workers", `{"game_id":"g1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("kill_workers: status %d", rec.Code)
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/get_peer?game_id=g1", "")
	var peers []PeerInfo
	_ = json.Unmarshal(rec.Body.Bytes(), &peers)
	if len(peers) != 0 {
		t.Fatalf("expected empty directory after kill_workers, got %+v", peers)
	}
}

func TestSpawnSingleNodeReturnsAcceptedWithoutSpawning(t *testing.T) {
	s := NewServer()
	rec := doJSON(t, s.Handler(), http.MethodPost, "/spawn_single_node",
		`{"game_id":"g1","coord":{"q":2,"r":-1},"owner_id":7}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("spawn_single_node: status %d body %s", rec.Code, rec.Body.String())
	}
}
