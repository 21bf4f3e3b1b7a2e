// Package testutil provides shared test helpers: a gated Postgres setup and
// httptest doubles for the external services the fetch backends talk to.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
)

// MockVideo seeds one video in the mock YouTube Data API.
type MockVideo struct {
	ID       string
	Title    string
	Views    uint64
	Likes    uint64
	Comments uint64
	Duration string // ISO-8601, e.g. PT4M13S
	Channel  string
}

// MockYouTube is an httptest double for the three Data API calls the API
// backend issues: playlists.list, playlistItems.list, videos.list.
type MockYouTube struct {
	PlaylistID    string
	PlaylistTitle string
	ChannelTitle  string
	Videos        []MockVideo

	// FailWith, when non-zero, makes every call answer with this status and
	// a Data API error body carrying Reason.
	FailWith int
	Reason   string

	Server *httptest.Server
	calls  atomic.Int64
}

// NewMockYouTube starts the server. Point the API client at Server.URL via
// option.WithEndpoint.
func NewMockYouTube(playlistID, title, channel string, videos []MockVideo) *MockYouTube {
	m := &MockYouTube{
		PlaylistID:    playlistID,
		PlaylistTitle: title,
		ChannelTitle:  channel,
		Videos:        videos,
	}
	// The generated client resolves calls relative to the endpoint as
	// {endpoint}/youtube/v3/{method}.
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/playlists", m.handlePlaylists)
	mux.HandleFunc("/youtube/v3/playlistItems", m.handlePlaylistItems)
	mux.HandleFunc("/youtube/v3/videos", m.handleVideos)
	m.Server = httptest.NewServer(mux)
	return m
}

func (m *MockYouTube) Close() { m.Server.Close() }

// Calls reports how many API calls the mock served.
func (m *MockYouTube) Calls() int64 { return m.calls.Load() }

func (m *MockYouTube) fail(w http.ResponseWriter) bool {
	if m.FailWith == 0 {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(m.FailWith)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":"mock failure","errors":[{"reason":%q,"domain":"youtube.quota"}]}}`,
		m.FailWith, m.Reason)
	return true
}

func (m *MockYouTube) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	m.calls.Add(1)
	if m.fail(w) {
		return
	}
	writeJSON(w, map[string]any{
		"kind": "youtube#playlistListResponse",
		"items": []map[string]any{{
			"id": m.PlaylistID,
			"snippet": map[string]any{
				"title":        m.PlaylistTitle,
				"channelTitle": m.ChannelTitle,
				"thumbnails":   map[string]any{"medium": map[string]any{"url": "https://img.example/pl.jpg"}},
			},
			"contentDetails": map[string]any{"itemCount": len(m.Videos)},
		}},
	})
}

func (m *MockYouTube) handlePlaylistItems(w http.ResponseWriter, r *http.Request) {
	m.calls.Add(1)
	if m.fail(w) {
		return
	}
	// Single page; tests seed fewer than 50 videos.
	items := make([]map[string]any, 0, len(m.Videos))
	for i, v := range m.Videos {
		items = append(items, map[string]any{
			"snippet": map[string]any{
				"title":                  v.Title,
				"position":               i,
				"videoOwnerChannelTitle": v.Channel,
			},
			"contentDetails": map[string]any{"videoId": v.ID},
		})
	}
	writeJSON(w, map[string]any{"kind": "youtube#playlistItemListResponse", "items": items})
}

func (m *MockYouTube) handleVideos(w http.ResponseWriter, r *http.Request) {
	m.calls.Add(1)
	if m.fail(w) {
		return
	}
	// The generated client sends ids as repeated params; accept
	// comma-separated values too.
	wanted := map[string]bool{}
	for _, param := range r.URL.Query()["id"] {
		for _, id := range strings.Split(param, ",") {
			wanted[id] = true
		}
	}
	items := make([]map[string]any, 0, len(m.Videos))
	for _, v := range m.Videos {
		if !wanted[v.ID] {
			continue
		}
		items = append(items, map[string]any{
			"id": v.ID,
			"snippet": map[string]any{
				"title":        v.Title,
				"channelTitle": v.Channel,
			},
			"statistics": map[string]any{
				"viewCount":    fmt.Sprint(v.Views),
				"likeCount":    fmt.Sprint(v.Likes),
				"commentCount": fmt.Sprint(v.Comments),
			},
			"contentDetails": map[string]any{"duration": v.Duration},
		})
	}
	writeJSON(w, map[string]any{"kind": "youtube#videoListResponse", "items": items})
}

// MockDislikes is an httptest double for the dislike aggregation service.
type MockDislikes struct {
	// Votes maps video id to the payload returned for it.
	Votes map[string]map[string]any
	// ThrottleFirst makes the first N requests answer 429 before serving.
	ThrottleFirst int

	Server *httptest.Server
	served atomic.Int64
}

// NewMockDislikes starts the server; use Server.URL as DISLIKE_API_URL.
func NewMockDislikes(votes map[string]map[string]any) *MockDislikes {
	m := &MockDislikes{Votes: votes}
	mux := http.NewServeMux()
	mux.HandleFunc("/votes", func(w http.ResponseWriter, r *http.Request) {
		n := m.served.Add(1)
		if int(n) <= m.ThrottleFirst {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		payload, ok := m.Votes[r.URL.Query().Get("videoId")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, payload)
	})
	m.Server = httptest.NewServer(mux)
	return m
}

func (m *MockDislikes) Close() { m.Server.Close() }

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
