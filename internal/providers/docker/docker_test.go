package docker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bucket-xv/ImageCache/internal/core"
)

func newClientForHTTPServer(t *testing.T, server *httptest.Server) *Client {
	t.Helper()

	host := strings.TrimPrefix(server.URL, "http://")
	api, err := client.NewClientWithOpts(
		client.WithHost("tcp://"+host),
		client.WithVersion("1.41"),
		client.WithHTTPClient(server.Client()),
	)
	require.NoError(t, err)

	return newClient(api)
}

func TestClient_EnsureCompatible(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_ping", r.URL.Path)
		w.Header().Set("Api-Version", "1.47")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newClientForHTTPServer(t, server)
	require.NoError(t, c.EnsureCompatible(context.Background()))
}

func TestClient_EnsureCompatible_RejectsOldDaemon(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_ping", r.URL.Path)
		w.Header().Set("Api-Version", "1.24")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newClientForHTTPServer(t, server)
	err := c.EnsureCompatible(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "older than required")
}

func TestClient_RemoveImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1.41/images/sha256:abc", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"Deleted":"sha256:abc"},{"Untagged":"example:old"}]`))
	}))
	defer server.Close()

	c := newClientForHTTPServer(t, server)
	require.NoError(t, c.RemoveImage(context.Background(), "sha256:abc"))
}

func TestClient_RemoveImage_ErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"image is being used by running container"}`))
	}))
	defer server.Close()

	c := newClientForHTTPServer(t, server)
	err := c.RemoveImage(context.Background(), "sha256:abc")

	require.Error(t, err)
	assert.ErrorContains(t, err, "sha256:abc")
}

func TestClient_LayerBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1.41/system/df", r.URL.Path)
		assert.Equal(t, "image", r.URL.Query().Get("type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"LayersSize":123456789,"Images":[]}`))
	}))
	defer server.Close()

	c := newClientForHTTPServer(t, server)
	bytes, err := c.LayerBytes(context.Background())

	require.NoError(t, err)
	assert.EqualValues(t, 123456789, bytes)
}

func TestClient_Watch_TranslatesContainerEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.41/events", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(
			`{"Type":"container","Action":"start","Actor":{"ID":"c1","Attributes":{"image":"img1"}}}` + "\n" +
				`{"Type":"container","Action":"die","Actor":{"ID":"c1","Attributes":{"image":"img1"}}}` + "\n" +
				`{"Type":"container","Action":"pause","Actor":{"ID":"c2","Attributes":{"image":"img2"}}}` + "\n",
		))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := newClientForHTTPServer(t, server)
	events, errs := c.Watch(ctx)

	var got []core.ContainerEvent
	for ev := range events {
		got = append(got, ev)
	}
	// The daemon closing the stream surfaces as a single error; the
	// pause event must have been dropped, not translated.
	<-errs

	require.Len(t, got, 2)
	assert.Equal(t, core.ContainerEvent{Type: core.ContainerStarted, ContainerID: "c1", ImageID: "img1"}, got[0])
	assert.Equal(t, core.ContainerEvent{Type: core.ContainerStopped, ContainerID: "c1", ImageID: "img1"}, got[1])
}

func eventMessage(action, containerID, imageID string) events.Message {
	attrs := map[string]string{}
	if imageID != "" {
		attrs["image"] = imageID
	}
	return events.Message{
		Type:   events.ContainerEventType,
		Action: events.Action(action),
		Actor:  events.Actor{ID: containerID, Attributes: attrs},
	}
}

func TestTranslate_DropsMessagesWithoutImage(t *testing.T) {
	_, ok := translate(eventMessage("start", "c1", ""))
	assert.False(t, ok)

	_, ok = translate(eventMessage("start", "", "img1"))
	assert.False(t, ok)

	ev, ok := translate(eventMessage("start", "c1", "img1"))
	require.True(t, ok)
	assert.Equal(t, core.ContainerStarted, ev.Type)
}
