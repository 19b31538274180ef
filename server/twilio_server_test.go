package server

import (
	"bytes"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/room4-2/livevoice/audio"
	"github.com/room4-2/livevoice/config"
	"github.com/room4-2/livevoice/live"
	"github.com/room4-2/livevoice/messages"
	"github.com/room4-2/livevoice/session"
)

func testTwilioServer(t *testing.T, connector live.Connector) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		MaxSessions:      2,
		SessionTimeout:   time.Minute,
		MaxBufferSize:    16000,
		DefaultVoice:     string(live.VoiceFenrir),
		Locale:           "ar",
		CaptureFrameSize: 160,
	}
	mgr := session.NewManagerWithStore(cfg, connector, session.NewMemoryStore(time.Minute))
	ts := httptest.NewServer(NewWebsocketTwilio(cfg, mgr).Handler())
	t.Cleanup(func() {
		ts.Close()
		mgr.Shutdown()
	})
	return ts
}

func TestTwilio_VoiceTwiML(t *testing.T) {
	t.Parallel()

	ts := testTwilioServer(t, &stubConnector{stream: newStubStream()})
	resp, err := http.Post(ts.URL+"/voice", "application/x-www-form-urlencoded", nil)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	host := strings.TrimPrefix(ts.URL, "http://")
	if !strings.Contains(string(body), `<Stream url="wss://`+host+`/stream" />`) {
		t.Errorf("TwiML = %s", body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/xml" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestTwilio_CallFlow(t *testing.T) {
	t.Parallel()

	stream := newStubStream()
	ts := testTwilioServer(t, &stubConnector{stream: stream})
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	send(t, conn, `{"event":"connected"}`)
	send(t, conn, `{"event":"start","start":{"streamSid":"MZ42","callSid":"CA1"}}`)

	// 80 mu-law bytes at 8 kHz become one 160-sample frame at 16 kHz.
	silence := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xFF}, 80))
	deadline := time.After(3 * time.Second)
	for sent := false; !sent; {
		send(t, conn, `{"event":"media","streamSid":"MZ42","media":{"payload":"`+silence+`"}}`)
		select {
		case frame := <-stream.sent:
			if len(frame) != 320 {
				t.Errorf("frame is %d bytes", len(frame))
			}
			sent = true
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("caller audio never reached the stream")
		}
	}

	stream.recv <- []live.Event{{Kind: live.EventAudio, Audio: audio.Float32ToPCM16(make([]float32, 960))}}

	for i := 0; i < 200; i++ {
		back := readTwilio(t, conn)
		if back.Event == "clear" {
			t.Fatal("clear sent before any interruption")
		}
		if back.Event != "media" {
			continue
		}
		if back.StreamSid != "MZ42" {
			t.Errorf("streamSid = %q", back.StreamSid)
		}
		mu, err := base64.StdEncoding.DecodeString(back.Media.Payload)
		if err != nil || len(mu) == 0 {
			t.Errorf("payload %q: %v", back.Media.Payload, err)
		}
		break
	}

	stream.recv <- []live.Event{{Kind: live.EventInterrupted}}
	for i := 0; ; i++ {
		if i == 200 {
			t.Fatal("no clear after interruption")
		}
		if back := readTwilio(t, conn); back.Event == "clear" {
			if back.StreamSid != "MZ42" {
				t.Errorf("clear streamSid = %q", back.StreamSid)
			}
			break
		}
	}

	send(t, conn, `{"event":"stop"}`)
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func readTwilio(t *testing.T, conn *websocket.Conn) messages.TwilioMessageBack {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var back messages.TwilioMessageBack
	if err := sonic.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	return back
}
