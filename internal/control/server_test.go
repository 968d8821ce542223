package control

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sdrfec/gateway/internal/device"
	"github.com/sdrfec/gateway/internal/sender"
	"github.com/sdrfec/gateway/internal/wire"
)

type fakeSource struct {
	tuning device.Tuning
}

func (f *fakeSource) Run(ctx context.Context, out chan<- []wire.Sample) error { return nil }

func (f *fakeSource) Configure(params map[string]string) (device.Tuning, error) {
	if v, ok := params["gain"]; ok {
		_ = v // device-specific passthrough accepted without interpretation here
	}
	return f.tuning, nil
}

func (f *fakeSource) Tuning() device.Tuning { return f.tuning }

type fakeTuningSetter struct {
	last device.Tuning
}

func (f *fakeTuningSetter) SetTuning(t device.Tuning) { f.last = t }

func dialAndHandshake(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := Handshake(context.Background(), conn, time.Second); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	return conn
}

func TestServerHandshakeAndRequestReply(t *testing.T) {
	cfg := sender.NewConfig()
	setter := &fakeTuningSetter{}
	src := &fakeSource{tuning: device.Tuning{CenterFrequencyHz: 100000000, SampleRateHz: 1000000, SampleBits: 16}}

	srv := NewServer(WithListenAddr("127.0.0.1:0"), WithHandler(BuildHandler(cfg, setter, src)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = srv.Serve(ctx) }()
	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("server never became ready")
	}

	conn := dialAndHandshake(t, srv.Addr())
	defer conn.Close()

	if _, err := conn.Write([]byte("freq=145000000,fecblk=4\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}
	br := bufio.NewReader(conn)
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if want := "OK fecblk=4,freq=145000000,srate=1000000\n"; line != want {
		t.Fatalf("reply = %q, want %q", line, want)
	}
	if cfg.R.Load() != 4 {
		t.Fatalf("cfg.R = %d, want 4", cfg.R.Load())
	}
	if setter.last.CenterFrequencyHz != 145000000 {
		t.Fatalf("tuning not applied: %+v", setter.last)
	}
}

func TestServerRejectsInvalidFecblk(t *testing.T) {
	cfg := sender.NewConfig()
	setter := &fakeTuningSetter{}
	src := &fakeSource{tuning: device.Tuning{CenterFrequencyHz: 100000000, SampleRateHz: 1000000}}

	srv := NewServer(WithListenAddr("127.0.0.1:0"), WithHandler(BuildHandler(cfg, setter, src)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = srv.Serve(ctx) }()
	<-srv.Ready()

	conn := dialAndHandshake(t, srv.Addr())
	defer conn.Close()

	if _, err := conn.Write([]byte("fecblk=999\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}
	br := bufio.NewReader(conn)
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if line != "ERR fecblk must be 0..127\n" {
		t.Fatalf("reply = %q, want rejection", line)
	}
}

func TestHandshakeRejectsCapabilityMismatch(t *testing.T) {
	srv := NewServer(WithListenAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()
	<-srv.Ready()

	conn, err := net.DialTimeout("tcp", srv.Addr(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Write([]byte(hello))
		if err == nil {
			_, err = conn.Write([]byte{wire.MaxRecoveryBlocks + 1})
		}
		errCh <- err
	}()
	if err := <-errCh; err != nil {
		t.Fatalf("write hello: %v", err)
	}

	buf := make([]byte, len(hello)+1)
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read server hello: %v", err)
	}

	// Server should close the connection after detecting the
	// out-of-range capability declaration.
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Read(buf[:1]); err == nil {
		t.Fatalf("expected connection closed after capability mismatch")
	}
}

func TestServerMaxClientsRejectsExtra(t *testing.T) {
	srv := NewServer(WithListenAddr("127.0.0.1:0"), WithMaxClients(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()
	<-srv.Ready()

	first := dialAndHandshake(t, srv.Addr())
	defer first.Close()

	time.Sleep(50 * time.Millisecond) // let the accept loop register the first client

	// The max-clients check runs after the handshake, so the second
	// connection completes its handshake successfully and only then
	// gets closed.
	second := dialAndHandshake(t, srv.Addr())
	defer second.Close()
	_ = second.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	if _, err := second.Read(buf); err == nil {
		t.Fatalf("expected the second connection to be closed by max-clients rejection")
	}
}
