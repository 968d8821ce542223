package control

import (
	"bufio"
	"strings"
	"testing"
)

func TestCodecRequestRoundTrip(t *testing.T) {
	c := &Codec{}
	req := Request{Params: map[string]string{"freq": "145000000", "srate": "2000000"}}
	line := c.Encode(req)
	if got, want := string(line), "freq=145000000,srate=2000000\n"; got != want {
		t.Fatalf("Encode = %q, want %q", got, want)
	}
	decoded, err := c.Decode(bufio.NewReader(strings.NewReader(string(line))))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Params["freq"] != "145000000" || decoded.Params["srate"] != "2000000" {
		t.Fatalf("decoded params mismatch: %+v", decoded.Params)
	}
}

func TestCodecReplyRoundTrip(t *testing.T) {
	c := &Codec{}
	ok := Reply{OK: true, Params: map[string]string{"fecblk": "4"}}
	line := c.EncodeReply(ok)
	if got, want := string(line), "OK fecblk=4\n"; got != want {
		t.Fatalf("EncodeReply = %q, want %q", got, want)
	}
	decoded, err := c.DecodeReply(bufio.NewReader(strings.NewReader(string(line))))
	if err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}
	if !decoded.OK || decoded.Params["fecblk"] != "4" {
		t.Fatalf("decoded reply mismatch: %+v", decoded)
	}

	errReply := Reply{OK: false, Message: "fecblk must be 0..127"}
	errLine := c.EncodeReply(errReply)
	if got, want := string(errLine), "ERR fecblk must be 0..127\n"; got != want {
		t.Fatalf("EncodeReply(err) = %q, want %q", got, want)
	}
	decodedErr, err := c.DecodeReply(bufio.NewReader(strings.NewReader(string(errLine))))
	if err != nil {
		t.Fatalf("DecodeReply(err): %v", err)
	}
	if decodedErr.OK || decodedErr.Message != "fecblk must be 0..127" {
		t.Fatalf("decoded error reply mismatch: %+v", decodedErr)
	}
}

func TestCodecRejectsMalformedPair(t *testing.T) {
	c := &Codec{}
	_, err := c.Decode(bufio.NewReader(strings.NewReader("freq145000000\n")))
	if err == nil {
		t.Fatalf("expected error decoding malformed pair")
	}
}
