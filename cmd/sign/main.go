package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kkkcccliang/wecom-chatgpt-app/internal/wecom"
)

func main() {
	token := flag.String("token", "", "Shared callback token from the WeCom console")
	timestamp := flag.String("timestamp", "", "Timestamp (defaults to now)")
	nonce := flag.String("nonce", "", "Nonce (defaults to random)")
	ciphertext := flag.String("ciphertext", "", "Base64 ciphertext (Encrypt field or echostr)")
	flag.Parse()

	if *token == "" || *ciphertext == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -token <token> -ciphertext <base64> [-timestamp <ts>] [-nonce <nonce>]")
		fmt.Fprintln(os.Stderr, "  Prints the msg_signature for the given envelope, for debugging webhook config")
		os.Exit(1)
	}

	ts := *timestamp
	if ts == "" {
		ts = strconv.FormatInt(time.Now().Unix(), 10)
	}

	n := *nonce
	if n == "" {
		raw := make([]byte, 8)
		rand.Read(raw)
		n = hex.EncodeToString(raw)
	}

	fmt.Printf("timestamp:     %s\n", ts)
	fmt.Printf("nonce:         %s\n", n)
	fmt.Printf("msg_signature: %s\n", wecom.Signature(*token, ts, n, *ciphertext))
}
