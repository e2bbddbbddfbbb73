package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

func main() {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}

	// base64 of 32 bytes is 44 characters ending in "="; the WeCom
	// console wants the 43 characters before the padding.
	encoded := base64.StdEncoding.EncodeToString(key)
	fmt.Printf("EncodingAESKey: %s\n", encoded[:43])
}
