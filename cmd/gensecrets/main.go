// Command gensecrets prints fresh random secrets in .env format.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
)

const secretBytes = 32

var names = []string{
	"JWT_SECRET",
	"JWT_REFRESH_SECRET",
	"COOKIE_SECRET",
	"ENCRYPTION_KEY",
}

func main() {
	if err := write(os.Stdout, rand.Reader); err != nil {
		log.Fatalf("gensecrets: %v", err)
	}
}

func write(w io.Writer, random io.Reader) error {
	for _, name := range names {
		buf := make([]byte, secretBytes)
		if _, err := io.ReadFull(random, buf); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s=%s\n", name, hex.EncodeToString(buf)); err != nil {
			return err
		}
	}
	return nil
}
