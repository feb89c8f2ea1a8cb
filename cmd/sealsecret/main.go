package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/netly/taskctl/pkg/utils/crypto"
)

// sealsecret prints an "enc:" value for a task password or private key in
// the server config. The key must match security.encryption_key.
func main() {
	key := flag.String("key", os.Getenv("TASKD_SECURITY_ENCRYPTION_KEY"), "Encryption key (defaults to TASKD_SECURITY_ENCRYPTION_KEY)")
	open := flag.Bool("open", false, "Decrypt an enc: value instead of sealing one")
	flag.Parse()

	value := strings.Join(flag.Args(), " ")
	if value == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("Failed to read value from stdin: %v", err)
		}
		value = strings.TrimRight(line, "\r\n")
	}

	var (
		out string
		err error
	)
	if *open {
		out, err = crypto.OpenSecret(value, *key)
	} else {
		out, err = crypto.SealSecret(value, *key)
	}
	if err != nil {
		log.Fatalf("Failed to process secret: %v", err)
	}
	fmt.Println(out)
}
