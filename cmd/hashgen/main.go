// Command hashgen generates the bcrypt hash for the self-registration
// passphrase. The output goes into REGIST_PASSPHRASE_HASH; the passphrase
// itself is never stored anywhere.
//
// Usage:
//
//	hashgen <passphrase>
package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) != 2 || os.Args[1] == "" {
		fmt.Fprintln(os.Stderr, "usage: hashgen <passphrase>")
		os.Exit(2)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[1]), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashgen: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(hash))
}
