// This command writes a new cleartext Tink keyset for cache encryption. The
// file is refused if it already exists.
package main

import (
	"fmt"
	"os"

	"github.com/chinmina/chinmina-components/internal/cache/encryption"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <keyset-file>\n", os.Args[0])
		os.Exit(2)
	}

	path := os.Args[1]
	if err := encryption.WriteKeysetFile(path); err != nil {
		fmt.Fprintf(os.Stderr, "error writing keyset: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "keyset written to %s\n", path)
}
