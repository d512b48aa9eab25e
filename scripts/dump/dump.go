package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dgraph-io/badger/v4"
)

const dbPath = "./db/badger"

func main() {
	// Command-line flags
	outputMode := flag.String("o", "console", "Output mode: 'console' or 'file'")
	outputFile := flag.String("f", "dump.txt", "Output file (if mode is 'file')")
	keyPrefix := flag.String("p", "", "Only dump keys with this prefix (e.g. 'market:snapshot:')")
	flag.Parse()

	var out *os.File
	var err error

	// Handle output destination
	if *outputMode == "file" {
		out, err = os.Create(*outputFile)
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer out.Close()
	} else {
		out = os.Stdout // Default to console
	}

	db, err := badger.Open(badger.DefaultOptions(dbPath))
	if err != nil {
		log.Fatalf("Failed to open BadgerDB: %v", err)
	}
	defer db.Close()

	if *outputMode == "file" {
		fmt.Println("Dumping BadgerDB contents to file", *outputFile)
	} else {
		fmt.Println("Dumping BadgerDB contents to console")
	}

	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(*keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			keyStr := string(item.Key())

			err := item.Value(func(val []byte) error {
				fmt.Fprintf(out, "Key: %s\n", keyStr)

				// Snapshots and checkpoints are JSON; seller index
				// entries are plain mint keys.
				if json.Valid(val) {
					var pretty bytes.Buffer
					if err := json.Indent(&pretty, val, "  ", "  "); err == nil {
						fmt.Fprintf(out, "  Value (JSON): %s\n", pretty.String())
						fmt.Fprintln(out, "-------------------------")
						return nil
					}
				}
				if isPrintable(val) {
					fmt.Fprintf(out, "  Value (String): %s\n", string(val))
				} else {
					fmt.Fprintf(out, "  Value (Hex): %s\n", hex.EncodeToString(val))
				}
				fmt.Fprintln(out, "-------------------------")
				return nil
			})

			if err != nil {
				fmt.Fprintf(out, "  [ERROR] Could not read value: %v\n", err)
			}
		}
		return nil
	})

	if err != nil {
		log.Fatalf("Error while iterating: %v", err)
	}

	fmt.Println("Dump complete.")
}

// isPrintable checks if a byte slice consists of printable characters.
func isPrintable(data []byte) bool {
	for _, b := range data {
		if b < 32 || b > 126 {
			return false
		}
	}
	return true
}
