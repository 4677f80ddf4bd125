// Command inspect dumps stored messages as a terminal table.
// It opens the database read-only, so it is safe to run next to a live server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"salon-chat/repositories"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	chat := flag.String("chat", "", "Restrict the dump to one conversation")
	flag.Parse()

	db, err := openReadOnly(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Chat", "Sender", "Content", "Flags", "Reads", "Edits", "Created"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	prefix := "msg:"
	if *chat != "" {
		prefix = fmt.Sprintf("msg:%s:", *chat)
	}

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()

			err := item.Value(func(v []byte) error {
				message, err := repositories.UnmarshalMessage(v)
				if err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}
				// The prefix narrows the scan, the record decides membership.
				if *chat != "" && message.Chat != *chat {
					return nil
				}

				content := message.Content
				if len(content) > 48 {
					content = content[:48] + "…"
				}

				table.Append([]string{
					shortKey(string(item.Key())),
					message.Chat,
					message.Sender,
					content,
					flags(message.IsPinned, message.IsEdited, message.IsDeleted),
					fmt.Sprintf("%d", len(message.ReadBy)),
					fmt.Sprintf("%d", len(message.EditHistory)),
					message.CreatedAt.Format("2006-01-02 15:04:05"),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

// flags renders the lifecycle state as a compact colored column.
func flags(pinned, edited, deleted bool) string {
	var parts []string
	if pinned {
		parts = append(parts, color.Yellow.Sprint("PIN"))
	}
	if edited {
		parts = append(parts, color.Cyan.Sprint("EDIT"))
	}
	if deleted {
		parts = append(parts, color.Red.Sprint("DEL"))
	}
	if len(parts) == 0 {
		return color.Green.Sprint("OK")
	}
	return strings.Join(parts, " ")
}

// shortKey keeps the chat and the first UUID block so rows stay readable.
func shortKey(key string) string {
	if len(key) > 40 {
		return key[:40] + "…"
	}
	return key
}

func openReadOnly(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
