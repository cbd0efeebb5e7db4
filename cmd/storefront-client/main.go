package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/fjod/go_storefront/internal/client"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/localcart"
	"github.com/fjod/go_storefront/internal/notify"
	"github.com/fjod/go_storefront/internal/session"
	"github.com/fjod/go_storefront/internal/syncer"
)

// Interactive shell around the cart coordinator, for local development
// against a running storefront server.
func main() {
	serverURL := os.Getenv("STOREFRONT_URL")
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}

	sess := &session.Static{}
	store := localcart.NewStore()
	api := client.NewHTTPClient(serverURL)
	coord := syncer.NewCoordinator(store, api, sess, notify.LogNotifier{})

	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("storefront client — commands: add, rm, qty, show, sync, login, logout, exit")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "add":
			if len(fields) != 4 {
				fmt.Println("usage: add <product-id> <variant-id> <quantity>")
				continue
			}
			productID := parseInt64(fields[1])
			variantID := parseInt64(fields[2])
			quantity, _ := strconv.Atoi(fields[3])
			item, err := coord.AddItem(ctx, domain.CartItem{
				ProductID: productID,
				VariantID: variantID,
				Quantity:  quantity,
			})
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("added %s x%d\n", item.ID, item.Quantity)

		case "rm":
			if len(fields) < 2 {
				fmt.Println("usage: rm <item-id> [item-id...]")
				continue
			}
			if err := coord.RemoveItems(ctx, fields[1:]...); err != nil {
				fmt.Println("error:", err)
			}

		case "qty":
			if len(fields) != 3 {
				fmt.Println("usage: qty <item-id> <quantity>")
				continue
			}
			quantity, _ := strconv.Atoi(fields[2])
			if err := coord.UpdateQuantity(ctx, fields[1], quantity); err != nil {
				fmt.Println("error:", err)
			}

		case "show":
			meta := store.Metadata()
			for _, item := range store.Items() {
				flag := ""
				if !item.IsAvailable {
					flag = " (unavailable)"
				}
				fmt.Printf("  %s  product=%d variant=%d x%d @ %s%s\n",
					item.ID, item.ProductID, item.VariantID, item.Quantity, item.UnitPrice, flag)
			}
			fmt.Printf("  %d items, subtotal %s\n", meta.ItemCount, meta.Subtotal)

		case "sync":
			if err := coord.SyncWithServer(ctx); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println("synced at", coord.LastSync().Format("15:04:05"))
			}

		case "login":
			if len(fields) != 2 {
				fmt.Println("usage: login <user-id>")
				continue
			}
			sess.Login(parseInt64(fields[1]))
			if err := coord.SyncAnonymousCart(ctx); err != nil {
				fmt.Println("merge failed, still anonymous:", err)
			}

		case "logout":
			coord.Logout()
			sess.Logout()
			fmt.Println("logged out, cart kept locally")

		case "exit", "quit":
			return

		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read input: %v", err)
	}
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
