// Command relay-client is a small CLI for poking at a running relay: it
// connects as a merchant, prints everything the relay pushes, and forwards
// stdin lines as text messages.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/MeiCorl/mall-relay/clients/go/merchantws"
	"github.com/MeiCorl/mall-relay/internal/models"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: relay-client <ws-url> <token> <my-merchant-id> [peer-id]")
		os.Exit(2)
	}

	url, token := os.Args[1], os.Args[2]
	myID, err := strconv.ParseInt(os.Args[3], 10, 64)
	exitOnError(err)

	var peerID int64
	if len(os.Args) > 4 {
		peerID, err = strconv.ParseInt(os.Args[4], 10, 64)
		exitOnError(err)
	}

	client, err := merchantws.Dial(url, "x_token", token)
	exitOnError(err)
	defer client.Close()

	go func() {
		for {
			msg, err := client.Receive()
			if err != nil {
				fmt.Fprintf(os.Stderr, "connection closed: %v\n", err)
				os.Exit(0)
			}
			fmt.Printf("<- [%s] %d (%s): %s\n", msg.Type, msg.FromID, msg.FromName, msg.Body.Content)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		err := client.Send(&models.Message{
			Type:      models.MessageNormal,
			FromID:    myID,
			ToID:      peerID,
			Body:      models.MessageBody{ContentType: models.ContentText, Content: scanner.Text()},
			Timestamp: time.Now().UnixMilli(),
		})
		exitOnError(err)
	}
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
