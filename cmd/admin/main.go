// Command admin runs maintenance tasks against the contactbook database.
//
//	admin create-admin [server flags]
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/contactbook/internal/admin"
	"github.com/dmitrijs2005/contactbook/internal/server"
	"github.com/dmitrijs2005/contactbook/internal/server/config"
)

func main() {

	if len(os.Args) < 2 || os.Args[1] != "create-admin" {
		fmt.Fprintln(os.Stderr, "usage: admin create-admin [flags]")
		os.Exit(2)
	}

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	if _, err := admin.CreateAdmin(ctx, app.Users(), bufio.NewReader(os.Stdin), os.Stdout); err != nil {
		log.Printf("create-admin: %v", err)
		return
	}
}
