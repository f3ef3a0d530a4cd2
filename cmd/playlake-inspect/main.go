package main

import (
	"os"

	"github.com/malbeclabs/playlake/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
