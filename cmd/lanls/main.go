package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

type CLI struct {
	Scan Scan `embed:""`
}

func main() {
	var cli CLI

	kong.Parse(&cli,
		kong.Name("lanls"),
		kong.Description("List hosts on the local segment by asking them for their names over NetBIOS (NBNS) and multicast DNS."),
	)

	if err := scan(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "lanls:", err)
		os.Exit(1)
	}
}
