package main

import (
	"fmt"
	"os"

	cli "github.com/spf13/pflag"

	"github.com/rajeev0521/project-AVA/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	cli.Parse()

	cmd := "trigger"
	if args := cli.Args(); len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "trigger":
		if err := ipc.SendCommand(*socket, "trigger"); err != nil {
			fmt.Println("ava not running:", err)
			os.Exit(1)
		}
	case "status":
		st, err := ipc.QueryStatus(*socket)
		if err != nil {
			fmt.Println("ava not running:", err)
			os.Exit(1)
		}
		fmt.Printf("state: %s\nuptime: %s\n", st.State, st.Uptime)
	default:
		fmt.Println("usage: avactl [--socket path] [trigger|status]")
		os.Exit(2)
	}
}
