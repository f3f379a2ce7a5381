// Command rdportal runs the remote-desktop portal backend.
package main

import "github.com/netcore-rdp/rdportal/cmd/rdportal/cmd"

func main() {
	cmd.Execute()
}
