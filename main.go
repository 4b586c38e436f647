// Package main is the entry point of HostsGuard.
package main

import "github.com/hostsguard/hostsguard/internal/cmd"

func main() {
	cmd.Main()
}
