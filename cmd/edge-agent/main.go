package main

import "github.com/iotedge/kube-agent/pkg/cli"

func main() {
	cli.Main()
}
