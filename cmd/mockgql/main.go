// mockgql serves a GraphQL schema with mocked data.
package main

import "github.com/getmockd/mockgql/pkg/cli"

func main() {
	cli.Execute()
}
